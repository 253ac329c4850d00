/*
lifecycle_test.go - State machine transition grid

PURPOSE:
  Validates the per-operation state preconditions across all eleven
  lifecycle states, plus the editing tier classification.
*/
package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStates = []State{
	StateRequestForInformation, StateDraft, StateOffer, StateNegotiable,
	StateExecutable, StateAddendum, StateEffective, StateExecuted,
	StateDisputed, StateTerminated, StateCounter,
}

func TestStateTiers(t *testing.T) {
	updatable := map[State]bool{
		StateDraft: true, StateRequestForInformation: true, StateCounter: true,
	}
	for _, s := range allStates {
		assert.Equal(t, updatable[s], s.Updatable(), "updatable(%s)", s)
		assert.Equal(t, s == StateNegotiable, s.Approvable(), "approvable(%s)", s)
	}
}

func TestAllowed_TransitionGrid(t *testing.T) {
	// the states in which each operation is permitted
	grid := map[Op]map[State]bool{
		OpUpdate: {
			StateDraft: true, StateRequestForInformation: true,
			StateCounter: true, StateNegotiable: true,
		},
		OpSubmit: {
			StateDraft: true, StateRequestForInformation: true, StateCounter: true,
		},
		OpApprove: {StateNegotiable: true},
		OpCounter: {StateNegotiable: true},
		OpDelete: {
			StateDraft: true, StateRequestForInformation: true,
			StateCounter: true, StateNegotiable: true,
		},
		OpTerminate: {StateEffective: true},
	}
	for op, allowed := range grid {
		for _, s := range allStates {
			err := Allowed(op, s)
			if allowed[s] {
				assert.NoError(t, err, "%s should be allowed in %s", op, s)
			} else {
				assert.Error(t, err, "%s should be rejected in %s", op, s)
			}
		}
	}

	// amend and renew invert the editable tiers: any locked state qualifies
	for _, op := range []Op{OpAmend, OpRenew} {
		for _, s := range allStates {
			err := Allowed(op, s)
			if s.Updatable() || s.Approvable() {
				assert.Error(t, err, "%s should be rejected in editable state %s", op, s)
			} else {
				assert.NoError(t, err, "%s should be allowed in %s", op, s)
			}
		}
	}
}

func TestAllowed_ViolationsAreClientErrors(t *testing.T) {
	err := Allowed(OpApprove, StateDraft)
	assert.Error(t, err)
	assert.True(t, IsClientError(err), "precondition violations map to client errors")
}

func TestRequiredRight(t *testing.T) {
	assert.Equal(t, RightSubmit, requiredRight(OpSubmit))
	assert.Equal(t, RightApprove, requiredRight(OpApprove))
	assert.Equal(t, RightApprove, requiredRight(OpCounter))
	assert.Equal(t, RightAmend, requiredRight(OpAmend))
	assert.Equal(t, RightRenew, requiredRight(OpRenew))
	assert.Equal(t, RightDelete, requiredRight(OpDelete))
	assert.Equal(t, RightUpdate, requiredRight(OpUpdate))
}
