/*
lifecycle.go - Contract state machine

PURPOSE:
  Classifies every state into an editing tier and gates each transition on
  the contract's current state. The service consults this before touching
  anything, so a failed precondition never mutates the aggregate.

TIERS:
  - updatable:     DRAFT, REQUEST_FOR_INFORMATION, COUNTER
  - approvable:    NEGOTIABLE (elevated permission required)
  - cannot update: everything else; only the explicit transition
                   operations apply

SEE ALSO:
  - service.go: invokes Allowed() at the top of every transition
*/
package contract

import "time"

// =============================================================================
// RIGHTS CLASSIFICATION
// =============================================================================

// Updatable reports whether general edit rights suffice in this state.
func (s State) Updatable() bool {
	switch s {
	case StateDraft, StateRequestForInformation, StateCounter:
		return true
	}
	return false
}

// Approvable reports whether the state is editable under the elevated
// approve/ask-for-change permission.
func (s State) Approvable() bool { return s == StateNegotiable }

// Op is a lifecycle transition operation.
type Op string

const (
	OpUpdate    Op = "update"
	OpSubmit    Op = "submit"
	OpApprove   Op = "approve"
	OpCounter   Op = "counter"
	OpAmend     Op = "amend"
	OpRenew     Op = "renew"
	OpDelete    Op = "delete"
	OpTerminate Op = "terminate"
)

// Allowed checks the state precondition for op. A violation returns a
// ContractUpdateError carrying a caller-facing reason; nothing is mutated.
func Allowed(op Op, s State) error {
	switch op {
	case OpUpdate:
		if s.Updatable() || s.Approvable() {
			return nil
		}
		return updateErrorf("The contract cannot be modified in its current state (%s)!", s)
	case OpSubmit:
		if s.Updatable() {
			return nil
		}
		return updateErrorf("The contract cannot be submitted because of current state (%s)!", s)
	case OpApprove:
		if s.Approvable() {
			return nil
		}
		return updateErrorf("You cannot approve this contract! The status of contract is not Negotiable!")
	case OpCounter:
		if s.Approvable() {
			return nil
		}
		return updateErrorf("You cannot counter this contract! The status of contract is not Negotiable!")
	case OpAmend:
		if !s.Updatable() && !s.Approvable() {
			return nil
		}
		return updateErrorf("You cannot amend this contract! The contract is still editable in state %s!", s)
	case OpRenew:
		if !s.Updatable() && !s.Approvable() {
			return nil
		}
		return updateErrorf("You cannot renew this contract! The contract is still editable in state %s!", s)
	case OpDelete:
		if s.Updatable() || s.Approvable() {
			return nil
		}
		return updateErrorf("Contract in state %s cannot be deleted!", s)
	case OpTerminate:
		if s == StateEffective {
			return nil
		}
		return updateErrorf("Only effective contracts can be terminated (state is %s)!", s)
	}
	return updateErrorf("Unknown contract operation %q!", string(op))
}

// requiredRight maps a transition to the capability gating it.
func requiredRight(op Op) Right {
	switch op {
	case OpSubmit:
		return RightSubmit
	case OpApprove, OpCounter:
		return RightApprove
	case OpAmend:
		return RightAmend
	case OpRenew:
		return RightRenew
	case OpDelete:
		return RightDelete
	default:
		return RightUpdate
	}
}

// =============================================================================
// TYPED FIELD UPDATES
// =============================================================================

// UpdateRequest enumerates the fields a caller may change on a contract.
// Nil pointers leave the field untouched. Locked fields are rejected per
// tier rather than silently ignored.
type UpdateRequest struct {
	ID ContractID

	Code             *string // approvable tier only
	PolicyHolderID   *PolicyHolderID
	DateValidFrom    *time.Time
	DateValidTo      *time.Time
	PaymentReference *string
	PaymentDue       *time.Time

	UseBundleContributionPlanAmount *bool
}

// apply mutates c from the request. The state tier has been validated by
// the caller; only per-field locks are enforced here.
func (r *UpdateRequest) apply(c *Contract) error {
	if r.PolicyHolderID != nil && c.PolicyHolderID != "" && *r.PolicyHolderID != c.PolicyHolderID {
		return updateErrorf("You cannot update policy holder in contract!")
	}
	if r.Code != nil && *r.Code != c.Code && !c.State.Approvable() {
		return updateErrorf("You cannot update code in contract!")
	}

	if r.PolicyHolderID != nil && c.PolicyHolderID == "" {
		c.PolicyHolderID = *r.PolicyHolderID
	}
	if r.Code != nil && c.State.Approvable() {
		c.Code = *r.Code
	}
	if r.DateValidFrom != nil {
		c.DateValidFrom = *r.DateValidFrom
	}
	if r.DateValidTo != nil {
		c.DateValidTo = *r.DateValidTo
	}
	if r.PaymentReference != nil {
		c.PaymentReference = *r.PaymentReference
	}
	if r.PaymentDue != nil {
		due := *r.PaymentDue
		c.DatePaymentDue = &due
	}
	if r.UseBundleContributionPlanAmount != nil {
		c.UseBundleContributionPlanAmount = *r.UseBundleContributionPlanAmount
	}
	return nil
}
