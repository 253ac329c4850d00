/*
memory_test.go - In-memory store behavior tests
*/
package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/contract/store"
)

func TestWithTx_RollsBackOnError(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	c := &contract.Contract{Code: "DBZV012026000001", PolicyHolderID: "PH-1", State: contract.StateDraft}
	require.NoError(t, mem.CreateContract(ctx, c))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(st contract.Store) error {
		loaded, err := st.GetContract(ctx, c.ID)
		require.NoError(t, err)
		loaded.State = contract.StateNegotiable
		require.NoError(t, st.UpdateContract(ctx, loaded))

		// the write is visible inside the transaction
		again, err := st.GetContract(ctx, c.ID)
		require.NoError(t, err)
		require.Equal(t, contract.StateNegotiable, again.State)

		return boom
	})
	require.ErrorIs(t, err, boom)

	// the failed transaction left no trace
	got, err := mem.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StateDraft, got.State)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	var id contract.ContractID
	err := mem.WithTx(ctx, func(st contract.Store) error {
		c := &contract.Contract{Code: "DBZV012026000002", PolicyHolderID: "PH-1", State: contract.StateDraft}
		if err := st.CreateContract(ctx, c); err != nil {
			return err
		}
		id = c.ID
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := mem.GetContract(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestWithTx_NestsFlat(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	// a nested WithTx joins the outer transaction instead of deadlocking
	err := mem.WithTx(ctx, func(outer contract.Store) error {
		return outer.WithTx(ctx, func(inner contract.Store) error {
			return inner.CreateContract(ctx, &contract.Contract{
				Code: "DBZV012026000003", PolicyHolderID: "PH-1", State: contract.StateDraft,
			})
		})
	})
	require.NoError(t, err)
}

func TestReads_ReturnCopies(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	c := &contract.Contract{Code: "DBZV012026000004", PolicyHolderID: "PH-1", State: contract.StateDraft}
	require.NoError(t, mem.CreateContract(ctx, c))

	// mutating a read result must not leak into the store
	first, err := mem.GetContract(ctx, c.ID)
	require.NoError(t, err)
	first.State = contract.StateTerminated

	second, err := mem.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StateDraft, second.State)
}

func TestSoftDelete_CascadesToDetails(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	c := &contract.Contract{Code: "DBZV012026000005", PolicyHolderID: "PH-1", State: contract.StateDraft}
	require.NoError(t, mem.CreateContract(ctx, c))
	d := &contract.ContractDetails{ContractID: c.ID, InsureeID: "I-1", BundleID: "B-1", DateCreated: time.Now()}
	require.NoError(t, mem.CreateDetails(ctx, d))
	u := &contract.ContributionPlanDetails{DetailsID: d.ID, PlanID: "CP-1"}
	require.NoError(t, mem.CreatePlanDetails(ctx, u))

	require.NoError(t, mem.SoftDeleteContract(ctx, c.ID))

	got, err := mem.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	details, err := mem.DetailsByContract(ctx, c.ID, false)
	require.NoError(t, err)
	assert.Empty(t, details)

	units, err := mem.PlanDetailsByContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestWaitingPeriod_ScopedToHolder(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	mem.AddWaitingPeriod(contract.InsureeWaitingPeriod{
		ID: "WP-1", PolicyHolderID: "PH-1", InsureeID: "I-1",
		WaitingPeriod: 2, Periodicity: 3,
	})

	wp, err := mem.GetWaitingPeriod(ctx, "I-1", "PH-1")
	require.NoError(t, err)
	require.NotNil(t, wp)
	assert.Equal(t, 2, wp.WaitingPeriod)

	// a different holder does not see it
	wp, err = mem.GetWaitingPeriod(ctx, "I-1", "PH-2")
	require.NoError(t, err)
	assert.Nil(t, wp)
}
