/*
generation_test.go - Policy chain generation and waiting-period bookkeeping

PURPOSE:
  Drives the period loop end to end against the in-memory store: the chain
  of LOCKED policies produced for a coverage window must advance without
  overlap until the window is covered, the first policy a family ever gets
  on an annual product starts three months late, and the per-insuree
  waiting period counts down by plan periodicity.
*/
package contract_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/contract/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// POLICY CHAIN GENERATION
// =============================================================================

func TestGenerate_MonthlyChainCoversWindow(t *testing.T) {
	mem := store.NewMemory()
	g := &contract.PeriodGenerator{Store: mem}
	c := &contract.Contract{ID: "C-1", PolicyHolderID: "PH-1"}
	insuree := &contract.Insuree{ID: "I-1", FamilyID: "F-1"}
	product := &contract.Product{ID: "PR-1", InsurancePeriod: 1}

	// WHEN generating coverage for the first half of the year
	policies, frontier, err := g.Generate(context.Background(), c, insuree, product,
		day(2026, time.January, 1), day(2026, time.June, 30))
	require.NoError(t, err)

	// THEN the loop chains three periods off each expiry
	require.Len(t, policies, 3)
	assert.Equal(t, day(2026, time.February, 6), policies[0].StartDate)
	assert.Equal(t, day(2026, time.March, 5), policies[0].ExpiryDate)
	assert.Equal(t, day(2026, time.April, 6), policies[1].StartDate)
	assert.Equal(t, day(2026, time.May, 5), policies[1].ExpiryDate)
	assert.Equal(t, day(2026, time.June, 6), policies[2].StartDate)
	assert.Equal(t, day(2026, time.July, 5), policies[2].ExpiryDate)

	// AND the chain never overlaps and the frontier passed the window
	for i := 1; i < len(policies); i++ {
		assert.True(t, policies[i].StartDate.After(policies[i-1].ExpiryDate),
			"period %d must start after period %d expires", i, i-1)
	}
	assert.False(t, frontier.Before(day(2026, time.June, 30)))

	// AND every policy is persisted LOCKED in stage NEW for the family
	for _, p := range policies {
		assert.Equal(t, contract.PolicyLocked, p.Status)
		assert.Equal(t, contract.StageNew, p.Stage)
		assert.Equal(t, contract.FamilyID("F-1"), p.FamilyID)
		stored, err := mem.GetPolicy(context.Background(), p.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
	}
}

func TestGenerate_QuarterlyChain(t *testing.T) {
	mem := store.NewMemory()
	g := &contract.PeriodGenerator{Store: mem}
	c := &contract.Contract{ID: "C-1", PolicyHolderID: "PH-1"}
	insuree := &contract.Insuree{ID: "I-1", FamilyID: "F-1"}
	product := &contract.Product{ID: "PR-1", InsurancePeriod: 3}

	policies, frontier, err := g.Generate(context.Background(), c, insuree, product,
		day(2026, time.January, 1), day(2026, time.December, 31))
	require.NoError(t, err)

	require.Len(t, policies, 2)
	assert.Equal(t, day(2026, time.April, 6), policies[0].StartDate)
	assert.Equal(t, day(2026, time.July, 5), policies[0].ExpiryDate)
	assert.Equal(t, day(2026, time.October, 6), policies[1].StartDate)
	assert.Equal(t, day(2027, time.January, 5), policies[1].ExpiryDate)

	assert.True(t, policies[1].StartDate.After(policies[0].ExpiryDate))
	assert.False(t, frontier.Before(day(2026, time.December, 31)))
}

func TestGenerate_FirstFamilyPolicyStartsThreeMonthsLate(t *testing.T) {
	mem := store.NewMemory()
	g := &contract.PeriodGenerator{Store: mem}
	c := &contract.Contract{ID: "C-1", PolicyHolderID: "PH-1"}
	insuree := &contract.Insuree{ID: "I-1", FamilyID: "F-1"}
	product := &contract.Product{ID: "PR-1", InsurancePeriod: 12}

	// GIVEN a family that never had a policy, WHEN the annual chain starts
	policies, _, err := g.Generate(context.Background(), c, insuree, product,
		day(2026, time.January, 1), day(2026, time.February, 1))
	require.NoError(t, err)
	require.Len(t, policies, 1)

	// THEN the start is delayed three months while the expiry stays put
	assert.Equal(t, day(2026, time.August, 6), policies[0].StartDate)
	assert.Equal(t, day(2027, time.May, 5), policies[0].ExpiryDate)
}

func TestGenerate_CoveredFamilyKeepsPlainStart(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.CreatePolicy(context.Background(), &contract.Policy{
		FamilyID:  "F-1",
		ProductID: "PR-0",
		Status:    contract.PolicyActive,
		StartDate: day(2025, time.January, 6),
	}))

	g := &contract.PeriodGenerator{Store: mem}
	c := &contract.Contract{ID: "C-1", PolicyHolderID: "PH-1"}
	insuree := &contract.Insuree{ID: "I-1", FamilyID: "F-1"}
	product := &contract.Product{ID: "PR-1", InsurancePeriod: 12}

	policies, _, err := g.Generate(context.Background(), c, insuree, product,
		day(2026, time.January, 1), day(2026, time.February, 1))
	require.NoError(t, err)
	require.Len(t, policies, 1)

	assert.Equal(t, day(2026, time.May, 6), policies[0].StartDate)
	assert.Equal(t, day(2027, time.May, 5), policies[0].ExpiryDate)
}

// =============================================================================
// WAITING PERIOD BOOKKEEPING
// =============================================================================

func TestPolicyStatusForInsuree_MonthlyCountdown(t *testing.T) {
	mem := store.NewMemory()
	mem.AddWaitingPeriod(contract.InsureeWaitingPeriod{
		PolicyHolderID: "PH-1", InsureeID: "I-1",
		WaitingPeriod: 2, Periodicity: 1,
	})
	ctx := context.Background()

	// two months remain: the first step leaves one, still LOCKED
	status, err := contract.PolicyStatusForInsuree(ctx, mem, "I-1", "PH-1")
	require.NoError(t, err)
	assert.Equal(t, contract.PolicyLocked, status)

	wp, err := mem.GetWaitingPeriod(ctx, "I-1", "PH-1")
	require.NoError(t, err)
	require.NotNil(t, wp)
	assert.Equal(t, 1, wp.WaitingPeriod)

	// the next step exhausts it: READY
	status, err = contract.PolicyStatusForInsuree(ctx, mem, "I-1", "PH-1")
	require.NoError(t, err)
	assert.Equal(t, contract.PolicyReady, status)

	// exhausted stays READY
	status, err = contract.PolicyStatusForInsuree(ctx, mem, "I-1", "PH-1")
	require.NoError(t, err)
	assert.Equal(t, contract.PolicyReady, status)
}

func TestPolicyStatusForInsuree_QuarterlyStep(t *testing.T) {
	mem := store.NewMemory()
	mem.AddWaitingPeriod(contract.InsureeWaitingPeriod{
		PolicyHolderID: "PH-1", InsureeID: "I-1",
		WaitingPeriod: 3, Periodicity: 3,
	})

	status, err := contract.PolicyStatusForInsuree(context.Background(), mem, "I-1", "PH-1")
	require.NoError(t, err)
	assert.Equal(t, contract.PolicyReady, status, "one quarterly step clears a three-month wait")
}

func TestPolicyStatusForInsuree_AnnualZeroesImmediately(t *testing.T) {
	mem := store.NewMemory()
	mem.AddWaitingPeriod(contract.InsureeWaitingPeriod{
		PolicyHolderID: "PH-1", InsureeID: "I-1",
		WaitingPeriod: 5, Periodicity: 12,
	})
	ctx := context.Background()

	status, err := contract.PolicyStatusForInsuree(ctx, mem, "I-1", "PH-1")
	require.NoError(t, err)
	assert.Equal(t, contract.PolicyReady, status)

	wp, err := mem.GetWaitingPeriod(ctx, "I-1", "PH-1")
	require.NoError(t, err)
	require.NotNil(t, wp)
	assert.Equal(t, 0, wp.WaitingPeriod)
}

func TestPolicyStatusForInsuree_MissingRecordLocks(t *testing.T) {
	mem := store.NewMemory()

	status, err := contract.PolicyStatusForInsuree(context.Background(), mem, "I-9", "PH-1")
	require.NoError(t, err)
	assert.Equal(t, contract.PolicyLocked, status)
}
