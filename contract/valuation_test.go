/*
valuation_test.go - Valuation engine tests

PURPOSE:
  Pins down the dry valuation path: re-running it on unchanged enrollment
  rows yields the same total and never persists anything.
*/
package contract_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/calcrule"
	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/contract/store"
)

func newValuationEngine(mem *store.Memory) *contract.ValuationEngine {
	return &contract.ValuationEngine{
		Store:   mem,
		Rules:   calcrule.DefaultRegistry(),
		Periods: &contract.PeriodGenerator{Store: mem},
	}
}

func TestValuate_DryRunIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	mem.AddProduct(contract.Product{ID: "PR-1", Code: "HP", InsurancePeriod: 1})
	mem.AddPlan(contract.ContributionPlan{
		ID: "CP-1", Code: "CP-1", Periodicity: 1, ProductID: "PR-1",
		EmployerContribution: decimal.NewFromInt(10),
		EmployeeContribution: decimal.NewFromInt(5),
	})
	mem.AddBundle(contract.ContributionPlanBundle{ID: "B-1", Code: "B-1", Periodicity: 1}, "CP-1")

	e := newValuationEngine(mem)
	c := &contract.Contract{ID: "C-1", PolicyHolderID: "PH-1"}
	details := []*contract.ContractDetails{{
		ID: "CD-1", ContractID: "C-1", InsureeID: "I-1", BundleID: "B-1",
		IsConfirmed: true,
		Input: contract.CalculationInput{
			CalculationRule: contract.CalculationRuleInput{
				Income: decimal.NewFromInt(100000),
			},
		},
	}}
	ctx := context.Background()

	// WHEN the same rows are dry-valued twice
	first, err := e.Valuate(ctx, c, details, false)
	require.NoError(t, err)
	second, err := e.Valuate(ctx, c, details, false)
	require.NoError(t, err)

	// THEN both passes agree on the same total
	assert.True(t, first.Total.Equal(decimal.NewFromInt(15000)),
		"100000 at 10%%+5%% is 15000, got %s", first.Total)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Len(t, second.PlanDetails, len(first.PlanDetails))

	// AND the dry run persisted no valuation units
	units, err := mem.PlanDetailsByContract(ctx, "C-1")
	require.NoError(t, err)
	assert.Empty(t, units)
}
