/*
rule_test.go - Calculation rule and registry tests
*/
package calcrule_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/calcrule"
	"github.com/warp/contract-engine/contract"
)

func percentageRequest(income, employer, employee int64) contract.RuleRequest {
	return contract.RuleRequest{
		Mode:     contract.ModeCreate,
		Contract: &contract.Contract{},
		Details: &contract.ContractDetails{
			Input: contract.CalculationInput{
				CalculationRule: contract.CalculationRuleInput{
					Income: decimal.NewFromInt(income),
				},
			},
		},
		Plan: &contract.ContributionPlan{
			CalcRule:             calcrule.RulePercentageOfIncome,
			EmployerContribution: decimal.NewFromInt(employer),
			EmployeeContribution: decimal.NewFromInt(employee),
		},
	}
}

func TestPercentageOfIncome(t *testing.T) {
	// 100000 at 10% employer + 5% employee
	res, err := calcrule.DefaultRegistry().Invoke(context.Background(), percentageRequest(100000, 10, 5))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(15000)), "got %s", res.Amount)
}

func TestPercentageOfIncome_IsTheFallbackRule(t *testing.T) {
	// a plan naming no class still lands on the income rule
	req := percentageRequest(80000, 8, 2)
	req.Plan.CalcRule = ""

	res, err := calcrule.DefaultRegistry().Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(8000)))
}

func TestForfait_ReadsTheFlatAmount(t *testing.T) {
	req := contract.RuleRequest{
		Mode:     contract.ModeCreate,
		Contract: &contract.Contract{},
		Details: &contract.ContractDetails{
			Input: contract.CalculationInput{
				ForfaitRule: contract.ForfaitRuleInput{Total: decimal.NewFromInt(45000)},
			},
		},
		Plan: &contract.ContributionPlan{CalcRule: calcrule.RuleForfait},
	}

	res, err := calcrule.DefaultRegistry().Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(45000)))
}

func TestForfait_ClaimsBundledContractsBeforeIncome(t *testing.T) {
	// GIVEN a contract in bundled flat-rate mode whose enrollment carries a
	// confirmed forfait but a zeroed income
	req := contract.RuleRequest{
		Mode:     contract.ModeCreate,
		Contract: &contract.Contract{UseBundleContributionPlanAmount: true},
		Details: &contract.ContractDetails{
			Input: contract.CalculationInput{
				ForfaitRule: contract.ForfaitRuleInput{Total: decimal.NewFromInt(12000)},
			},
		},
		Plan: &contract.ContributionPlan{
			EmployerContribution: decimal.NewFromInt(10),
			EmployeeContribution: decimal.NewFromInt(5),
		},
	}

	// WHEN the default registry resolves the request
	res, err := calcrule.DefaultRegistry().Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)

	// THEN the forfait wins; the pairing is not re-derived from income
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(12000)), "got %s", res.Amount)
}

func TestRegistry_NoClaimingRuleYieldsNil(t *testing.T) {
	// forfait plan without a confirmed forfait amount: nothing claims it
	req := contract.RuleRequest{
		Mode:     contract.ModeCreate,
		Contract: &contract.Contract{},
		Details:  &contract.ContractDetails{},
		Plan:     &contract.ContributionPlan{CalcRule: calcrule.RuleForfait},
	}

	res, err := calcrule.DefaultRegistry().Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res, "unclaimed pairings contribute zero through a nil result")
}
