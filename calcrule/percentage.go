// percentage.go - premium as a share of declared income
package calcrule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/contract"
)

// RulePercentageOfIncome is the class name plans use to select the
// income-share rule.
const RulePercentageOfIncome = "percentage_of_income"

var hundred = decimal.NewFromInt(100)

// PercentageOfIncome computes income x (employer rate + employee rate) /
// 100 from the enrollment's declared income and the plan's rates. It is
// the fallback rule for plans that name no class.
type PercentageOfIncome struct{}

func (PercentageOfIncome) Name() string { return RulePercentageOfIncome }

func (PercentageOfIncome) Applies(req contract.RuleRequest) bool {
	if req.Plan == nil || req.Details == nil {
		return false
	}
	return req.Plan.CalcRule == "" || req.Plan.CalcRule == RulePercentageOfIncome
}

func (PercentageOfIncome) Calculate(req contract.RuleRequest) (contract.RuleResult, error) {
	income := req.Details.Input.CalculationRule.Income
	rate := req.Plan.EmployerContribution.Add(req.Plan.EmployeeContribution)
	return contract.RuleResult{Amount: income.Mul(rate).Div(hundred)}, nil
}
