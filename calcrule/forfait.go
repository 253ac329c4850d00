// forfait.go - flat-rate premium from a confirmed forfait split
package calcrule

import "github.com/warp/contract-engine/contract"

// RuleForfait is the class name plans use to select the flat-rate rule.
const RuleForfait = "forfait"

// Forfait reads the flat amount stamped on the enrollment row when the
// contract runs in bundled flat-rate mode. It is consulted before the
// income rule so a confirmed forfait row never falls back to its zeroed
// income.
type Forfait struct{}

func (Forfait) Name() string { return RuleForfait }

func (Forfait) Applies(req contract.RuleRequest) bool {
	if req.Details == nil || !req.Details.Input.ForfaitRule.Total.IsPositive() {
		return false
	}
	if req.Plan != nil && req.Plan.CalcRule == RuleForfait {
		return true
	}
	return req.Contract != nil && req.Contract.UseBundleContributionPlanAmount
}

func (Forfait) Calculate(req contract.RuleRequest) (contract.RuleResult, error) {
	return contract.RuleResult{Amount: req.Details.Input.ForfaitRule.Total}, nil
}
