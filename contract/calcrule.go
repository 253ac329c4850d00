/*
calcrule.go - Calculation rule invocation seam

PURPOSE:
  The valuation engine never computes premiums itself. Each contribution
  plan names a calculation rule class; the engine resolves the rule through
  a RuleInvoker and hands it one contract-details/plan pairing at a time.

MODES:
  - ModeCreate: first valuation of a pairing, rule returns the full amount.
  - ModeUpdate: re-valuation on approval (rates or incomes may have moved
    since submission), rule recomputes from current inputs.

SEE ALSO:
  - valuation.go: the engine driving the invoker
  - calcrule/: concrete rule implementations and the registry
*/
package contract

import (
	"context"

	"github.com/shopspring/decimal"
)

// CalcMode selects the rule invocation context.
type CalcMode string

const (
	ModeCreate CalcMode = "create"
	ModeUpdate CalcMode = "update"
)

// RuleRequest carries everything a calculation rule may inspect.
type RuleRequest struct {
	Mode        CalcMode
	Contract    *Contract
	Details     *ContractDetails
	PlanDetails *ContributionPlanDetails
	Plan        *ContributionPlan
}

// RuleResult is a single rule evaluation outcome.
type RuleResult struct {
	Amount decimal.Decimal
}

// RuleInvoker resolves a plan's calculation rule and runs it. A nil result
// with a nil error means no rule claimed the plan; the engine treats the
// pairing as contributing zero.
type RuleInvoker interface {
	Invoke(ctx context.Context, req RuleRequest) (*RuleResult, error)
}

// RuleInvokerFunc adapts a function to the RuleInvoker interface.
type RuleInvokerFunc func(ctx context.Context, req RuleRequest) (*RuleResult, error)

func (f RuleInvokerFunc) Invoke(ctx context.Context, req RuleRequest) (*RuleResult, error) {
	return f(ctx, req)
}
