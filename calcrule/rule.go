/*
rule.go - Calculation rule registry

PURPOSE:
  Contribution plans reference their premium calculation by class name.
  The registry resolves a valuation request to the first rule that claims
  it and satisfies the contract.RuleInvoker seam the valuation engine
  calls into.

RESOLUTION ORDER:
  Rules are consulted in registration order; the default registry checks
  the flat forfait rule before the percentage-of-income rule so confirmed
  forfait enrollments are not re-derived from (zeroed) incomes.

SEE ALSO:
  - percentage.go, forfait.go: the built-in rules
*/
package calcrule

import (
	"context"

	"github.com/warp/contract-engine/contract"
)

// Rule is one pluggable premium calculation.
type Rule interface {
	// Name is the class name contribution plans reference.
	Name() string

	// Applies reports whether this rule claims the request.
	Applies(req contract.RuleRequest) bool

	// Calculate produces the premium amount for one valuation unit.
	Calculate(req contract.RuleRequest) (contract.RuleResult, error)
}

// Registry resolves and runs calculation rules. It implements
// contract.RuleInvoker.
type Registry struct {
	rules []Rule
}

// NewRegistry builds a registry with the given rules, consulted in order.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// DefaultRegistry carries the built-in rules in their resolution order.
func DefaultRegistry() *Registry {
	return NewRegistry(Forfait{}, PercentageOfIncome{})
}

// Invoke finds the first applicable rule. No claiming rule means the unit
// contributes nothing; the engine receives a nil result.
func (r *Registry) Invoke(_ context.Context, req contract.RuleRequest) (*contract.RuleResult, error) {
	for _, rule := range r.rules {
		if !rule.Applies(req) {
			continue
		}
		res, err := rule.Calculate(req)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	return nil, nil
}
