/*
valuation.go - Contract valuation engine

PURPOSE:
  Computes a contract's total premium by expanding every confirmed
  enrollment row into one valuation unit (ContributionPlanDetails) per
  member plan of its bundle, and running the plan's calculation rule on
  each unit.

TWO PATHS:
  - dry valuation (save=false): used at submission to fill
    amount_notified. Nothing is persisted.
  - saving valuation (save=true): used at approval to fill
    amount_rectified. Each unit is persisted, policy periods are generated
    to cover it, and when coverage splits across several policies the
    unit's amount is replaced by per-period proportional amounts
    (months_in_period / plan periodicity, rule re-run in update mode).

AMENDMENT DELTA:
  An amendment generation (amendment > 0) owes only the difference between
  its freshly valued total and what was already received on the previous
  generation's payment.

SEE ALSO:
  - calcrule.go: the rule invocation seam
  - period.go: policy period generation
*/
package contract

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValuationEngine drives calculation rules over a contract's enrollment
// rows.
type ValuationEngine struct {
	Store   Store
	Rules   RuleInvoker
	Periods *PeriodGenerator
}

// ValuationResult is the outcome of one valuation pass.
type ValuationResult struct {
	Total       decimal.Decimal
	PlanDetails []*ContributionPlanDetails
}

// Valuate values the given enrollment rows. With save=true the valuation
// units are persisted and backed by generated policy periods; the caller
// is expected to run inside WithTx.
func (e *ValuationEngine) Valuate(ctx context.Context, c *Contract, details []*ContractDetails, save bool) (*ValuationResult, error) {
	total := decimal.Zero
	var units []*ContributionPlanDetails

	for _, d := range details {
		plans, err := e.Store.BundlePlans(ctx, d.BundleID)
		if err != nil {
			return nil, err
		}
		for _, plan := range plans {
			unit := &ContributionPlanDetails{
				DetailsID: d.ID,
				PlanID:    plan.ID,
			}
			amount := decimal.Zero
			rc, err := e.Rules.Invoke(ctx, RuleRequest{
				Mode:        ModeCreate,
				Contract:    c,
				Details:     d,
				PlanDetails: unit,
				Plan:        plan,
			})
			if err != nil {
				return nil, err
			}
			if rc != nil {
				amount = rc.Amount
			}
			unit.CalculatedAmount = amount
			total = total.Add(amount)

			if !save {
				units = append(units, unit)
				continue
			}
			total, units, err = e.persistUnit(ctx, c, d, plan, unit, amount, total, units)
			if err != nil {
				return nil, err
			}
		}
	}

	if c.Amendment > 0 {
		var err error
		total, err = e.amendmentDelta(ctx, c, total)
		if err != nil {
			return nil, err
		}
	}

	return &ValuationResult{Total: total, PlanDetails: units}, nil
}

// persistUnit stores one valuation unit, generates the policy periods
// covering it and, on a period split, replaces the undivided amount with
// proportional per-period amounts.
func (e *ValuationEngine) persistUnit(ctx context.Context, c *Contract, d *ContractDetails, plan *ContributionPlan, unit *ContributionPlanDetails, amount, total decimal.Decimal, units []*ContributionPlanDetails) (decimal.Decimal, []*ContributionPlanDetails, error) {
	insuree, err := e.Store.GetInsuree(ctx, d.InsureeID)
	if err != nil {
		return total, units, err
	}
	if insuree == nil {
		return total, units, fmt.Errorf("insuree %s: %w", d.InsureeID, ErrNotFound)
	}
	product, err := e.Store.GetProduct(ctx, plan.ProductID)
	if err != nil {
		return total, units, err
	}
	if product == nil {
		return total, units, fmt.Errorf("product %s: %w", plan.ProductID, ErrNotFound)
	}

	// the unit covers the contract's first month; policy generation takes
	// over from there
	unit.DateValidFrom = c.DateValidFrom
	unit.DateValidTo = replaceDay(c.DateValidFrom, daysIn(c.DateValidFrom.Year(), c.DateValidFrom.Month()))

	policies, err := e.Periods.CoveringPolicies(ctx, c, insuree, product, plan, unit.DateValidFrom, unit.DateValidTo)
	if err != nil {
		return total, units, err
	}

	if len(policies) <= 1 {
		if len(policies) == 1 {
			unit.PolicyID = policies[0].ID
		}
		if err := e.Store.CreatePlanDetails(ctx, unit); err != nil {
			return total, units, err
		}
		return total, append(units, unit), nil
	}

	// period split: back out the undivided amount and rebuild it per
	// policy, scaled by each period's share of the plan periodicity
	total = total.Sub(amount)
	periodicity := decimal.NewFromInt(int64(plan.Periodicity))
	for _, p := range policies {
		sub := &ContributionPlanDetails{
			DetailsID:     d.ID,
			PlanID:        plan.ID,
			PolicyID:      p.ID,
			DateValidFrom: p.StartDate,
			DateValidTo:   p.ExpiryDate,
		}
		rc, err := e.Rules.Invoke(ctx, RuleRequest{
			Mode:        ModeUpdate,
			Contract:    c,
			Details:     d,
			PlanDetails: sub,
			Plan:        plan,
		})
		if err != nil {
			return total, units, err
		}
		if rc != nil {
			months := decimal.NewFromInt(int64(monthsBetween(sub.DateValidFrom, sub.DateValidTo)))
			sub.CalculatedAmount = rc.Amount.Mul(months).Div(periodicity)
			total = total.Add(sub.CalculatedAmount)
		}
		if err := e.Store.CreatePlanDetails(ctx, sub); err != nil {
			return total, units, err
		}
		units = append(units, sub)
	}
	return total, units, nil
}

// amendmentDelta subtracts what the previous generation's payment already
// received from the freshly valued total.
func (e *ValuationEngine) amendmentDelta(ctx context.Context, c *Contract, total decimal.Decimal) (decimal.Decimal, error) {
	previous, err := e.Store.ContractByCodeAndAmendment(ctx, c.Code, c.Amendment-1)
	if err != nil {
		return total, err
	}
	if previous == nil {
		return total, nil
	}
	prevUnits, err := e.Store.PlanDetailsByContract(ctx, previous.ID)
	if err != nil {
		return total, err
	}
	for _, u := range prevUnits {
		if u.ContributionID == "" {
			continue
		}
		payment, err := e.Store.PaymentForContribution(ctx, u.ContributionID)
		if err != nil {
			return total, err
		}
		if payment != nil {
			total = total.Sub(payment.ReceivedAmount)
		}
		break
	}
	return total, nil
}
