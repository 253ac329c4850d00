/*
period.go - Policy period generation

PURPOSE:
  Turns one contract/plan pairing into the chain of policy periods that
  covers the contract's validity window. Period shape depends on the
  product's insurance period (1, 3 or 12 months):

  - the period start day defaults to 6, or PaymentEndDate.day+1 when the
    product configures a payment cutoff;
  - the gap between contract start and first period varies per insurance
    period, the product's waiting period and whether the contract chains
    from a parent (amendment/renewal);
  - the expiry day is start day - 1; a start day of 1 pushes the expiry to
    the last day of the previous month.

  Month arithmetic is calendar-clamped: Jan 31 + 1 month = Feb 28/29,
  never Mar 2/3.

GENERATED POLICIES:
  Every period materializes as a LOCKED policy in stage NEW for the
  insuree's family, linked back to the contract through ContractPolicy.
  Activation happens later, on payment (see service.go).

SEE ALSO:
  - valuation.go: calls Generate when a pairing lacks coverage
*/
package contract

import (
	"context"
	"time"
)

// =============================================================================
// CLAMPED DATE ARITHMETIC
// =============================================================================

// daysIn returns the number of days of the month containing t.
func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addMonths shifts t by n calendar months, clamping the day to the target
// month's length.
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	month += time.Month(n)
	// normalize month into [Jan, Dec]
	year += (int(month) - 1) / 12
	month = time.Month((int(month)-1)%12 + 1)
	if int(month) <= 0 {
		month += 12
		year--
	}
	if max := daysIn(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// replaceDay pins t to the given day of its month. Day 0 rolls back to the
// last day of the previous month; a day past the month's end clamps to it.
func replaceDay(t time.Time, day int) time.Time {
	year, month, _ := t.Date()
	if day <= 0 {
		prev := addMonths(time.Date(year, month, 1, 0, 0, 0, 0, t.Location()), -1)
		return time.Date(prev.Year(), prev.Month(), daysIn(prev.Year(), prev.Month()), 0, 0, 0, 0, t.Location())
	}
	if max := daysIn(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// monthsBetween counts whole calendar months from a to b.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// =============================================================================
// PERIOD GENERATOR
// =============================================================================

const defaultStartPolicyDay = 6

// startPolicyDay derives the day of month on which generated periods begin.
func startPolicyDay(product *Product) int {
	if product.Config != nil && product.Config.PaymentEndDate != nil {
		return product.Config.PaymentEndDate.Day() + 1
	}
	return defaultStartPolicyDay
}

// PeriodGenerator creates the policy periods covering a contract.
type PeriodGenerator struct {
	Store Store
	Now   func() time.Time
}

func (g *PeriodGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// CoveringPolicies returns existing policies of the insuree's family and
// product that overlap the window, oldest first, plus the newly generated
// chain filling the remainder.
func (g *PeriodGenerator) CoveringPolicies(ctx context.Context, c *Contract, insuree *Insuree, product *Product, plan *ContributionPlan, validFrom, validTo time.Time) ([]*Policy, error) {
	existing, err := g.Store.PoliciesForFamilyProduct(ctx, insuree.FamilyID, product.ID, validFrom, validTo)
	if err != nil {
		return nil, err
	}
	out := append([]*Policy(nil), existing...)

	created, _, err := g.Generate(ctx, c, insuree, product, validFrom, validTo)
	if err != nil {
		return nil, err
	}
	return append(out, created...), nil
}

// Generate runs one pass of the period loop: it creates the LOCKED
// policies covering [lastCovered, validTo) and returns them together with
// the new coverage frontier.
func (g *PeriodGenerator) Generate(ctx context.Context, c *Contract, insuree *Insuree, product *Product, lastCovered, validTo time.Time) ([]*Policy, time.Time, error) {
	others, err := g.Store.ContractsByPolicyHolder(ctx, c.PolicyHolderID)
	if err != nil {
		return nil, lastCovered, err
	}
	hasOthers := false
	for _, other := range others {
		if other.ID != c.ID {
			hasOthers = true
			break
		}
	}

	var out []*Policy
	for lastCovered.Before(validTo) {
		start, expiry := g.periodBounds(c, product, lastCovered, hasOthers)

		if product.InsurancePeriod == 12 {
			// the first policy a family ever gets starts three months late,
			// its expiry stays where the plain computation put it
			hasPolicy, err := g.Store.FamilyHasPolicy(ctx, insuree.FamilyID)
			if err != nil {
				return nil, lastCovered, err
			}
			if !hasPolicy {
				start = addMonths(start, 3)
			}
		}

		p := &Policy{
			FamilyID:      insuree.FamilyID,
			ProductID:     product.ID,
			Status:        PolicyLocked,
			Stage:         StageNew,
			EnrollDate:    start,
			StartDate:     start,
			EffectiveDate: start,
			ExpiryDate:    expiry,
		}
		if err := g.Store.CreatePolicy(ctx, p); err != nil {
			return nil, lastCovered, err
		}
		if err := g.Store.CreateContractPolicy(ctx, &ContractPolicy{
			ContractID:     c.ID,
			PolicyID:       p.ID,
			InsureeID:      insuree.ID,
			PolicyHolderID: c.PolicyHolderID,
		}); err != nil {
			return nil, lastCovered, err
		}
		out = append(out, p)
		lastCovered = expiry
	}
	return out, lastCovered, nil
}

// periodBounds computes one period's [start, expiry] from the coverage
// frontier, per insurance period.
func (g *PeriodGenerator) periodBounds(c *Contract, product *Product, lastCovered time.Time, hasOtherContracts bool) (start, expiry time.Time) {
	day := startPolicyDay(product)

	switch product.InsurancePeriod {
	case 1:
		start = addMonths(replaceDay(lastCovered, day), 1)
		expiry = replaceDay(addMonths(start, product.InsurancePeriod), day-1)

	case 3:
		if c.ParentID != "" {
			// chained contract: one-month gap, coverage stretched a month
			start = addMonths(replaceDay(lastCovered, day), 1)
			expiry = replaceDay(addMonths(start, product.InsurancePeriod+1), day-1)
		} else {
			gap := 3
			if product.PolicyWaitingPeriod > 0 {
				gap = product.PolicyWaitingPeriod
			}
			start = addMonths(replaceDay(lastCovered, day), gap)
			expiry = replaceDay(addMonths(start, product.InsurancePeriod), day-1)
		}

	case 12:
		gap := 4
		if product.PolicyWaitingPeriod > 0 {
			gap = product.PolicyWaitingPeriod
		}
		start = addMonths(lastCovered, gap)
		if hasOtherContracts {
			start = addMonths(start, gap-6)
		}
		start = replaceDay(start, day)
		expiry = replaceDay(addMonths(start, product.InsurancePeriod), day-1)

	default:
		start = lastCovered
		expiry = addMonths(lastCovered, product.InsurancePeriod)
	}
	return start, expiry
}

// =============================================================================
// WAITING PERIOD
// =============================================================================

// PolicyStatusForInsuree consumes one periodicity step of the insuree's
// waiting period and reports whether the next policy is READY or stays
// LOCKED. Missing waiting-period records lock by default.
func PolicyStatusForInsuree(ctx context.Context, s Store, insuree InsureeID, holder PolicyHolderID) (PolicyStatus, error) {
	wp, err := s.GetWaitingPeriod(ctx, insuree, holder)
	if err != nil {
		return PolicyLocked, err
	}
	if wp == nil {
		return PolicyLocked, nil
	}

	remaining := wp.WaitingPeriod
	switch wp.Periodicity {
	case 1, 3:
		if remaining > 0 {
			remaining -= wp.Periodicity
		}
	case 12:
		remaining = 0
	}

	wp.WaitingPeriod = remaining
	if err := s.UpdateWaitingPeriod(ctx, wp); err != nil {
		return PolicyLocked, err
	}
	if remaining == 0 {
		return PolicyReady, nil
	}
	return PolicyLocked, nil
}
