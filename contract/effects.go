/*
effects.go - Post-transition effect pipeline

PURPOSE:
  Approval is not a single state flip. It triggers an ordered pipeline:

    1. saving valuation            (amount_due)
    2. contribution creation       (one premium per valuation unit)
    3. penalty window check        (late declaration flag)
    4. payment creation            (one payment + per-unit details)
    5. dates and state             (EXECUTABLE, date_approved, payment due)

  Steps 1-5 run inside the caller's transaction: any failure rolls the
  contract back to its pre-approval state. Notification and ERP push are
  NOT part of this pipeline; the service fires them after commit and only
  logs their failures.

SEE ALSO:
  - service.go: Approve() drives the pipeline inside WithTx
*/
package contract

import (
	"context"
	"fmt"
	"time"
)

// approval carries the working state threaded through the pipeline steps.
type approval struct {
	actor    Actor
	contract *Contract
	details  []*ContractDetails
	units    []*ContributionPlanDetails
	payment  *Payment
	now      time.Time
}

// approveStep is one named, ordered pipeline stage.
type approveStep struct {
	name string
	run  func(ctx context.Context, st Store, a *approval, v *ValuationEngine) error
}

// approvePipeline lists the transactional stages in execution order.
var approvePipeline = []approveStep{
	{"valuate", stepValuate},
	{"contributions", stepCreateContributions},
	{"penalty", stepPenalty},
	{"payment", stepCreatePayment},
	{"finalize", stepFinalize},
}

func runApprovePipeline(ctx context.Context, st Store, a *approval, v *ValuationEngine) error {
	for _, step := range approvePipeline {
		if err := step.run(ctx, st, a, v); err != nil {
			return fmt.Errorf("approve step %s: %w", step.name, err)
		}
	}
	return nil
}

// stepValuate runs the saving valuation and fixes amount_due at two
// decimals.
func stepValuate(ctx context.Context, st Store, a *approval, v *ValuationEngine) error {
	engine := *v
	engine.Store = st
	engine.Periods = &PeriodGenerator{Store: st, Now: func() time.Time { return a.now }}
	res, err := engine.Valuate(ctx, a.contract, a.details, true)
	if err != nil {
		return err
	}
	a.units = res.PlanDetails
	a.contract.AmountDue = res.Total.Round(2)
	return nil
}

// stepCreateContributions creates one premium per valuation unit that has
// none yet and links the unit to it.
func stepCreateContributions(ctx context.Context, st Store, a *approval, _ *ValuationEngine) error {
	for _, unit := range a.units {
		if unit.ContributionID != "" {
			continue
		}
		contribution := &Contribution{
			PolicyID: unit.PolicyID,
			Amount:   unit.CalculatedAmount,
			PayDate:  a.now,
			PayType:  " ",
		}
		if err := st.CreateContribution(ctx, contribution); err != nil {
			return err
		}
		unit.ContributionID = contribution.ID
		if err := st.UpdatePlanDetails(ctx, unit); err != nil {
			return err
		}
	}
	return nil
}

// stepPenalty flags the contract when it was created after the product's
// declaration window.
func stepPenalty(ctx context.Context, st Store, a *approval, _ *ValuationEngine) error {
	cfg, err := firstProductConfig(ctx, st, a.units)
	if err != nil {
		return err
	}
	if PenaltyApplies(cfg, a.contract.DateCreated) {
		a.contract.PenaltyRaised = true
		raised := a.now
		a.contract.PenaltyRaisedDate = &raised
	}
	return nil
}

// stepCreatePayment creates the contract's payment with one detail row per
// valuation unit.
func stepCreatePayment(ctx context.Context, st Store, a *approval, _ *ValuationEngine) error {
	payment := &Payment{
		ContractID:       a.contract.ID,
		ExpectedAmount:   a.contract.AmountDue,
		RequestDate:      a.now,
		PaymentReference: a.contract.PaymentReference,
	}
	if err := st.CreatePayment(ctx, payment); err != nil {
		return err
	}
	for _, unit := range a.units {
		plan, err := st.GetPlan(ctx, unit.PlanID)
		if err != nil {
			return err
		}
		product, err := st.GetProduct(ctx, plan.ProductID)
		if err != nil {
			return err
		}
		d, err := st.GetDetails(ctx, unit.DetailsID)
		if err != nil {
			return err
		}
		insuree, err := st.GetInsuree(ctx, d.InsureeID)
		if err != nil {
			return err
		}
		if err := st.CreatePaymentDetail(ctx, &PaymentDetail{
			PaymentID:       payment.ID,
			ProductCode:     product.Code,
			InsuranceNumber: insuree.InsuranceNumber,
			ExpectedAmount:  unit.CalculatedAmount,
			ContributionID:  unit.ContributionID,
		}); err != nil {
			return err
		}
	}
	a.payment = payment
	return nil
}

// stepFinalize moves the contract to EXECUTABLE with its approval dates
// and audit entry.
func stepFinalize(ctx context.Context, st Store, a *approval, _ *ValuationEngine) error {
	cfg, err := firstProductConfig(ctx, st, a.units)
	if err != nil {
		return err
	}
	approved := a.now
	due := paymentDueDate(cfg, a.now)

	c := a.contract
	c.State = StateExecutable
	c.DateApproved = &approved
	c.DatePaymentDue = &due
	c.Audit = c.Audit.Append(a.actor.Username, a.now, fmt.Sprintf("contract updated - state %d", c.State))
	return st.UpdateContract(ctx, c)
}

// firstProductConfig resolves the product configuration behind the first
// valuation unit; contracts value one product family at a time.
func firstProductConfig(ctx context.Context, st Store, units []*ContributionPlanDetails) (*ProductConfig, error) {
	if len(units) == 0 {
		return nil, nil
	}
	plan, err := st.GetPlan(ctx, units[0].PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}
	product, err := st.GetProduct(ctx, plan.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}
	return product.Config, nil
}

// paymentDueDate aligns the payment deadline to the product's payment
// cutoff day in the month after approval; without configuration it falls
// back to the end of the next month.
func paymentDueDate(cfg *ProductConfig, approved time.Time) time.Time {
	next := addMonths(approved, 1)
	if cfg != nil && cfg.PaymentEndDate != nil {
		return replaceDay(next, cfg.PaymentEndDate.Day())
	}
	return replaceDay(next, daysIn(next.Year(), next.Month()))
}
