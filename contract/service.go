/*
service.go - Contract aggregate service

PURPOSE:
  Thin orchestration layer binding the state machine, the valuation
  engine, the period generator and the code generator, plus the payment,
  notification and ERP collaborators.

RESULT ENVELOPE:
  Every operation returns Result{Success, Message, Detail, Data} instead
  of propagating errors; the transport layer translates the envelope.
  Permission and state-precondition failures are raised before any
  mutation.

TRANSACTION DISCIPLINE:
  Mutating transitions run inside Store.WithTx so a mid-transition failure
  leaves the contract untouched. Notification and ERP push happen after
  commit and only log their failures.

SEE ALSO:
  - lifecycle.go: state preconditions consulted here
  - effects.go:   the approve pipeline
*/
package contract

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT ENVELOPE
// =============================================================================

// Result is the uniform operation outcome envelope.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Data    any    `json:"data,omitempty"`
}

func okResult(data any) Result {
	return Result{Success: true, Message: "Ok", Data: data}
}

// failResult mirrors the caught-exception envelope: the message names the
// failed method and model, the detail carries the cause.
func failResult(model, method string, err error) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("Failed to %s %s", method, model),
		Detail:  err.Error(),
	}
}

func authRequired() Result {
	return Result{Success: false, Message: "Authentication required", Detail: "PermissionDenied"}
}

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates contract lifecycle operations.
type Service struct {
	Store    Store
	Rules    RuleInvoker
	Notifier Notifier
	ERP      ERP
	Logger   *log.Logger
	Now      func() time.Time
}

// NewService wires a service with nop collaborators a caller can override.
func NewService(store Store, rules RuleInvoker, logger *log.Logger) *Service {
	return &Service{
		Store:    store,
		Rules:    rules,
		Notifier: NopNotifier{},
		ERP:      NopERP{},
		Logger:   logger,
		Now:      time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func (s *Service) valuation(st Store) *ValuationEngine {
	return &ValuationEngine{
		Store:   st,
		Rules:   s.Rules,
		Periods: &PeriodGenerator{Store: st, Now: s.Now},
	}
}

func (s *Service) checkRight(actor Actor, r Right) error {
	if !actor.Has(r) {
		return ErrPermissionDenied
	}
	return nil
}

// loadContract resolves a contract or fails with a typed not-found.
func (s *Service) loadContract(ctx context.Context, st Store, id ContractID) (*Contract, error) {
	c, err := st.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("contract %s: %w", id, ErrContractNotFound)
	}
	return c, nil
}

// =============================================================================
// CREATE
// =============================================================================

// CreateRequest carries the caller-supplied fields of a new contract.
type CreateRequest struct {
	PolicyHolderID PolicyHolderID
	DateValidFrom  time.Time
	DateValidTo    time.Time
}

// Create builds a DRAFT contract. With a policy holder set it also pulls
// the insuree roster into contract details, runs a dry valuation and
// applies the forfait split.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightCreate); err != nil {
		return failResult("Contract", "create", err)
	}

	now := s.now()
	var created *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		var holder *PolicyHolder
		if req.PolicyHolderID != "" {
			var err error
			holder, err = st.GetPolicyHolder(ctx, req.PolicyHolderID)
			if err != nil {
				return err
			}
			if holder == nil {
				return &ValidationError{Field: "policy_holder", Reason: "policy holder does not exist"}
			}
		}
		if holder == nil {
			return &ValidationError{Field: "policy_holder", Reason: "policy holder is required"}
		}

		gen := &CodeGenerator{Store: st}
		code, err := gen.Generate(ctx, holder, req.DateValidFrom)
		if err != nil {
			return err
		}

		c := &Contract{
			Code:           code,
			PolicyHolderID: holder.ID,
			State:          StateDraft,
			Version:        1,
			DateValidFrom:  req.DateValidFrom,
			DateValidTo:    req.DateValidTo,
			ProcessStatus:  ProcessProcessing,
			DateCreated:    now,
			DateUpdated:    now,
		}
		if err := st.CreateContract(ctx, c); err != nil {
			return err
		}

		details, err := s.detailsFromRoster(ctx, st, c, holder)
		if err != nil {
			return err
		}
		if len(details) > 0 {
			res, err := s.valuation(st).Valuate(ctx, c, details, false)
			if err != nil {
				return err
			}
			if res.Total.IsPositive() {
				if err := s.applyForfaitSplit(ctx, st, c, details, res.Total); err != nil {
					return err
				}
			}
		}

		c.Audit = c.Audit.Append(actor.Username, now, fmt.Sprintf("create contract status %d", c.State))
		c.ProcessStatus = ProcessCreated
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return failResult("Contract", "create", err)
	}

	s.notify(ctx, EventContractCreated, created)
	return okResult(created)
}

// detailsFromRoster turns the policy holder's insuree roster into contract
// details rows. Under 12-month periodicity, insurees whose latest
// generated policy still covers the prospective start are skipped.
func (s *Service) detailsFromRoster(ctx context.Context, st Store, c *Contract, holder *PolicyHolder) ([]*ContractDetails, error) {
	roster, err := st.PolicyHolderInsurees(ctx, holder.ID)
	if err != nil {
		return nil, err
	}

	var out []*ContractDetails
	for _, phi := range roster {
		if phi.IsDeleted || phi.BundleID == "" {
			continue
		}
		excluded, err := s.rosterExcluded(ctx, st, c, holder, phi)
		if err != nil {
			return nil, err
		}
		if excluded {
			continue
		}
		d := &ContractDetails{
			ContractID:  c.ID,
			InsureeID:   phi.InsureeID,
			BundleID:    phi.BundleID,
			Input:       phi.Input,
			DateCreated: s.now(),
		}
		if err := st.CreateDetails(ctx, d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// rosterExcluded checks the 12-month periodicity coverage gate: an insuree
// already covered past the prospective policy start stays out of the new
// contract.
func (s *Service) rosterExcluded(ctx context.Context, st Store, c *Contract, holder *PolicyHolder, phi *PolicyHolderInsuree) (bool, error) {
	bundle, err := st.GetBundle(ctx, phi.BundleID)
	if err != nil {
		return false, err
	}
	if bundle == nil || bundle.Periodicity != 12 {
		return false, nil
	}

	prior, err := st.DetailsForInsuree(ctx, phi.InsureeID, holder.ID, phi.BundleID)
	if err != nil {
		return false, err
	}
	for _, d := range prior {
		units, err := st.PlanDetailsByDetails(ctx, d.ID)
		if err != nil {
			return false, err
		}
		for _, unit := range units {
			if unit.PolicyID == "" {
				continue
			}
			policy, err := st.GetPolicy(ctx, unit.PolicyID)
			if err != nil {
				return false, err
			}
			if policy == nil {
				continue
			}
			plan, err := st.GetPlan(ctx, unit.PlanID)
			if err != nil {
				return false, err
			}
			product, err := st.GetProduct(ctx, plan.ProductID)
			if err != nil {
				return false, err
			}

			gap := 4
			if product.PolicyWaitingPeriod > 0 {
				gap = product.PolicyWaitingPeriod
			}
			prospective := addMonths(replaceDay(c.DateValidFrom, startPolicyDay(product)), gap)
			if policy.ExpiryDate.After(prospective) {
				return true, nil
			}
		}
	}
	return false, nil
}

// applyForfaitSplit confirms every unconfirmed detail row and spreads the
// rounded valuation total across them as a flat forfait amount.
func (s *Service) applyForfaitSplit(ctx context.Context, st Store, c *Contract, details []*ContractDetails, total decimal.Decimal) error {
	rounded := total.Round(0)
	c.AmountNotified = rounded
	c.UseBundleContributionPlanAmount = true

	var unconfirmed []*ContractDetails
	for _, d := range details {
		if !d.IsConfirmed {
			unconfirmed = append(unconfirmed, d)
		}
	}
	if len(unconfirmed) == 0 {
		return nil
	}
	forfait := rounded.Div(decimal.NewFromInt(int64(len(unconfirmed)))).Round(0)

	for _, d := range unconfirmed {
		d.IsConfirmed = true
		d.Input = CalculationInput{
			ForfaitRule: ForfaitRuleInput{Total: forfait},
		}
		if err := st.UpdateDetails(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies a typed field update under the state tier rules.
func (s *Service) Update(ctx context.Context, actor Actor, req UpdateRequest) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if !actor.Has(RightUpdate) && !actor.Has(RightApprove) {
		return failResult("Contract", "update", ErrPermissionDenied)
	}

	now := s.now()
	var updated *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.loadContract(ctx, st, req.ID)
		if err != nil {
			return err
		}
		if err := Allowed(OpUpdate, c.State); err != nil {
			return err
		}
		if c.State.Approvable() && !actor.Has(RightApprove) {
			return ErrPermissionDenied
		}
		if err := req.apply(c); err != nil {
			return err
		}
		c.Audit = c.Audit.Append(actor.Username, now, fmt.Sprintf("update contract status %d", c.State))
		c.DateUpdated = now
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return failResult("Contract", "update", err)
	}

	s.notify(ctx, EventContractUpdated, updated)
	return okResult(updated)
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit moves an updatable contract to NEGOTIABLE after a dry valuation
// fixes amount_rectified.
func (s *Service) Submit(ctx context.Context, actor Actor, id ContractID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightSubmit); err != nil {
		return failResult("Contract", "submit", err)
	}

	now := s.now()
	var submitted *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.loadContract(ctx, st, id)
		if err != nil {
			return err
		}
		details, err := s.validateSubmission(ctx, st, c)
		if err != nil {
			return err
		}

		res, err := s.valuation(st).Valuate(ctx, c, details, false)
		if err != nil {
			return err
		}
		c.AmountRectified = res.Total.Round(0)
		c.State = StateNegotiable
		c.Audit = c.Audit.Append(actor.Username, now, fmt.Sprintf("update contract status %d", c.State))
		c.DateUpdated = now
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}
		submitted = c
		return nil
	})
	if err != nil {
		return failResult("Contract", "submit", err)
	}

	s.notify(ctx, EventContractUpdated, submitted)
	return okResult(submitted)
}

func (s *Service) validateSubmission(ctx context.Context, st Store, c *Contract) ([]*ContractDetails, error) {
	if c.PolicyHolderID == "" {
		return nil, updateErrorf("The contract does not contain PolicyHolder!")
	}
	details, err := st.DetailsByContract(ctx, c.ID, true)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, updateErrorf("The contract does not contain any insuree!")
	}
	if c.State.Approvable() {
		return nil, updateErrorf("The contract has been already submitted!")
	}
	if err := Allowed(OpSubmit, c.State); err != nil {
		return nil, err
	}
	return details, nil
}

// =============================================================================
// APPROVE / COUNTER
// =============================================================================

// Approve runs the post-approval effect pipeline transactionally, then
// fires the best-effort notification and ERP push.
func (s *Service) Approve(ctx context.Context, actor Actor, id ContractID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightApprove); err != nil {
		return failResult("Contract", "approve", err)
	}

	now := s.now()
	var approved *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.loadContract(ctx, st, id)
		if err != nil {
			return err
		}
		if err := Allowed(OpApprove, c.State); err != nil {
			return err
		}

		// link the previous generation for this policy holder
		siblings, err := st.ContractsByPolicyHolder(ctx, c.PolicyHolderID)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID != c.ID {
				c.ParentID = sibling.ID
				break
			}
		}

		details, err := st.DetailsByContract(ctx, c.ID, true)
		if err != nil {
			return err
		}
		a := &approval{actor: actor, contract: c, details: details, now: now}
		if err := runApprovePipeline(ctx, st, a, s.valuation(st)); err != nil {
			return err
		}
		approved = c
		return nil
	})
	if err != nil {
		return failResult("Contract", "approve", err)
	}

	s.notify(ctx, EventContractUpdated, approved)
	s.pushERP(ctx, approved)
	return okResult(approved)
}

// Counter sends a NEGOTIABLE contract back to the policy holder.
func (s *Service) Counter(ctx context.Context, actor Actor, id ContractID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightApprove); err != nil {
		return failResult("Contract", "counter", err)
	}

	now := s.now()
	var countered *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.loadContract(ctx, st, id)
		if err != nil {
			return err
		}
		if err := Allowed(OpCounter, c.State); err != nil {
			return err
		}
		c.State = StateCounter
		c.Audit = c.Audit.Append(actor.Username, now, fmt.Sprintf("update contract status %d", c.State))
		c.DateUpdated = now
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}
		countered = c
		return nil
	})
	if err != nil {
		return failResult("Contract", "counter", err)
	}

	s.notify(ctx, EventContractCounter, countered)
	return okResult(countered)
}

// =============================================================================
// AMEND / RENEW
// =============================================================================

// Amend closes the current generation as an ADDENDUM and opens the next
// amendment in DRAFT with copied details and a fresh dry valuation.
func (s *Service) Amend(ctx context.Context, actor Actor, id ContractID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightAmend); err != nil {
		return failResult("Contract", "amend", err)
	}

	now := s.now()
	var amended *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		original, err := s.loadContract(ctx, st, id)
		if err != nil {
			return err
		}
		if err := Allowed(OpAmend, original.State); err != nil {
			return err
		}

		next := deriveAmendment(original)
		next.DateCreated = now
		next.DateUpdated = now
		if err := st.CreateContract(ctx, next); err != nil {
			return err
		}

		original.State = StateAddendum
		original.DateValidTo = now
		original.Audit = original.Audit.Append(actor.Username, now, fmt.Sprintf("update contract status %d", original.State))
		if err := st.UpdateContract(ctx, original); err != nil {
			return err
		}

		copied, err := s.copyDetailsTo(ctx, st, original.ID, next.ID)
		if err != nil {
			return err
		}

		res, err := s.valuation(st).Valuate(ctx, next, copied, false)
		if err != nil {
			return err
		}
		next.AmountNotified = res.Total.Round(0)
		next.Audit = next.Audit.Append(actor.Username, now, fmt.Sprintf("create contract status %d", next.State))
		if err := st.UpdateContract(ctx, next); err != nil {
			return err
		}
		amended = next
		return nil
	})
	if err != nil {
		return failResult("Contract", "amend", err)
	}
	return okResult(amended)
}

// Renew opens the next coverage window of the same length in a fresh DRAFT
// contract.
func (s *Service) Renew(ctx context.Context, actor Actor, id ContractID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightRenew); err != nil {
		return failResult("Contract", "renew", err)
	}

	now := s.now()
	var renewed *Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		original, err := s.loadContract(ctx, st, id)
		if err != nil {
			return err
		}
		if err := Allowed(OpRenew, original.State); err != nil {
			return err
		}

		next := deriveRenewal(original, now)
		if err := st.CreateContract(ctx, next); err != nil {
			return err
		}
		next.Audit = next.Audit.Append(actor.Username, now, fmt.Sprintf("contract renewed - state %d", next.State))
		if err := st.UpdateContract(ctx, next); err != nil {
			return err
		}
		if _, err := s.copyDetailsTo(ctx, st, original.ID, next.ID); err != nil {
			return err
		}
		renewed = next
		return nil
	})
	if err != nil {
		return failResult("Contract", "renew", err)
	}
	return okResult(renewed)
}

func (s *Service) copyDetailsTo(ctx context.Context, st Store, from, to ContractID) ([]*ContractDetails, error) {
	rows, err := st.DetailsByContract(ctx, from, false)
	if err != nil {
		return nil, err
	}
	copied := copyDetails(rows, to)
	for _, d := range copied {
		if err := st.CreateDetails(ctx, d); err != nil {
			return nil, err
		}
	}
	return copied, nil
}

// =============================================================================
// DELETE / TERMINATE
// =============================================================================

// Delete soft-deletes an editable contract; locked states are rejected
// with the contract code in the message.
func (s *Service) Delete(ctx context.Context, actor Actor, id ContractID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightDelete); err != nil {
		return failResult("Contract", "delete", err)
	}

	c, err := s.Store.GetContract(ctx, id)
	if err != nil {
		return failResult("Contract", "delete", err)
	}
	if c == nil {
		return failResult("Contract", "delete", fmt.Errorf("contract %s: %w", id, ErrContractNotFound))
	}
	if err := Allowed(OpDelete, c.State); err != nil {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Contract %s cannot be deleted!", c.Code),
			Detail:  fmt.Sprintf("%s cannot be deleted because of state %s", c.Code, c.State),
		}
	}
	if err := s.Store.SoftDeleteContract(ctx, id); err != nil {
		return failResult("Contract", "delete", err)
	}
	return Result{Success: true, Message: "Ok"}
}

// TerminateExpired flips every EFFECTIVE contract whose validity ended to
// TERMINATED. Run periodically by the scheduler.
func (s *Service) TerminateExpired(ctx context.Context, actor Actor) Result {
	if actor.Anonymous() {
		return authRequired()
	}

	now := s.now()
	var terminated []*Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		expired, err := st.ContractsToTerminate(ctx, now)
		if err != nil {
			return err
		}
		for _, c := range expired {
			c.State = StateTerminated
			c.Audit = c.Audit.Append(actor.Username, now, fmt.Sprintf("contract terminated - state %d", c.State))
			c.DateUpdated = now
			if err := st.UpdateContract(ctx, c); err != nil {
				return err
			}
			terminated = append(terminated, c)
		}
		return nil
	})
	if err != nil {
		return failResult("Contract", "terminateContract", err)
	}
	if len(terminated) == 0 {
		return Result{
			Success: false,
			Message: "No contracts to terminate!",
			Detail:  "We do not have any contract to be terminated!",
		}
	}
	return okResult(terminated)
}

// =============================================================================
// PAYMENT CALLBACKS
// =============================================================================

// ActivateOnPayment reacts to a fully received payment: every EXECUTABLE
// contract funded by it gets its insurees activated, provided each of its
// valuation units is matched by a payment detail.
func (s *Service) ActivateOnPayment(ctx context.Context, paymentID PaymentID) Result {
	now := s.now()
	var activated []*InsureePolicy
	err := s.Store.WithTx(ctx, func(st Store) error {
		payment, err := st.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return fmt.Errorf("payment %s: %w", paymentID, ErrNotFound)
		}
		if payment.ReceivedAmount.LessThan(payment.ExpectedAmount) {
			return nil
		}
		pds, err := st.PaymentDetailsByPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if len(pds) == 0 {
			return nil
		}

		contracts, err := s.contractsForPaymentDetails(ctx, st, pds)
		if err != nil {
			return err
		}
		for _, c := range contracts {
			if c.State != StateExecutable {
				continue
			}
			units, err := st.PlanDetailsByContract(ctx, c.ID)
			if err != nil {
				return err
			}
			if len(units) != len(pds) {
				continue
			}
			for _, unit := range units {
				ip, err := s.activateUnit(ctx, st, unit, now)
				if err != nil {
					return err
				}
				if ip != nil {
					activated = append(activated, ip)
				}
			}
		}
		return nil
	})
	if err != nil {
		return failResult("Contract", "activateContractedPolicies", err)
	}
	return okResult(activated)
}

// contractsForPaymentDetails resolves the distinct contracts reachable
// through the payment's contribution links.
func (s *Service) contractsForPaymentDetails(ctx context.Context, st Store, pds []*PaymentDetail) ([]*Contract, error) {
	seen := map[ContractID]bool{}
	var out []*Contract
	for _, pd := range pds {
		if pd.ContributionID == "" {
			continue
		}
		unit, err := st.PlanDetailsByContribution(ctx, pd.ContributionID)
		if err != nil {
			return nil, err
		}
		if unit == nil {
			continue
		}
		d, err := st.GetDetails(ctx, unit.DetailsID)
		if err != nil {
			return nil, err
		}
		if d == nil || seen[d.ContractID] {
			continue
		}
		seen[d.ContractID] = true
		c, err := st.GetContract(ctx, d.ContractID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// activateUnit creates the insuree activation record for one valuation
// unit and flips its policy ACTIVE.
func (s *Service) activateUnit(ctx context.Context, st Store, unit *ContributionPlanDetails, now time.Time) (*InsureePolicy, error) {
	if unit.PolicyID == "" {
		return nil, nil
	}
	d, err := st.GetDetails(ctx, unit.DetailsID)
	if err != nil {
		return nil, err
	}
	plan, err := st.GetPlan(ctx, unit.PlanID)
	if err != nil {
		return nil, err
	}
	ip := &InsureePolicy{
		InsureeID:      d.InsureeID,
		PolicyID:       unit.PolicyID,
		EnrollmentDate: unit.DateValidFrom,
		StartDate:      unit.DateValidFrom,
		EffectiveDate:  unit.DateValidFrom,
		ExpiryDate:     addMonths(unit.DateValidTo, plan.ContributionLength()),
	}
	if err := st.CreateInsureePolicy(ctx, ip); err != nil {
		return nil, err
	}
	policy, err := st.GetPolicy(ctx, unit.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		policy.Status = PolicyActive
		if err := st.UpdatePolicy(ctx, policy); err != nil {
			return nil, err
		}
	}
	return ip, nil
}

// NegativeAmountAmendments returns amended contracts reachable through the
// given credit-note payment whose amount due went negative.
func (s *Service) NegativeAmountAmendments(ctx context.Context, actor Actor, paymentID PaymentID) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if err := s.checkRight(actor, RightQuery); err != nil {
		return failResult("Contract", "getNegativeAmountAmendment", err)
	}

	pds, err := s.Store.PaymentDetailsByPayment(ctx, paymentID)
	if err != nil {
		return failResult("Contract", "getNegativeAmountAmendment", err)
	}
	contracts, err := s.contractsForPaymentDetails(ctx, s.Store, pds)
	if err != nil {
		return failResult("Contract", "getNegativeAmountAmendment", err)
	}
	var out []*Contract
	for _, c := range contracts {
		if (c.State == StateEffective || c.State == StateExecutable) &&
			c.Amendment > 0 && c.AmountDue.IsNegative() {
			out = append(out, c)
		}
	}
	return okResult(out)
}

// =============================================================================
// SALARY SHEET IMPORT
// =============================================================================

// SalaryRow is one imported salary-sheet line.
type SalaryRow struct {
	InsuranceNumber string          `json:"insuranceNumber"`
	Income          decimal.Decimal `json:"income"`
}

// SalaryRowStatus reports one row's import outcome.
type SalaryRowStatus struct {
	InsuranceNumber string `json:"insuranceNumber"`
	OK              bool   `json:"ok"`
	Message         string `json:"message,omitempty"`
}

// ImportSalarySheet applies salary rows to a contract's details inside one
// transaction: a single bad row rolls every update back. The per-row
// status report is returned either way.
func (s *Service) ImportSalarySheet(ctx context.Context, actor Actor, id ContractID, rows []SalaryRow) Result {
	if actor.Anonymous() {
		return authRequired()
	}
	if !actor.Has(RightUpdate) {
		return failResult("Contract", "importSalarySheet", ErrPermissionDenied)
	}

	report := make([]SalaryRowStatus, 0, len(rows))
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.loadContract(ctx, st, id)
		if err != nil {
			return err
		}
		if err := Allowed(OpUpdate, c.State); err != nil {
			return err
		}
		details, err := st.DetailsByContract(ctx, c.ID, false)
		if err != nil {
			return err
		}
		byNumber := map[string]*ContractDetails{}
		for _, d := range details {
			insuree, err := st.GetInsuree(ctx, d.InsureeID)
			if err != nil {
				return err
			}
			if insuree != nil {
				byNumber[insuree.InsuranceNumber] = d
			}
		}

		var failed bool
		for _, row := range rows {
			d, found := byNumber[row.InsuranceNumber]
			switch {
			case !found:
				failed = true
				report = append(report, SalaryRowStatus{
					InsuranceNumber: row.InsuranceNumber,
					Message:         "insuree is not enrolled on this contract",
				})
			case !row.Income.IsPositive():
				failed = true
				report = append(report, SalaryRowStatus{
					InsuranceNumber: row.InsuranceNumber,
					Message:         "income must be positive",
				})
			default:
				d.Input.CalculationRule.Income = row.Income
				d.IsConfirmed = true
				if err := st.UpdateDetails(ctx, d); err != nil {
					return err
				}
				report = append(report, SalaryRowStatus{InsuranceNumber: row.InsuranceNumber, OK: true})
			}
		}
		if failed {
			return &ValidationError{Field: "rows", Reason: "one or more salary rows failed"}
		}
		return nil
	})
	if err != nil {
		res := failResult("Contract", "importSalarySheet", err)
		res.Data = report
		return res
	}
	return okResult(report)
}

// =============================================================================
// BEST-EFFORT SIDE CHANNELS
// =============================================================================

// notify fires the notification collaborator; failures are logged only.
func (s *Service) notify(ctx context.Context, event Event, c *Contract) {
	if c == nil || s.Notifier == nil {
		return
	}
	holder, err := s.Store.GetPolicyHolder(ctx, c.PolicyHolderID)
	if err != nil || holder == nil {
		s.logf("[Contract] notification skipped, policy holder %s unavailable: %v", c.PolicyHolderID, err)
		return
	}
	if err := s.Notifier.Notify(ctx, event, c, holder); err != nil {
		s.logf("[Contract] failed to send %s notification for %s: %v", event, c.Code, err)
	}
}

// pushERP submits the approved contract to the accounting system and
// records the upload outcome on the process status. Never fatal.
func (s *Service) pushERP(ctx context.Context, c *Contract) {
	if c == nil || s.ERP == nil {
		return
	}
	holder, err := s.Store.GetPolicyHolder(ctx, c.PolicyHolderID)
	if err != nil || holder == nil {
		s.logf("[ERP] push skipped, policy holder %s unavailable: %v", c.PolicyHolderID, err)
		return
	}

	c.ProcessStatus = ProcessUploading
	_ = s.Store.UpdateContract(ctx, c)

	ok, err := s.ERP.SubmitContract(ctx, c, holder)
	if err != nil || !ok {
		c.ProcessStatus = ProcessFailedToUpload
		_ = s.Store.UpdateContract(ctx, c)
		s.logf("[ERP] failed to push contract %s: %v", c.Code, err)
		return
	}
	c.ProcessStatus = ProcessUploaded
	_ = s.Store.UpdateContract(ctx, c)
}
