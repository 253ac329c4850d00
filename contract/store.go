/*
store.go - Persistence collaborator interface

PURPOSE:
  Defines the narrow interface between the engine and the database.
  Different implementations can use SQLite or in-memory storage.

SOFT-DELETE CONTRACT:
  Contracts, contract details and contribution plan details are never
  physically deleted; deletion flips is_deleted and all reads filter on it.

ATOMIC TRANSITIONS:
  WithTx() ensures all-or-nothing semantics. A state transition (state +
  valuation + payment rows) either commits as a whole or leaves the
  contract exactly in its pre-transition state. Notification and ERP side
  effects run outside the transaction on purpose.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - contract/store/memory.go: In-memory for testing

SEE ALSO:
  - service.go: Uses these interfaces
*/
package contract

import (
	"context"
	"time"
)

// =============================================================================
// STORE - composite persistence interface
// =============================================================================

// Store is the persistence collaborator. Implementations must apply
// soft-delete filtering on every read.
type Store interface {
	ContractStore
	DetailsStore
	PlanDetailsStore
	PolicyStore
	PaymentStore
	ReferenceStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed. Implementations must
	// hand fn a Store whose writes join the transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ContractStore persists the contract aggregate root.
type ContractStore interface {
	CreateContract(ctx context.Context, c *Contract) error
	UpdateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id ContractID) (*Contract, error)

	// ContractByCodeAndAmendment resolves one generation of an amendment
	// chain. Used by amendment-delta reconciliation.
	ContractByCodeAndAmendment(ctx context.Context, code string, amendment int) (*Contract, error)

	// ContractsByPolicyHolder returns non-deleted contracts for a policy
	// holder ordered by creation date descending.
	ContractsByPolicyHolder(ctx context.Context, id PolicyHolderID) ([]*Contract, error)

	// CodesForMonth returns non-deleted contract codes created in the given
	// month/year that start with prefix. Used by code generation.
	CodesForMonth(ctx context.Context, prefix string, year int, month time.Month) ([]string, error)

	// CodeExists checks a candidate code against non-deleted contracts.
	CodeExists(ctx context.Context, code string) (bool, error)

	// SoftDeleteContract flips is_deleted on the contract and cascades to
	// its details and plan details.
	SoftDeleteContract(ctx context.Context, id ContractID) error

	// ContractsToTerminate returns EFFECTIVE contracts whose validity ended
	// before now.
	ContractsToTerminate(ctx context.Context, now time.Time) ([]*Contract, error)
}

// DetailsStore persists per-insuree enrollment rows.
type DetailsStore interface {
	CreateDetails(ctx context.Context, d *ContractDetails) error
	UpdateDetails(ctx context.Context, d *ContractDetails) error
	GetDetails(ctx context.Context, id DetailsID) (*ContractDetails, error)

	// DetailsByContract returns non-deleted details; confirmedOnly filters
	// on the confirmation flag.
	DetailsByContract(ctx context.Context, id ContractID, confirmedOnly bool) ([]*ContractDetails, error)

	// DetailsForInsuree returns non-deleted details rows for the insuree
	// under the policy holder and bundle, newest first. Used by the roster
	// exclusion check at creation time.
	DetailsForInsuree(ctx context.Context, insuree InsureeID, holder PolicyHolderID, bundle BundleID) ([]*ContractDetails, error)
}

// PlanDetailsStore persists valuation units.
type PlanDetailsStore interface {
	CreatePlanDetails(ctx context.Context, p *ContributionPlanDetails) error
	UpdatePlanDetails(ctx context.Context, p *ContributionPlanDetails) error
	GetPlanDetails(ctx context.Context, id PlanDetailsID) (*ContributionPlanDetails, error)
	PlanDetailsByContract(ctx context.Context, id ContractID) ([]*ContributionPlanDetails, error)
	PlanDetailsByDetails(ctx context.Context, id DetailsID) ([]*ContributionPlanDetails, error)

	// PlanDetailsByContribution resolves the valuation unit linked to a
	// contribution, or nil. Used by payment callbacks.
	PlanDetailsByContribution(ctx context.Context, id ContributionID) (*ContributionPlanDetails, error)
}

// PolicyStore persists generated coverage periods and their linkage.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *Policy) error
	UpdatePolicy(ctx context.Context, p *Policy) error
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)

	// FamilyHasPolicy reports whether any policy exists for the family,
	// regardless of product. Drives the first-policy grace period.
	FamilyHasPolicy(ctx context.Context, id FamilyID) (bool, error)

	// PoliciesForFamilyProduct returns the family's policies for the
	// product overlapping [from, to], oldest start first.
	PoliciesForFamilyProduct(ctx context.Context, family FamilyID, product ProductID, from, to time.Time) ([]*Policy, error)

	CreateContractPolicy(ctx context.Context, cp *ContractPolicy) error
	CreateInsureePolicy(ctx context.Context, ip *InsureePolicy) error

	// GetWaitingPeriod resolves the insuree's waiting-period record under
	// the policy holder, or nil when none exists.
	GetWaitingPeriod(ctx context.Context, insuree InsureeID, holder PolicyHolderID) (*InsureeWaitingPeriod, error)
	UpdateWaitingPeriod(ctx context.Context, wp *InsureeWaitingPeriod) error
}

// PaymentStore persists payments and contributions.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	CreatePaymentDetail(ctx context.Context, pd *PaymentDetail) error
	PaymentDetailsByPayment(ctx context.Context, id PaymentID) ([]*PaymentDetail, error)

	// PaymentForContribution resolves the payment covering a contribution,
	// or nil when none exists.
	PaymentForContribution(ctx context.Context, id ContributionID) (*Payment, error)

	CreateContribution(ctx context.Context, c *Contribution) error
	GetContribution(ctx context.Context, id ContributionID) (*Contribution, error)
}

// ReferenceStore reads the surrounding master data. The engine never
// mutates these entities except for the roster confirmation flags handled
// through DetailsStore.
type ReferenceStore interface {
	GetPolicyHolder(ctx context.Context, id PolicyHolderID) (*PolicyHolder, error)
	GetLocation(ctx context.Context, id LocationID) (*Location, error)
	GetInsuree(ctx context.Context, id InsureeID) (*Insuree, error)
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	GetPlan(ctx context.Context, id PlanID) (*ContributionPlan, error)
	GetBundle(ctx context.Context, id BundleID) (*ContributionPlanBundle, error)

	// BundlePlans returns the member contribution plans of a bundle.
	BundlePlans(ctx context.Context, id BundleID) ([]*ContributionPlan, error)

	// PolicyHolderInsurees returns the current roster of a policy holder.
	PolicyHolderInsurees(ctx context.Context, id PolicyHolderID) ([]*PolicyHolderInsuree, error)
}

// =============================================================================
// EXTERNAL COLLABORATORS - best-effort side channels
// =============================================================================

// Event identifies a notification trigger.
type Event string

const (
	EventContractCreated Event = "contract_created"
	EventContractUpdated Event = "contract_updated"
	EventContractCounter Event = "contract_countered"
	EventPaymentCreated  Event = "payment_created"
)

// Notifier delivers notifications. Best-effort: errors are logged by the
// caller and never affect the contract transition.
type Notifier interface {
	Notify(ctx context.Context, event Event, c *Contract, holder *PolicyHolder) error
}

// ERP pushes approved contracts to the external accounting system.
// Best-effort: a false/error outcome is logged, the contract state is
// unaffected.
type ERP interface {
	SubmitContract(ctx context.Context, c *Contract, holder *PolicyHolder) (bool, error)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event, *Contract, *PolicyHolder) error { return nil }

// NopERP accepts every push without doing anything.
type NopERP struct{}

func (NopERP) SubmitContract(context.Context, *Contract, *PolicyHolder) (bool, error) {
	return true, nil
}
