/*
Package contract provides the contract lifecycle and valuation engine.

PURPOSE:
  This package contains the core business logic for insurance contribution
  contracts between an insurer and policy holders (employers): creation from
  the enrolled insuree roster, valuation through pluggable calculation rules,
  the approval/negotiation/amendment/renewal state machine, policy period
  generation, payment linkage and penalty computation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: The central aggregate with three state-scoped monetary fields
  - ContractDetails: One row per insuree enrolled under a contract
  - ContributionPlanDetails: One valuation unit (details x plan x policy)
  - Policy: A generated coverage period
  - Actor: The caller identity with its granted rights

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all monetary amounts
  2. Type Safety: Strong typing for IDs prevents mixing entity kinds
  3. Explicit updates: Mutable fields are enumerated per operation, never
     patched by arbitrary key
  4. Auditability: Every state transition appends a comment entry

SEE ALSO:
  - lifecycle.go: State machine and rights classification
  - valuation.go: Contract valuation engine
  - period.go: Policy period generation
  - store.go: Persistence collaborator interface
*/
package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type DetailsID string
type PlanDetailsID string
type PolicyID string
type InsureeID string
type FamilyID string
type PolicyHolderID string
type LocationID string
type PlanID string
type BundleID string
type ProductID string
type PaymentID string
type ContributionID string

// =============================================================================
// CONTRACT STATE
// =============================================================================

// State is the contract lifecycle state. Numeric values are part of the
// persisted format and must not be renumbered.
type State int

const (
	StateRequestForInformation State = 1
	StateDraft                 State = 2
	StateOffer                 State = 3
	StateNegotiable            State = 4
	StateExecutable            State = 5
	StateAddendum              State = 6
	StateEffective             State = 7
	StateExecuted              State = 8
	StateDisputed              State = 9
	StateTerminated            State = 10
	StateCounter               State = 11
)

func (s State) String() string {
	switch s {
	case StateRequestForInformation:
		return "request_for_information"
	case StateDraft:
		return "draft"
	case StateOffer:
		return "offer"
	case StateNegotiable:
		return "negotiable"
	case StateExecutable:
		return "executable"
	case StateAddendum:
		return "addendum"
	case StateEffective:
		return "effective"
	case StateExecuted:
		return "executed"
	case StateDisputed:
		return "disputed"
	case StateTerminated:
		return "terminated"
	case StateCounter:
		return "counter"
	}
	return "unknown"
}

// ProcessStatus tracks the asynchronous creation/upload pipeline.
type ProcessStatus string

const (
	ProcessProcessing             ProcessStatus = "processing"
	ProcessCreated                ProcessStatus = "created"
	ProcessUploading              ProcessStatus = "uploading"
	ProcessUploaded               ProcessStatus = "uploaded"
	ProcessProcessingUploadedData ProcessStatus = "processing_uploaded_data"
	ProcessFailedToCreate         ProcessStatus = "failed_to_create"
	ProcessFailedToUpload         ProcessStatus = "failed_to_upload"
)

// =============================================================================
// AUDIT TRAIL - append-only conversation history on the contract
// =============================================================================

// Comment is a single audit entry recorded on every state transition.
type Comment struct {
	From string `json:"from"`
	User string `json:"user"`
	Date string `json:"date"`
	Msg  string `json:"msg"`
}

// AuditTrail is the persisted json_ext payload.
type AuditTrail struct {
	Comments []Comment `json:"comments"`
}

// Append returns a copy of the trail with one more entry. The receiver is
// never mutated so derived contracts cannot alias the original's history.
func (a AuditTrail) Append(user string, at time.Time, msg string) AuditTrail {
	comments := make([]Comment, 0, len(a.Comments)+1)
	comments = append(comments, a.Comments...)
	comments = append(comments, Comment{
		From: "Portal/webapp",
		User: user,
		Date: at.Format(time.RFC3339),
		Msg:  msg,
	})
	return AuditTrail{Comments: comments}
}

// =============================================================================
// CONTRACT - the central aggregate
// =============================================================================

type Contract struct {
	ID   ContractID
	Code string

	PolicyHolderID PolicyHolderID

	// Exactly one of the three monetary fields is active per state; see
	// Amount().
	AmountNotified  decimal.Decimal
	AmountRectified decimal.Decimal
	AmountDue       decimal.Decimal

	State     State
	Amendment int // 0 = original, >0 = amendment generation
	Version   int

	DateValidFrom time.Time
	DateValidTo   time.Time

	DateApproved   *time.Time
	DatePaymentDue *time.Time

	PaymentReference string

	PenaltyRaised                  bool
	PenaltyRaisedDate              *time.Time
	PenaltyWaiveOffContract        bool
	PenaltyWaiveOffPayment         bool
	PenaltyWaiveOffContractReason  string
	PenaltyWaiveOffPaymentReason   string

	// ParentID points at the previous contract in a renewal/amendment chain.
	ParentID ContractID

	ErpContractID      int
	ErpInvoiceAccessID string

	UseBundleContributionPlanAmount bool
	ProcessStatus                   ProcessStatus

	Audit AuditTrail

	DateCreated time.Time
	DateUpdated time.Time
	IsDeleted   bool
}

// Amount selects the active monetary field for the current state:
// draft/request-for-info read the notified amount, offer/negotiable/counter
// the rectified amount, everything else the amount due.
func (c *Contract) Amount() decimal.Decimal {
	switch c.State {
	case StateRequestForInformation, StateDraft:
		return c.AmountNotified
	case StateOffer, StateNegotiable, StateCounter:
		return c.AmountRectified
	default:
		return c.AmountDue
	}
}

// =============================================================================
// CONTRACT DETAILS - one row per enrolled insuree
// =============================================================================

// CalculationInput carries the per-insuree inputs consumed by calculation
// rules. It replaces the original free-form JSON parameter blob with an
// enumerated structure; unknown keys are rejected at the boundary.
type CalculationInput struct {
	CalculationRule CalculationRuleInput `json:"calculation_rule"`
	ForfaitRule     ForfaitRuleInput     `json:"forfait_rule"`
}

type CalculationRuleInput struct {
	Income decimal.Decimal `json:"income"`
	Rate   decimal.Decimal `json:"rate"`
}

type ForfaitRuleInput struct {
	Total                decimal.Decimal `json:"total"`
	EmployerContribution decimal.Decimal `json:"employerContribution"`
	SalaryShare          decimal.Decimal `json:"salaryShare"`
}

type ContractDetails struct {
	ID           DetailsID
	ContractID   ContractID
	InsureeID    InsureeID
	BundleID     BundleID
	IsConfirmed  bool
	IsNewInsuree bool
	Input        CalculationInput
	DateCreated  time.Time
	IsDeleted    bool
}

// =============================================================================
// CONTRIBUTION PLAN DETAILS - one valuation unit
// =============================================================================

// ContributionPlanDetails links a ContractDetails row to a specific
// contribution plan, a generated policy period and, once payment creation
// has run, the contribution record holding the calculated amount.
type ContributionPlanDetails struct {
	ID             PlanDetailsID
	DetailsID      DetailsID
	PlanID         PlanID
	PolicyID       PolicyID
	ContributionID ContributionID // empty until the contribution is created

	DateValidFrom time.Time
	DateValidTo   time.Time

	CalculatedAmount decimal.Decimal

	IsDeleted bool
}

// =============================================================================
// POLICY - a generated coverage period
// =============================================================================

type PolicyStatus int

const (
	PolicyIdle    PolicyStatus = 1
	PolicyActive  PolicyStatus = 2
	PolicyExpired PolicyStatus = 8
	PolicyReady   PolicyStatus = 16
	PolicyLocked  PolicyStatus = 32
)

type PolicyStage string

const (
	StageNew     PolicyStage = "N"
	StageRenewal PolicyStage = "R"
)

type Policy struct {
	ID            PolicyID
	FamilyID      FamilyID
	ProductID     ProductID
	Status        PolicyStatus
	Stage         PolicyStage
	EnrollDate    time.Time
	StartDate     time.Time
	EffectiveDate time.Time
	ExpiryDate    time.Time
	ValidityFrom  time.Time
	ValidityTo    *time.Time
}

// ContractPolicy records which policy was generated for which
// (contract, insuree, policy holder) triple.
type ContractPolicy struct {
	ID             string
	ContractID     ContractID
	PolicyID       PolicyID
	InsureeID      InsureeID
	PolicyHolderID PolicyHolderID
	CreatedAt      time.Time
}

// InsureePolicy is the activation record created when a paid contract
// takes effect for one insuree.
type InsureePolicy struct {
	ID             string
	InsureeID      InsureeID
	PolicyID       PolicyID
	EnrollmentDate time.Time
	StartDate      time.Time
	EffectiveDate  time.Time
	ExpiryDate     time.Time
}

// InsureeWaitingPeriod tracks remaining waiting-period months per
// (policy-holder contribution plan, insuree). Decremented as contributions
// are paid; read by policy generation to decide eligibility.
type InsureeWaitingPeriod struct {
	ID                 string
	PolicyHolderID     PolicyHolderID
	PolicyHolderPlanID string
	InsureeID          InsureeID
	WaitingPeriod      int
	Periodicity        int
}

// =============================================================================
// REFERENCE DATA - plans, products, policy holders, insurees
// =============================================================================

// ProductConfig is the product-level declaration/payment window
// configuration. Day-of-month values drive policy start alignment and the
// penalty window check.
type ProductConfig struct {
	PaymentEndDate       *time.Time `json:"PaymentEndDate,omitempty"`
	DeclarationStartDate *time.Time `json:"declarationStartDate,omitempty"`
	DeclarationEndDate   *time.Time `json:"declarationEndDate,omitempty"`
}

// Product is the benefit definition behind a contribution plan.
type Product struct {
	ID                  ProductID
	Code                string
	InsurancePeriod     int // months: 1, 3 or 12
	PolicyWaitingPeriod int // months, 0 = product default applies
	Config              *ProductConfig
}

// ContributionPlan selects a calculation rule and a periodicity.
type ContributionPlan struct {
	ID          PlanID
	Code        string
	Name        string
	Periodicity int // months per contribution
	ProductID   ProductID
	CalcRule    string // calculation rule class name, resolved by the invoker

	// Rates consumed by the percentage-of-income rule.
	EmployerContribution decimal.Decimal
	EmployeeContribution decimal.Decimal
}

// ContributionLength returns the plan's coverage length in months.
func (p ContributionPlan) ContributionLength() int { return p.Periodicity }

type ContributionPlanBundle struct {
	ID          BundleID
	Code        string
	Name        string
	Periodicity int
}

// BundleDetail links a bundle to one member contribution plan.
type BundleDetail struct {
	ID       string
	BundleID BundleID
	PlanID   PlanID
}

// Location is one node of the administrative hierarchy. Type "R" marks a
// region, which carries the department used for code generation.
type Location struct {
	ID       LocationID
	Name     string
	Type     string
	ParentID LocationID
}

type PolicyHolder struct {
	ID          PolicyHolderID
	Code        string
	TradeName   string
	ContactName string
	Email       string
	LocationID  LocationID
}

// PolicyHolderInsuree is one roster entry: an insuree enrolled with a
// policy holder under a contribution plan bundle.
type PolicyHolderInsuree struct {
	ID           string
	PolicyHolder PolicyHolderID
	InsureeID    InsureeID
	BundleID     BundleID
	LastPolicyID PolicyID // empty when the insuree has no policy yet
	Input        CalculationInput
	IsDeleted    bool
}

type Insuree struct {
	ID              InsureeID
	InsuranceNumber string // CHF id, used on payment details
	FamilyID        FamilyID
	OtherNames      string
	LastName        string
}

// =============================================================================
// PAYMENT LINKAGE
// =============================================================================

type Payment struct {
	ID               PaymentID
	ContractID       ContractID
	ExpectedAmount   decimal.Decimal
	ReceivedAmount   decimal.Decimal
	RequestDate      time.Time
	ReceivedDate     *time.Time
	PaymentCode      string
	PaymentReference string
}

type PaymentDetail struct {
	ID              string
	PaymentID       PaymentID
	ProductCode     string
	InsuranceNumber string
	ExpectedAmount  decimal.Decimal
	ContributionID  ContributionID
}

// Contribution is the premium record created per plan-details row on
// approval.
type Contribution struct {
	ID       ContributionID
	PolicyID PolicyID
	Amount   decimal.Decimal
	PayDate  time.Time
	PayType  string
}

// =============================================================================
// ACTOR - caller identity and rights
// =============================================================================

// Right is a capability granted to an actor. Authentication itself is an
// external concern; the engine only checks capabilities.
type Right string

const (
	RightQuery   Right = "contract.query"
	RightCreate  Right = "contract.create"
	RightUpdate  Right = "contract.update"
	RightSubmit  Right = "contract.submit"
	RightApprove Right = "contract.approve" // approve / ask for change
	RightAmend   Right = "contract.amend"
	RightRenew   Right = "contract.renew"
	RightDelete  Right = "contract.delete"
)

type Actor struct {
	ID       string
	Username string
	Rights   map[Right]bool
}

// Anonymous reports whether the actor carries no usable identity.
func (a Actor) Anonymous() bool { return a.ID == "" }

func (a Actor) Has(r Right) bool { return a.Rights[r] }

// SystemActor is used by schedulers and payment callbacks.
func SystemActor() Actor {
	return Actor{
		ID:       "system",
		Username: "system",
		Rights: map[Right]bool{
			RightQuery: true, RightCreate: true, RightUpdate: true,
			RightSubmit: true, RightApprove: true, RightAmend: true,
			RightRenew: true, RightDelete: true,
		},
	}
}
