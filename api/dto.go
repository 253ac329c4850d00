/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Contract:
    ContractDTO, CreateContractRequest, UpdateContractRequest

  Details:
    ContractDetailsDTO, PlanDetailsDTO

  Payments:
    PaymentCallbackRequest, SalarySheetRequest

  Tasks:
    TaskDTO, BulkRequest

DATES:
  Validity dates travel as ISO dates (2006-01-02); timestamps as RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - contract/service.go: Result envelope returned by most endpoints
*/
package api

import (
	"time"

	"github.com/warp/contract-engine/contract"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID               string  `json:"id"`
	Code             string  `json:"code"`
	PolicyHolderID   string  `json:"policy_holder_id"`
	State            int     `json:"state"`
	StateLabel       string  `json:"state_label"`
	Amendment        int     `json:"amendment"`
	Version          int     `json:"version"`
	Amount           string  `json:"amount"`
	AmountNotified   string  `json:"amount_notified"`
	AmountRectified  string  `json:"amount_rectified"`
	AmountDue        string  `json:"amount_due"`
	DateValidFrom    string  `json:"date_valid_from"`
	DateValidTo      string  `json:"date_valid_to"`
	DateApproved     *string `json:"date_approved,omitempty"`
	DatePaymentDue   *string `json:"date_payment_due,omitempty"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	PenaltyRaised    bool    `json:"penalty_raised"`
	ProcessStatus    string  `json:"process_status,omitempty"`
	DateCreated      string  `json:"date_created"`
	DateUpdated      string  `json:"date_updated"`
}

// CreateContractRequest is the request to create a contract.
type CreateContractRequest struct {
	PolicyHolderID string `json:"policy_holder_id"`
	DateValidFrom  string `json:"date_valid_from"`
	DateValidTo    string `json:"date_valid_to"`
}

// UpdateContractRequest carries optional field updates. Absent fields are
// left untouched.
type UpdateContractRequest struct {
	Code             *string `json:"code,omitempty"`
	PolicyHolderID   *string `json:"policy_holder_id,omitempty"`
	DateValidFrom    *string `json:"date_valid_from,omitempty"`
	DateValidTo      *string `json:"date_valid_to,omitempty"`
	PaymentReference *string `json:"payment_reference,omitempty"`
	PaymentDue       *string `json:"payment_due,omitempty"`

	UseBundleContributionPlanAmount *bool `json:"use_bundle_contribution_plan_amount,omitempty"`
}

// ContractDetailsDTO represents one enrolled insuree.
type ContractDetailsDTO struct {
	ID          string `json:"id"`
	ContractID  string `json:"contract_id"`
	InsureeID   string `json:"insuree_id"`
	BundleID    string `json:"bundle_id"`
	IsConfirmed bool   `json:"is_confirmed"`
	Income      string `json:"income"`
	Forfait     string `json:"forfait"`
}

// PlanDetailsDTO represents one valuation unit.
type PlanDetailsDTO struct {
	ID               string `json:"id"`
	DetailsID        string `json:"details_id"`
	PlanID           string `json:"plan_id"`
	PolicyID         string `json:"policy_id,omitempty"`
	ContributionID   string `json:"contribution_id,omitempty"`
	DateValidFrom    string `json:"date_valid_from"`
	DateValidTo      string `json:"date_valid_to"`
	CalculatedAmount string `json:"calculated_amount"`
}

// PaymentCallbackRequest signals an external payment reconciliation.
type PaymentCallbackRequest struct {
	PaymentID string `json:"payment_id"`
}

// SalarySheetRequest is a batch of declared gross salaries.
type SalarySheetRequest struct {
	Rows []SalaryRowDTO `json:"rows"`
}

// SalaryRowDTO is one declared salary line.
type SalaryRowDTO struct {
	InsuranceNumber string `json:"insurance_number"`
	Income          string `json:"income"`
}

// BulkRequest names contracts for a background bulk operation.
type BulkRequest struct {
	ContractIDs []string `json:"contract_ids"`
}

// TaskDTO reports a background task.
type TaskDTO struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Status    string   `json:"status"`
	Errors    []string `json:"errors,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toContractDTO(c *contract.Contract) ContractDTO {
	return ContractDTO{
		ID:               string(c.ID),
		Code:             c.Code,
		PolicyHolderID:   string(c.PolicyHolderID),
		State:            int(c.State),
		StateLabel:       c.State.String(),
		Amendment:        c.Amendment,
		Version:          c.Version,
		Amount:           c.Amount().String(),
		AmountNotified:   c.AmountNotified.String(),
		AmountRectified:  c.AmountRectified.String(),
		AmountDue:        c.AmountDue.String(),
		DateValidFrom:    c.DateValidFrom.Format(dateLayout),
		DateValidTo:      c.DateValidTo.Format(dateLayout),
		DateApproved:     fmtDatePtr(c.DateApproved),
		DatePaymentDue:   fmtDatePtr(c.DatePaymentDue),
		PaymentReference: c.PaymentReference,
		PenaltyRaised:    c.PenaltyRaised,
		ProcessStatus:    string(c.ProcessStatus),
		DateCreated:      c.DateCreated.Format(time.RFC3339),
		DateUpdated:      c.DateUpdated.Format(time.RFC3339),
	}
}

func toContractDTOs(contracts []*contract.Contract) []ContractDTO {
	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	return dtos
}

func toDetailsDTO(d *contract.ContractDetails) ContractDetailsDTO {
	return ContractDetailsDTO{
		ID:          string(d.ID),
		ContractID:  string(d.ContractID),
		InsureeID:   string(d.InsureeID),
		BundleID:    string(d.BundleID),
		IsConfirmed: d.IsConfirmed,
		Income:      d.Input.CalculationRule.Income.String(),
		Forfait:     d.Input.ForfaitRule.Total.String(),
	}
}

func toPlanDetailsDTO(p *contract.ContributionPlanDetails) PlanDetailsDTO {
	return PlanDetailsDTO{
		ID:               string(p.ID),
		DetailsID:        string(p.DetailsID),
		PlanID:           string(p.PlanID),
		PolicyID:         string(p.PolicyID),
		ContributionID:   string(p.ContributionID),
		DateValidFrom:    p.DateValidFrom.Format(dateLayout),
		DateValidTo:      p.DateValidTo.Format(dateLayout),
		CalculatedAmount: p.CalculatedAmount.String(),
	}
}

func fmtDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
