/*
derive.go - Amendment and renewal builders

PURPOSE:
  Amend and renew both start from a copy of an existing contract. The
  builders here return a fresh value with its own audit trail so the new
  generation never aliases the original's nested state.
*/
package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// deriveAmendment builds the next amendment generation of c. The copy
// keeps the code and validity window, bumps the amendment counter and
// restarts the lifecycle in DRAFT.
func deriveAmendment(c *Contract) *Contract {
	next := *c
	next.ID = ""
	next.Amendment = c.Amendment + 1
	next.State = StateDraft
	next.Version = 1
	next.DateApproved = nil
	next.DatePaymentDue = nil
	next.ErpInvoiceAccessID = ""
	next.Audit = AuditTrail{}
	if c.ID != "" {
		next.ParentID = c.ID
	}
	return &next
}

// deriveRenewal builds a renewal of c covering the next window of the
// same length: it starts the day after the original expires and carries
// no valuation amounts yet.
func deriveRenewal(c *Contract, now time.Time) *Contract {
	lengthMonths := monthsBetween(c.DateValidFrom, c.DateValidTo)

	next := *c
	next.ID = ""
	next.Amendment = 0
	next.State = StateDraft
	next.Version = 1
	next.AmountRectified = decimal.Zero
	next.AmountDue = decimal.Zero
	next.DateApproved = nil
	next.DatePaymentDue = nil
	next.ErpContractID = 0
	next.ErpInvoiceAccessID = ""
	next.Audit = AuditTrail{}
	next.ParentID = c.ID

	next.DateValidFrom = c.DateValidTo.AddDate(0, 0, 1)
	next.DateValidTo = addMonths(next.DateValidFrom, lengthMonths)
	next.DateCreated = now
	return &next
}

// copyDetails clones enrollment rows onto a new contract generation.
func copyDetails(rows []*ContractDetails, target ContractID) []*ContractDetails {
	out := make([]*ContractDetails, 0, len(rows))
	for _, d := range rows {
		c := *d
		c.ID = ""
		c.ContractID = target
		out = append(out, &c)
	}
	return out
}
