/*
client.go - Accounting system integration for approved contracts

PURPOSE:
  Implements the contract.ERP collaborator against the accounting system's
  REST API. Every approved contract becomes a one-line customer invoice
  carrying the amount due.

INVOICE SHAPE:
  - customer: the policy holder's accounting customer id
  - invoice date: approval date, dd/mm/yyyy
  - one line whose label is the coverage month ("MMM YYYY", uppercase)
    and whose unit price is the contract amount due

CREATE VS UPDATE:
  A contract that already carries an invoice access id gets its invoice
  updated in place (amendments re-invoice the same document); otherwise a
  new invoice is created and the returned ids are written back onto the
  contract for the caller to persist.

DELIVERY SEMANTICS:
  Best effort. The contract service records failed_to_upload on the
  process status and moves on; the lifecycle state is never affected.

CONFIGURATION (environment):
  ERP_URL, ERP_TOKEN

SEE ALSO:
  - contract/store.go: ERP interface
  - contract/service.go: pushERP
*/
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/warp/contract-engine/contract"
)

// Client talks to the accounting system over HTTP.
type Client struct {
	BaseURL string
	Token   string

	HTTP   *http.Client
	Logger *log.Logger
}

// New creates a client for the given accounting endpoint.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  log.Default(),
	}
}

// NewFromEnv builds a client from ERP_* environment variables. Returns nil
// when ERP_URL is unset so callers can fall back to the nop collaborator.
func NewFromEnv() *Client {
	url := os.Getenv("ERP_URL")
	if url == "" {
		return nil
	}
	return New(url, os.Getenv("ERP_TOKEN"))
}

// invoice is the accounting system's invoice payload.
type invoice struct {
	Customer    string        `json:"customer"`
	InvoiceDate string        `json:"invoice_date"` // dd/mm/yyyy
	Lines       []invoiceLine `json:"lines"`
}

type invoiceLine struct {
	Label     string `json:"label"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// invoiceResponse is what the accounting system returns on create.
type invoiceResponse struct {
	ContractID int    `json:"contract_id"`
	AccessID   string `json:"access_id"`
}

// SubmitContract implements contract.ERP. On a first push the returned
// accounting ids are written onto c; the caller persists them.
func (cl *Client) SubmitContract(ctx context.Context, c *contract.Contract, holder *contract.PolicyHolder) (bool, error) {
	inv := invoice{
		Customer:    holder.Code,
		InvoiceDate: invoiceDate(c),
		Lines: []invoiceLine{{
			Label:     coverageLabel(c.DateValidFrom),
			Quantity:  1,
			UnitPrice: c.AmountDue.StringFixed(2),
		}},
	}

	if c.ErpInvoiceAccessID != "" {
		return cl.updateInvoice(ctx, c, inv)
	}
	return cl.createInvoice(ctx, c, inv)
}

func (cl *Client) createInvoice(ctx context.Context, c *contract.Contract, inv invoice) (bool, error) {
	var resp invoiceResponse
	if err := cl.do(ctx, http.MethodPost, "/invoices", inv, &resp); err != nil {
		return false, err
	}

	c.ErpContractID = resp.ContractID
	c.ErpInvoiceAccessID = resp.AccessID
	cl.Logger.Printf("[ERP] created invoice %s for contract %s", resp.AccessID, c.Code)
	return true, nil
}

func (cl *Client) updateInvoice(ctx context.Context, c *contract.Contract, inv invoice) (bool, error) {
	path := "/invoices/" + c.ErpInvoiceAccessID
	if err := cl.do(ctx, http.MethodPut, path, inv, nil); err != nil {
		return false, err
	}
	cl.Logger.Printf("[ERP] updated invoice %s for contract %s", c.ErpInvoiceAccessID, c.Code)
	return true, nil
}

func (cl *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, cl.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cl.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.Token)
	}

	resp, err := cl.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// invoiceDate renders the approval date as dd/mm/yyyy, falling back to the
// coverage start when the approval stamp is missing.
func invoiceDate(c *contract.Contract) string {
	d := c.DateValidFrom
	if c.DateApproved != nil {
		d = *c.DateApproved
	}
	return d.Format("02/01/2006")
}

// coverageLabel renders the covered month, e.g. "MAR 2026".
func coverageLabel(from time.Time) string {
	return strings.ToUpper(from.Format("Jan 2006"))
}
