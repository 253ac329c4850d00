/*
handlers.go - HTTP API handlers for the contract lifecycle engine

PURPOSE:
  Exposes the contract engine via REST API. Handles HTTP request/response,
  JSON serialization, actor extraction, and delegates to domain logic.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                   List contracts for a policy holder
    POST   /api/contracts                   Create contract (sync)
    POST   /api/contracts/async             Create contract (background task)
    GET    /api/contracts/{id}              Contract + details + valuation units
    PUT    /api/contracts/{id}              Field update
    DELETE /api/contracts/{id}              Soft delete
    POST   /api/contracts/{id}/submit       DRAFT/RFI/COUNTER -> NEGOTIABLE
    POST   /api/contracts/{id}/approve      NEGOTIABLE -> EXECUTABLE
    POST   /api/contracts/{id}/counter      NEGOTIABLE -> COUNTER
    POST   /api/contracts/{id}/amend        Next amendment generation
    POST   /api/contracts/{id}/renew        Renewal generation
    POST   /api/contracts/{id}/salary-sheet Batch salary import

  Bulk (background tasks):
    POST   /api/contracts/bulk/approve
    POST   /api/contracts/bulk/counter
    GET    /api/tasks/{id}                  Task status polling

  Payments:
    POST   /api/payments/callback           Activate contracts on payment
    GET    /api/payments/{id}/negative-amendments

  Admin:
    POST   /api/admin/terminate             Terminate expired contracts now

ACTOR EXTRACTION:
  The gateway in front of this service authenticates callers and forwards
  identity as headers: X-User-Id, X-User-Name and X-User-Rights (comma
  separated capability list). The engine only checks capabilities.

ERROR HANDLING:
  Domain operations return the uniform Result envelope; the HTTP layer maps
  Success=false to 400 (or 401 for missing identity) and passes the
  envelope body through unchanged.

SEE ALSO:
  - dto.go: Request/response data structures
  - tasks.go: Background task runner
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/contract-engine/contract"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *contract.Service
	Store   contract.Store
	Tasks   *TaskRunner

	// Seed enables the scenario endpoints when non-nil.
	Seed            Seeder
	currentScenario string
}

// NewHandler creates a new handler around the contract service.
func NewHandler(svc *contract.Service, tasks *TaskRunner) *Handler {
	return &Handler{Service: svc, Store: svc.Store, Tasks: tasks}
}

// actorFrom builds the caller identity from gateway headers.
func actorFrom(r *http.Request) contract.Actor {
	a := contract.Actor{
		ID:       r.Header.Get("X-User-Id"),
		Username: r.Header.Get("X-User-Name"),
		Rights:   map[contract.Right]bool{},
	}
	for _, right := range strings.Split(r.Header.Get("X-User-Rights"), ",") {
		right = strings.TrimSpace(right)
		if right != "" {
			a.Rights[contract.Right(right)] = true
		}
	}
	return a
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns the contracts of a policy holder.
// GET /api/contracts?policy_holder_id=PH-1
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Anonymous() {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	if !actor.Has(contract.RightQuery) {
		writeError(w, http.StatusForbidden, "Missing contract.query right", nil)
		return
	}

	holder := r.URL.Query().Get("policy_holder_id")
	if holder == "" {
		writeError(w, http.StatusBadRequest, "policy_holder_id is required", nil)
		return
	}

	contracts, err := h.Store.ContractsByPolicyHolder(r.Context(), contract.PolicyHolderID(holder))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	writeJSON(w, http.StatusOK, toContractDTOs(contracts))
}

// GetContract returns one contract with its details and valuation units.
// GET /api/contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Anonymous() {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	if !actor.Has(contract.RightQuery) {
		writeError(w, http.StatusForbidden, "Missing contract.query right", nil)
		return
	}

	ctx := r.Context()
	id := contract.ContractID(chi.URLParam(r, "id"))

	c, err := h.Store.GetContract(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load contract", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}

	details, err := h.Store.DetailsByContract(ctx, id, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load contract details", err)
		return
	}
	units, err := h.Store.PlanDetailsByContract(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load valuation units", err)
		return
	}

	detailDTOs := make([]ContractDetailsDTO, len(details))
	for i, d := range details {
		detailDTOs[i] = toDetailsDTO(d)
	}
	unitDTOs := make([]PlanDetailsDTO, len(units))
	for i, u := range units {
		unitDTOs[i] = toPlanDetailsDTO(u)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contract":     toContractDTO(c),
		"details":      detailDTOs,
		"plan_details": unitDTOs,
	})
}

// CreateContract creates a DRAFT contract synchronously.
// POST /api/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res := h.Service.Create(r.Context(), actorFrom(r), req)
	writeResult(w, res)
}

// CreateContractAsync runs contract creation on the task runner. Creation
// over a large roster valuates every insuree and can outlive the request.
// POST /api/contracts/async
func (h *Handler) CreateContractAsync(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor := actorFrom(r)
	task, err := h.Tasks.Submit("contract_create", func() []string {
		res := h.Service.Create(context.Background(), actor, req)
		if !res.Success {
			return []string{fmt.Sprintf("%s: %s", res.Message, res.Detail)}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Task queue is full", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskDTO(task))
}

func decodeCreateRequest(r *http.Request) (contract.CreateRequest, error) {
	var body CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return contract.CreateRequest{}, err
	}
	from, err := parseDate(body.DateValidFrom)
	if err != nil {
		return contract.CreateRequest{}, fmt.Errorf("date_valid_from: %w", err)
	}
	to, err := parseDate(body.DateValidTo)
	if err != nil {
		return contract.CreateRequest{}, fmt.Errorf("date_valid_to: %w", err)
	}
	return contract.CreateRequest{
		PolicyHolderID: contract.PolicyHolderID(body.PolicyHolderID),
		DateValidFrom:  from,
		DateValidTo:    to,
	}, nil
}

// UpdateContract applies a field update.
// PUT /api/contracts/{id}
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	var body UpdateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := contract.UpdateRequest{
		ID:               contract.ContractID(chi.URLParam(r, "id")),
		Code:             body.Code,
		PaymentReference: body.PaymentReference,

		UseBundleContributionPlanAmount: body.UseBundleContributionPlanAmount,
	}
	if body.PolicyHolderID != nil {
		id := contract.PolicyHolderID(*body.PolicyHolderID)
		req.PolicyHolderID = &id
	}

	var err error
	if req.DateValidFrom, err = parseDatePtr(body.DateValidFrom); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_valid_from", err)
		return
	}
	if req.DateValidTo, err = parseDatePtr(body.DateValidTo); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_valid_to", err)
		return
	}
	if req.PaymentDue, err = parseDatePtr(body.PaymentDue); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_due", err)
		return
	}

	writeResult(w, h.Service.Update(r.Context(), actorFrom(r), req))
}

// SubmitContract moves an updatable contract to NEGOTIABLE.
// POST /api/contracts/{id}/submit
func (h *Handler) SubmitContract(w http.ResponseWriter, r *http.Request) {
	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.Submit(r.Context(), actorFrom(r), id))
}

// ApproveContract runs the approval pipeline on a NEGOTIABLE contract.
// POST /api/contracts/{id}/approve
func (h *Handler) ApproveContract(w http.ResponseWriter, r *http.Request) {
	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.Approve(r.Context(), actorFrom(r), id))
}

// CounterContract asks for changes on a NEGOTIABLE contract.
// POST /api/contracts/{id}/counter
func (h *Handler) CounterContract(w http.ResponseWriter, r *http.Request) {
	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.Counter(r.Context(), actorFrom(r), id))
}

// AmendContract derives the next amendment generation.
// POST /api/contracts/{id}/amend
func (h *Handler) AmendContract(w http.ResponseWriter, r *http.Request) {
	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.Amend(r.Context(), actorFrom(r), id))
}

// RenewContract derives a renewal for the following coverage window.
// POST /api/contracts/{id}/renew
func (h *Handler) RenewContract(w http.ResponseWriter, r *http.Request) {
	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.Renew(r.Context(), actorFrom(r), id))
}

// DeleteContract soft-deletes a contract.
// DELETE /api/contracts/{id}
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.Delete(r.Context(), actorFrom(r), id))
}

// ImportSalarySheet applies a salary batch to a contract's details.
// POST /api/contracts/{id}/salary-sheet
func (h *Handler) ImportSalarySheet(w http.ResponseWriter, r *http.Request) {
	var body SalarySheetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rows := make([]contract.SalaryRow, 0, len(body.Rows))
	for _, row := range body.Rows {
		income, err := decimal.NewFromString(row.Income)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid income for %s", row.InsuranceNumber), err)
			return
		}
		rows = append(rows, contract.SalaryRow{
			InsuranceNumber: row.InsuranceNumber,
			Income:          income,
		})
	}

	id := contract.ContractID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.ImportSalarySheet(r.Context(), actorFrom(r), id, rows))
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// BulkApprove approves a batch of contracts on the task runner.
// POST /api/contracts/bulk/approve
func (h *Handler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "bulk_approve", h.Service.Approve)
}

// BulkCounter counters a batch of contracts on the task runner.
// POST /api/contracts/bulk/counter
func (h *Handler) BulkCounter(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "bulk_counter", h.Service.Counter)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, kind string,
	op func(ctx context.Context, actor contract.Actor, id contract.ContractID) contract.Result) {

	var body BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body.ContractIDs) == 0 {
		writeError(w, http.StatusBadRequest, "contract_ids is required", nil)
		return
	}

	actor := actorFrom(r)
	ids := append([]string{}, body.ContractIDs...)

	task, err := h.Tasks.Submit(kind, func() []string {
		var errs []string
		for _, id := range ids {
			res := op(context.Background(), actor, contract.ContractID(id))
			if !res.Success {
				errs = append(errs, fmt.Sprintf("%s: %s: %s", id, res.Message, res.Detail))
			}
		}
		return errs
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Task queue is full", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskDTO(task))
}

// GetTask reports a background task's status.
// GET /api/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task := h.Tasks.Get(chi.URLParam(r, "id"))
	if task == nil {
		writeError(w, http.StatusNotFound, "Task not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

func toTaskDTO(t *Task) TaskDTO {
	return TaskDTO{
		ID:        t.ID,
		Kind:      t.Kind,
		Status:    string(t.Status),
		Errors:    t.Errors,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// PaymentCallback activates covered contracts once a payment is complete.
// Called by the payment reconciliation system, not end users.
// POST /api/payments/callback
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var body PaymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.PaymentID == "" {
		writeError(w, http.StatusBadRequest, "payment_id is required", nil)
		return
	}

	writeResult(w, h.Service.ActivateOnPayment(r.Context(), contract.PaymentID(body.PaymentID)))
}

// NegativeAmendments reports credit-note amendments behind a payment.
// GET /api/payments/{id}/negative-amendments
func (h *Handler) NegativeAmendments(w http.ResponseWriter, r *http.Request) {
	id := contract.PaymentID(chi.URLParam(r, "id"))
	writeResult(w, h.Service.NegativeAmountAmendments(r.Context(), actorFrom(r), id))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TerminateExpired flips overdue EFFECTIVE contracts to TERMINATED.
// Normally driven by the scheduler; exposed for manual runs.
// POST /api/admin/terminate
func (h *Handler) TerminateExpired(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.Service.TerminateExpired(r.Context(), contract.SystemActor()))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeResult maps the domain Result envelope onto HTTP. The envelope body
// is passed through unchanged so clients see one shape everywhere.
func writeResult(w http.ResponseWriter, res contract.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
		if res.Message == "Authentication required" {
			status = http.StatusUnauthorized
		}
	}
	writeJSON(w, status, res)
}
