/*
handlers_test.go - HTTP API tests

PURPOSE:
  Exercises the REST surface end to end over the in-memory store: actor
  extraction, the Result envelope mapping, and the contract lifecycle
  driven purely through HTTP.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/api"
	"github.com/warp/contract-engine/calcrule"
	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/contract/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

type testEnv struct {
	router http.Handler
	tasks  *api.TaskRunner
	store  *store.Memory
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	mem.AddLocation(contract.Location{ID: "L-R", Name: "Brazzaville", Type: "R"})
	mem.AddLocation(contract.Location{ID: "L-D", Name: "Makélékélé", Type: "D", ParentID: "L-R"})
	mem.AddPolicyHolder(contract.PolicyHolder{
		ID: "PH-1", Code: "ACME", TradeName: "Acme Works",
		Email: "payroll@acme.example", LocationID: "L-D",
	})
	mem.AddProduct(contract.Product{ID: "PR-1", Code: "HP", InsurancePeriod: 1})
	mem.AddPlan(contract.ContributionPlan{
		ID: "CP-1", Code: "CP-1", Periodicity: 1, ProductID: "PR-1",
		EmployerContribution: decimal.NewFromInt(10),
		EmployeeContribution: decimal.NewFromInt(5),
	})
	mem.AddBundle(contract.ContributionPlanBundle{ID: "B-1", Code: "B-1", Periodicity: 1}, "CP-1")
	mem.AddInsuree(contract.Insuree{ID: "I-1", InsuranceNumber: "CHF001", FamilyID: "F-1", LastName: "Okoro"})
	mem.AddPolicyHolderInsuree(contract.PolicyHolderInsuree{
		ID: "PHI-1", PolicyHolder: "PH-1", InsureeID: "I-1", BundleID: "B-1",
		Input: contract.CalculationInput{
			CalculationRule: contract.CalculationRuleInput{Income: decimal.NewFromInt(100000)},
		},
	})

	svc := contract.NewService(mem, calcrule.DefaultRegistry(), log.New(&bytes.Buffer{}, "", 0))
	svc.Now = func() time.Time {
		return time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	}

	tasks := api.NewTaskRunner(1)
	tasks.Start()
	t.Cleanup(tasks.Stop)

	h := api.NewHandler(svc, tasks)
	return &testEnv{router: api.NewRouter(h), tasks: tasks, store: mem}
}

// do issues a request with the full-rights gateway identity attached.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, method, path, body,
		"contract.query,contract.create,contract.update,contract.submit,contract.approve,contract.amend,contract.renew,contract.delete")
}

func (e *testEnv) doAs(t *testing.T, method, path string, body any, rights string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if rights != "" {
		req.Header.Set("X-User-Id", "u-1")
		req.Header.Set("X-User-Name", "tester")
		req.Header.Set("X-User-Rights", rights)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) contract.Result {
	t.Helper()
	var res contract.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func createContract(t *testing.T, e *testEnv) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/contracts", map[string]string{
		"policy_holder_id": "PH-1",
		"date_valid_from":  "2026-01-01",
		"date_valid_to":    "2026-01-31",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeEnvelope(t, rec)
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	// the envelope serializes the contract through the domain struct; the
	// id travels under its Go field name
	id, _ := data["ID"].(string)
	require.NotEmpty(t, id)
	return id
}

// =============================================================================
// AUTHENTICATION AND PERMISSIONS
// =============================================================================

func TestListContracts_RequiresIdentity(t *testing.T) {
	e := newEnv(t)

	rec := e.doAs(t, http.MethodGet, "/api/contracts?policy_holder_id=PH-1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListContracts_RequiresQueryRight(t *testing.T) {
	e := newEnv(t)

	rec := e.doAs(t, http.MethodGet, "/api/contracts?policy_holder_id=PH-1", nil, "contract.create")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperations_AnonymousGets401Envelope(t *testing.T) {
	e := newEnv(t)

	rec := e.doAs(t, http.MethodPost, "/api/contracts/C-000001/submit", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	res := decodeEnvelope(t, rec)
	assert.Equal(t, "Authentication required", res.Message)
}

// =============================================================================
// CONTRACT LIFECYCLE OVER HTTP
// =============================================================================

func TestContractLifecycle(t *testing.T) {
	e := newEnv(t)

	// create
	id := createContract(t, e)

	// list shows the draft
	rec := e.do(t, http.MethodGet, "/api/contracts?policy_holder_id=PH-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "draft", list[0]["state_label"])
	assert.Equal(t, "15000", list[0]["amount"])

	// submit
	rec = e.do(t, http.MethodPost, "/api/contracts/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// approve
	rec = e.do(t, http.MethodPost, "/api/contracts/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the detail view shows the executable contract with valuation units
	rec = e.do(t, http.MethodGet, "/api/contracts/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Contract    map[string]any   `json:"contract"`
		Details     []map[string]any `json:"details"`
		PlanDetails []map[string]any `json:"plan_details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, "executable", detail.Contract["state_label"])
	assert.Len(t, detail.Details, 1)
	assert.Len(t, detail.PlanDetails, 1)

	// deleting the executable contract is refused with the envelope
	rec = e.do(t, http.MethodDelete, "/api/contracts/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decodeEnvelope(t, rec)
	assert.Contains(t, res.Message, "cannot be deleted")
}

func TestGetContract_NotFound(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/contracts/C-999999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateContract_BadDates(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/contracts", map[string]string{
		"policy_holder_id": "PH-1",
		"date_valid_from":  "01/01/2026",
		"date_valid_to":    "2026-01-31",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateContract_PaymentReference(t *testing.T) {
	e := newEnv(t)
	id := createContract(t, e)

	rec := e.do(t, http.MethodPut, "/api/contracts/"+id, map[string]string{
		"payment_reference": "BANK-REF-42",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeEnvelope(t, rec)
	assert.True(t, res.Success)
}

func TestImportSalarySheet_RejectsBadIncome(t *testing.T) {
	e := newEnv(t)
	id := createContract(t, e)

	rec := e.do(t, http.MethodPost, "/api/contracts/"+id+"/salary-sheet", map[string]any{
		"rows": []map[string]string{{"insurance_number": "CHF001", "income": "not-a-number"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// BACKGROUND TASKS
// =============================================================================

func TestBulkApprove_RunsAsTask(t *testing.T) {
	e := newEnv(t)
	id := createContract(t, e)
	rec := e.do(t, http.MethodPost, "/api/contracts/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN the bulk approval is accepted
	rec = e.do(t, http.MethodPost, "/api/contracts/bulk/approve", map[string]any{
		"contract_ids": []string{id},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var task map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	taskID := task["id"].(string)

	// THEN polling eventually reports success
	status := pollTask(t, e, taskID)
	assert.Equal(t, "success", status)

	// AND the contract reached EXECUTABLE
	rec = e.do(t, http.MethodGet, "/api/contracts/"+id, nil)
	var detail struct {
		Contract map[string]any `json:"contract"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, "executable", detail.Contract["state_label"])
}

func TestBulkApprove_CollectsPerItemErrors(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/contracts/bulk/approve", map[string]any{
		"contract_ids": []string{"C-999999"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var task map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))

	status := pollTask(t, e, task["id"].(string))
	assert.Equal(t, "failure", status)
}

func TestGetTask_Unknown(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/tasks/task-999999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func pollTask(t *testing.T, e *testEnv, id string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := e.do(t, http.MethodGet, "/api/tasks/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var task map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
		status := task["status"].(string)
		if status == "success" || status == "failure" {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task did not finish in time")
	return ""
}

// =============================================================================
// PAYMENTS AND SCENARIOS
// =============================================================================

func TestPaymentCallback_RequiresPaymentID(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/payments/callback", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_DisabledWithoutSeeder(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "small-employer"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/scenarios", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "the catalogue itself stays readable")
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
