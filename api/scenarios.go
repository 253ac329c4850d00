/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates locations, policy
	holders, insurees, products, contribution plans, bundles and roster
	entries that demonstrate specific features.

AVAILABLE SCENARIOS:

	small-employer:    Monthly product, percentage-of-income plan, 3 insurees
	quarterly-forfait: Quarterly product with a lump-sum (forfait) plan
	annual-mixed:      Annual product, mixed bundle, waiting periods

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the administrative location hierarchy
 3. Seed products, contribution plans and bundles
 4. Seed a policy holder with an enrolled insuree roster
 5. Create a DRAFT contract over the roster

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-employer"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
  - store/sqlite/sqlite.go: Save* seed helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/contract-engine/calcrule"
	"github.com/warp/contract-engine/contract"
)

// Seeder is the slice of the sqlite store the scenario loaders need:
// reference-data upserts plus a full reset.
type Seeder interface {
	Reset(ctx context.Context) error
	SaveLocation(ctx context.Context, l contract.Location) error
	SavePolicyHolder(ctx context.Context, h contract.PolicyHolder) error
	SaveInsuree(ctx context.Context, i contract.Insuree) error
	SaveProduct(ctx context.Context, p contract.Product) error
	SavePlan(ctx context.Context, p contract.ContributionPlan) error
	SaveBundle(ctx context.Context, b contract.ContributionPlanBundle, plans ...contract.PlanID) error
	SavePolicyHolderInsuree(ctx context.Context, phi contract.PolicyHolderInsuree) error
	SaveWaitingPeriod(ctx context.Context, wp contract.InsureeWaitingPeriod) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "small-employer",
		Name:        "Small Employer",
		Description: "Monthly product with a percentage-of-income plan and three insurees",
		Category:    "contract",
	},
	{
		ID:          "quarterly-forfait",
		Name:        "Quarterly Forfait",
		Description: "Quarterly product with a lump-sum contribution plan",
		Category:    "contract",
	},
	{
		ID:          "annual-mixed",
		Name:        "Annual Mixed Bundle",
		Description: "Annual product, percentage + forfait bundle, insuree waiting periods",
		Category:    "contract",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Seed == nil {
		writeError(w, http.StatusNotImplemented, "Scenarios are not enabled on this deployment", nil)
		return
	}

	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Seed.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "small-employer":
		err = h.loadSmallEmployerScenario(ctx)
	case "quarterly-forfait":
		err = h.loadQuarterlyForfaitScenario(ctx)
	case "annual-mixed":
		err = h.loadAnnualMixedScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Seed == nil {
		writeError(w, http.StatusNotImplemented, "Scenarios are not enabled on this deployment", nil)
		return
	}
	if err := h.Seed.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// demoActor carries every contract right for scenario-driven operations.
func demoActor() contract.Actor {
	return contract.Actor{
		ID:       "demo",
		Username: "Demo Admin",
		Rights: map[contract.Right]bool{
			contract.RightQuery:  true,
			contract.RightCreate: true,
			contract.RightUpdate: true,
			contract.RightSubmit: true,
		},
	}
}

// seedRegion plants the shared location hierarchy: a region and a district
// underneath it. The region name's first two letters become the department
// segment of generated contract codes.
func (h *Handler) seedRegion(ctx context.Context) error {
	region := contract.Location{ID: "L-R1", Name: "Brazzaville", Type: "R"}
	if err := h.Seed.SaveLocation(ctx, region); err != nil {
		return err
	}
	district := contract.Location{ID: "L-D1", Name: "Makélékélé", Type: "D", ParentID: region.ID}
	return h.Seed.SaveLocation(ctx, district)
}

// =============================================================================
// SCENARIO 1: SMALL EMPLOYER
// =============================================================================

func (h *Handler) loadSmallEmployerScenario(ctx context.Context) error {
	if err := h.seedRegion(ctx); err != nil {
		return err
	}

	product := contract.Product{
		ID:              "PR-M1",
		Code:            "HEALTH-M",
		InsurancePeriod: 1,
	}
	if err := h.Seed.SaveProduct(ctx, product); err != nil {
		return err
	}

	plan := contract.ContributionPlan{
		ID:                   "CP-PCT",
		Code:                 "CP-PCT",
		Name:                 "Monthly percentage plan",
		Periodicity:          1,
		ProductID:            product.ID,
		CalcRule:             calcrule.RulePercentageOfIncome,
		EmployerContribution: decimal.NewFromInt(10),
		EmployeeContribution: decimal.NewFromInt(5),
	}
	if err := h.Seed.SavePlan(ctx, plan); err != nil {
		return err
	}

	bundle := contract.ContributionPlanBundle{
		ID:          "B-M1",
		Code:        "B-M1",
		Name:        "Monthly bundle",
		Periodicity: 1,
	}
	if err := h.Seed.SaveBundle(ctx, bundle, plan.ID); err != nil {
		return err
	}

	holder := contract.PolicyHolder{
		ID:          "PH-ACME",
		Code:        "ACME",
		TradeName:   "Acme Works",
		ContactName: "J. Mfume",
		Email:       "payroll@acme.example",
		LocationID:  "L-D1",
	}
	if err := h.Seed.SavePolicyHolder(ctx, holder); err != nil {
		return err
	}

	insurees := []struct {
		id, chf, last, other string
		income               int64
	}{
		{"I-1", "CHF001", "Okoro", "Ama", 100000},
		{"I-2", "CHF002", "Diallo", "Sia", 85000},
		{"I-3", "CHF003", "Mwangi", "Ken", 120000},
	}
	for n, ins := range insurees {
		if err := h.Seed.SaveInsuree(ctx, contract.Insuree{
			ID:              contract.InsureeID(ins.id),
			InsuranceNumber: ins.chf,
			FamilyID:        contract.FamilyID(fmt.Sprintf("F-%d", n+1)),
			LastName:        ins.last,
			OtherNames:      ins.other,
		}); err != nil {
			return err
		}
		if err := h.Seed.SavePolicyHolderInsuree(ctx, contract.PolicyHolderInsuree{
			ID:           fmt.Sprintf("PHI-%d", n+1),
			PolicyHolder: holder.ID,
			InsureeID:    contract.InsureeID(ins.id),
			BundleID:     bundle.ID,
			Input: contract.CalculationInput{
				CalculationRule: contract.CalculationRuleInput{
					Income: decimal.NewFromInt(ins.income),
					Rate:   decimal.NewFromInt(15),
				},
			},
		}); err != nil {
			return err
		}
	}

	// A DRAFT contract over the roster, valuated on creation.
	from := monthStart(time.Now().UTC())
	res := h.Service.Create(ctx, demoActor(), contract.CreateRequest{
		PolicyHolderID: holder.ID,
		DateValidFrom:  from,
		DateValidTo:    from.AddDate(0, 1, -1),
	})
	if !res.Success {
		return fmt.Errorf("seed contract: %s: %s", res.Message, res.Detail)
	}
	return nil
}

// =============================================================================
// SCENARIO 2: QUARTERLY FORFAIT
// =============================================================================

func (h *Handler) loadQuarterlyForfaitScenario(ctx context.Context) error {
	if err := h.seedRegion(ctx); err != nil {
		return err
	}

	product := contract.Product{
		ID:              "PR-Q1",
		Code:            "HEALTH-Q",
		InsurancePeriod: 3,
	}
	if err := h.Seed.SaveProduct(ctx, product); err != nil {
		return err
	}

	plan := contract.ContributionPlan{
		ID:          "CP-FF",
		Code:        "CP-FF",
		Name:        "Quarterly forfait plan",
		Periodicity: 3,
		ProductID:   product.ID,
		CalcRule:    calcrule.RuleForfait,
	}
	if err := h.Seed.SavePlan(ctx, plan); err != nil {
		return err
	}

	bundle := contract.ContributionPlanBundle{
		ID:          "B-Q1",
		Code:        "B-Q1",
		Name:        "Quarterly bundle",
		Periodicity: 3,
	}
	if err := h.Seed.SaveBundle(ctx, bundle, plan.ID); err != nil {
		return err
	}

	holder := contract.PolicyHolder{
		ID:         "PH-RIVER",
		Code:       "RIVER",
		TradeName:  "River Logistics",
		Email:      "hr@river.example",
		LocationID: "L-D1",
	}
	if err := h.Seed.SavePolicyHolder(ctx, holder); err != nil {
		return err
	}

	if err := h.Seed.SaveInsuree(ctx, contract.Insuree{
		ID:              "I-10",
		InsuranceNumber: "CHF010",
		FamilyID:        "F-10",
		LastName:        "Traore",
		OtherNames:      "Bintou",
	}); err != nil {
		return err
	}

	return h.Seed.SavePolicyHolderInsuree(ctx, contract.PolicyHolderInsuree{
		ID:           "PHI-10",
		PolicyHolder: holder.ID,
		InsureeID:    "I-10",
		BundleID:     bundle.ID,
		Input: contract.CalculationInput{
			ForfaitRule: contract.ForfaitRuleInput{
				Total:                decimal.NewFromInt(45000),
				EmployerContribution: decimal.NewFromInt(30000),
				SalaryShare:          decimal.NewFromInt(15000),
			},
		},
	})
}

// =============================================================================
// SCENARIO 3: ANNUAL MIXED BUNDLE
// =============================================================================

func (h *Handler) loadAnnualMixedScenario(ctx context.Context) error {
	if err := h.seedRegion(ctx); err != nil {
		return err
	}

	product := contract.Product{
		ID:                  "PR-Y1",
		Code:                "HEALTH-Y",
		InsurancePeriod:     12,
		PolicyWaitingPeriod: 1,
	}
	if err := h.Seed.SaveProduct(ctx, product); err != nil {
		return err
	}

	pct := contract.ContributionPlan{
		ID:                   "CP-YPCT",
		Code:                 "CP-YPCT",
		Name:                 "Annual percentage plan",
		Periodicity:          12,
		ProductID:            product.ID,
		CalcRule:             calcrule.RulePercentageOfIncome,
		EmployerContribution: decimal.NewFromInt(8),
		EmployeeContribution: decimal.NewFromInt(4),
	}
	if err := h.Seed.SavePlan(ctx, pct); err != nil {
		return err
	}
	ff := contract.ContributionPlan{
		ID:          "CP-YFF",
		Code:        "CP-YFF",
		Name:        "Annual forfait plan",
		Periodicity: 12,
		ProductID:   product.ID,
		CalcRule:    calcrule.RuleForfait,
	}
	if err := h.Seed.SavePlan(ctx, ff); err != nil {
		return err
	}

	bundle := contract.ContributionPlanBundle{
		ID:          "B-Y1",
		Code:        "B-Y1",
		Name:        "Annual mixed bundle",
		Periodicity: 12,
	}
	if err := h.Seed.SaveBundle(ctx, bundle, pct.ID, ff.ID); err != nil {
		return err
	}

	holder := contract.PolicyHolder{
		ID:         "PH-SUN",
		Code:       "SUN",
		TradeName:  "Sunrise Mills",
		Email:      "admin@sunrise.example",
		LocationID: "L-D1",
	}
	if err := h.Seed.SavePolicyHolder(ctx, holder); err != nil {
		return err
	}

	if err := h.Seed.SaveInsuree(ctx, contract.Insuree{
		ID:              "I-20",
		InsuranceNumber: "CHF020",
		FamilyID:        "F-20",
		LastName:        "Haidara",
		OtherNames:      "Moussa",
	}); err != nil {
		return err
	}
	if err := h.Seed.SavePolicyHolderInsuree(ctx, contract.PolicyHolderInsuree{
		ID:           "PHI-20",
		PolicyHolder: holder.ID,
		InsureeID:    "I-20",
		BundleID:     bundle.ID,
		Input: contract.CalculationInput{
			CalculationRule: contract.CalculationRuleInput{
				Income: decimal.NewFromInt(200000),
				Rate:   decimal.NewFromInt(12),
			},
		},
	}); err != nil {
		return err
	}

	// Insuree-specific waiting period overriding the product default.
	return h.Seed.SaveWaitingPeriod(ctx, contract.InsureeWaitingPeriod{
		ID:             "WP-20",
		PolicyHolderID: holder.ID,
		InsureeID:      "I-20",
		WaitingPeriod:  2,
		Periodicity:    12,
	})
}

// monthStart truncates t to the first day of its month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
