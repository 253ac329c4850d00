/*
sqlite_test.go - SQLite store round-trip and transaction tests
*/
package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleContract(code string) *contract.Contract {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	return &contract.Contract{
		Code:           code,
		PolicyHolderID: "PH-1",
		AmountNotified: decimal.NewFromInt(15000),
		State:          contract.StateDraft,
		Version:        1,
		DateValidFrom:  time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		DateValidTo:    time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
		ProcessStatus:  contract.ProcessCreated,
		DateCreated:    now,
		DateUpdated:    now,
	}
}

func TestContractRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := sampleContract("DBZV012026000001")
	approved := time.Date(2026, time.January, 12, 9, 0, 0, 0, time.UTC)
	c.DateApproved = &approved
	c.PaymentReference = "BANK-REF-1"
	c.Audit = contract.AuditTrail{}.Append("tester", approved, "create contract status 2")
	require.NoError(t, store.CreateContract(ctx, c))
	require.NotEmpty(t, c.ID, "create assigns an id")

	got, err := store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.Code, got.Code)
	assert.Equal(t, contract.StateDraft, got.State)
	assert.True(t, got.AmountNotified.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, c.DateValidFrom, got.DateValidFrom)
	require.NotNil(t, got.DateApproved)
	assert.Equal(t, approved, *got.DateApproved)
	assert.Equal(t, "BANK-REF-1", got.PaymentReference)
	require.Len(t, got.Audit.Comments, 1)
	assert.Equal(t, "tester", got.Audit.Comments[0].User)
}

func TestGetContract_MissingReturnsNil(t *testing.T) {
	store := newStore(t)

	got, err := store.GetContract(context.Background(), "C-999999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSequentialIDs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a := sampleContract("DBZV012026000001")
	b := sampleContract("DBZV012026000002")
	require.NoError(t, store.CreateContract(ctx, a))
	require.NoError(t, store.CreateContract(ctx, b))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCodesForMonth(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	jan := sampleContract("DBZV012026000001")
	require.NoError(t, store.CreateContract(ctx, jan))

	feb := sampleContract("DBZV022026000001")
	feb.DateCreated = time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateContract(ctx, feb))

	codes, err := store.CodesForMonth(ctx, "D", 2026, time.January)
	require.NoError(t, err)
	assert.Equal(t, []string{"DBZV012026000001"}, codes)

	exists, err := store.CodeExists(ctx, "DBZV022026000001")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSoftDeleteCascades(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := sampleContract("DBZV012026000001")
	require.NoError(t, store.CreateContract(ctx, c))
	d := &contract.ContractDetails{ContractID: c.ID, InsureeID: "I-1", BundleID: "B-1", DateCreated: c.DateCreated}
	require.NoError(t, store.CreateDetails(ctx, d))
	u := &contract.ContributionPlanDetails{DetailsID: d.ID, PlanID: "CP-1"}
	require.NoError(t, store.CreatePlanDetails(ctx, u))

	require.NoError(t, store.SoftDeleteContract(ctx, c.ID))

	got, err := store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	details, err := store.DetailsByContract(ctx, c.ID, false)
	require.NoError(t, err)
	assert.Empty(t, details)
	units, err := store.PlanDetailsByContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := sampleContract("DBZV012026000001")
	require.NoError(t, store.CreateContract(ctx, c))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(st contract.Store) error {
		loaded, err := st.GetContract(ctx, c.ID)
		require.NoError(t, err)
		loaded.State = contract.StateNegotiable
		require.NoError(t, st.UpdateContract(ctx, loaded))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StateDraft, got.State)
}

func TestReferenceDataRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveLocation(ctx, contract.Location{ID: "L-R", Name: "Brazzaville", Type: "R"}))
	require.NoError(t, store.SaveLocation(ctx, contract.Location{ID: "L-D", Name: "Makélékélé", Type: "D", ParentID: "L-R"}))
	require.NoError(t, store.SavePolicyHolder(ctx, contract.PolicyHolder{
		ID: "PH-1", Code: "ACME", TradeName: "Acme Works", Email: "x@acme.example", LocationID: "L-D",
	}))
	require.NoError(t, store.SaveProduct(ctx, contract.Product{ID: "PR-1", Code: "HP", InsurancePeriod: 1}))
	require.NoError(t, store.SavePlan(ctx, contract.ContributionPlan{
		ID: "CP-1", Code: "CP-1", Periodicity: 1, ProductID: "PR-1",
		EmployerContribution: decimal.NewFromInt(10),
		EmployeeContribution: decimal.NewFromInt(5),
	}))
	require.NoError(t, store.SaveBundle(ctx, contract.ContributionPlanBundle{ID: "B-1", Code: "B-1", Periodicity: 1}, "CP-1"))
	require.NoError(t, store.SaveInsuree(ctx, contract.Insuree{ID: "I-1", InsuranceNumber: "CHF001", FamilyID: "F-1"}))
	require.NoError(t, store.SavePolicyHolderInsuree(ctx, contract.PolicyHolderInsuree{
		ID: "PHI-1", PolicyHolder: "PH-1", InsureeID: "I-1", BundleID: "B-1",
		Input: contract.CalculationInput{
			CalculationRule: contract.CalculationRuleInput{Income: decimal.NewFromInt(100000)},
		},
	}))

	holder, err := store.GetPolicyHolder(ctx, "PH-1")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "Acme Works", holder.TradeName)

	loc, err := store.GetLocation(ctx, "L-D")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, contract.LocationID("L-R"), loc.ParentID)

	plans, err := store.BundlePlans(ctx, "B-1")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].EmployerContribution.Equal(decimal.NewFromInt(10)))

	roster, err := store.PolicyHolderInsurees(ctx, "PH-1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.True(t, roster[0].Input.CalculationRule.Income.Equal(decimal.NewFromInt(100000)))
}

func TestPoliciesForFamilyProduct_OverlapWindow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	mk := func(start, expiry time.Time) *contract.Policy {
		return &contract.Policy{
			FamilyID: "F-1", ProductID: "PR-1",
			Status: contract.PolicyLocked, Stage: contract.StageNew,
			EnrollDate: start, StartDate: start, EffectiveDate: start, ExpiryDate: expiry,
		}
	}
	early := mk(time.Date(2025, time.June, 6, 0, 0, 0, 0, time.UTC), time.Date(2025, time.July, 5, 0, 0, 0, 0, time.UTC))
	inside := mk(time.Date(2026, time.February, 6, 0, 0, 0, 0, time.UTC), time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.CreatePolicy(ctx, early))
	require.NoError(t, store.CreatePolicy(ctx, inside))

	got, err := store.PoliciesForFamilyProduct(ctx, "F-1", "PR-1",
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)

	has, err := store.FamilyHasPolicy(ctx, "F-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPaymentLinkage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := sampleContract("DBZV012026000001")
	require.NoError(t, store.CreateContract(ctx, c))

	contribution := &contract.Contribution{PolicyID: "P-000001", Amount: decimal.NewFromInt(15000), PayDate: c.DateCreated, PayType: " "}
	require.NoError(t, store.CreateContribution(ctx, contribution))

	payment := &contract.Payment{
		ContractID:     c.ID,
		ExpectedAmount: decimal.NewFromInt(15000),
		RequestDate:    c.DateCreated,
	}
	require.NoError(t, store.CreatePayment(ctx, payment))
	require.NoError(t, store.CreatePaymentDetail(ctx, &contract.PaymentDetail{
		PaymentID: payment.ID, ProductCode: "HP", InsuranceNumber: "CHF001",
		ExpectedAmount: decimal.NewFromInt(15000), ContributionID: contribution.ID,
	}))

	got, err := store.PaymentForContribution(ctx, contribution.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payment.ID, got.ID)

	pds, err := store.PaymentDetailsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, pds, 1)
	assert.Equal(t, "CHF001", pds[0].InsuranceNumber)
}
