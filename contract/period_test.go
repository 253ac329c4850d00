/*
period_test.go - Policy period generation tests

PURPOSE:
  Validates the calendar-clamped date arithmetic and the per-insurance-
  period bounds computation driving policy generation.
*/
package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// CLAMPED DATE ARITHMETIC
// =============================================================================

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	// Jan 31 + 1 month lands on the last day of February, never March
	assert.Equal(t, date(2026, time.February, 28), addMonths(date(2026, time.January, 31), 1))
	assert.Equal(t, date(2028, time.February, 29), addMonths(date(2028, time.January, 31), 1),
		"leap year keeps the 29th")
	assert.Equal(t, date(2026, time.April, 30), addMonths(date(2026, time.March, 31), 1))
}

func TestAddMonths_CrossesYears(t *testing.T) {
	assert.Equal(t, date(2027, time.January, 15), addMonths(date(2026, time.December, 15), 1))
	assert.Equal(t, date(2025, time.December, 15), addMonths(date(2026, time.January, 15), -1))
	assert.Equal(t, date(2027, time.January, 10), addMonths(date(2026, time.January, 10), 12))
}

func TestReplaceDay_DayZeroRollsBack(t *testing.T) {
	// day 0 is the last day of the previous month
	assert.Equal(t, date(2026, time.February, 28), replaceDay(date(2026, time.March, 15), 0))
	assert.Equal(t, date(2025, time.December, 31), replaceDay(date(2026, time.January, 15), 0))
}

func TestReplaceDay_ClampsPastMonthEnd(t *testing.T) {
	assert.Equal(t, date(2026, time.February, 28), replaceDay(date(2026, time.February, 10), 31))
	assert.Equal(t, date(2026, time.April, 6), replaceDay(date(2026, time.April, 20), 6))
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 0, monthsBetween(date(2026, time.January, 1), date(2026, time.January, 31)))
	assert.Equal(t, 1, monthsBetween(date(2026, time.January, 31), date(2026, time.February, 1)))
	assert.Equal(t, 12, monthsBetween(date(2026, time.March, 5), date(2027, time.March, 5)))
}

// =============================================================================
// START DAY
// =============================================================================

func TestStartPolicyDay(t *testing.T) {
	// default
	assert.Equal(t, 6, startPolicyDay(&Product{}))

	// payment cutoff day + 1
	cutoff := date(2026, time.January, 15)
	p := &Product{Config: &ProductConfig{PaymentEndDate: &cutoff}}
	assert.Equal(t, 16, startPolicyDay(p))
}

// =============================================================================
// PERIOD BOUNDS
// =============================================================================

func TestPeriodBounds_MonthlyProduct(t *testing.T) {
	g := &PeriodGenerator{}
	c := &Contract{}
	product := &Product{InsurancePeriod: 1}

	// frontier Jan 1: period runs [Feb 6, Mar 5]
	start, expiry := g.periodBounds(c, product, date(2026, time.January, 1), false)
	assert.Equal(t, date(2026, time.February, 6), start)
	assert.Equal(t, date(2026, time.March, 5), expiry)

	// the next iteration chains contiguously off the expiry
	start2, expiry2 := g.periodBounds(c, product, expiry, false)
	assert.Equal(t, date(2026, time.April, 6), start2)
	assert.Equal(t, date(2026, time.May, 5), expiry2)
}

func TestPeriodBounds_QuarterlyProduct(t *testing.T) {
	g := &PeriodGenerator{}
	product := &Product{InsurancePeriod: 3}

	// fresh contract: three-month gap, three months of coverage
	start, expiry := g.periodBounds(&Contract{}, product, date(2026, time.January, 1), false)
	assert.Equal(t, date(2026, time.April, 6), start)
	assert.Equal(t, date(2026, time.July, 5), expiry)

	// product waiting period overrides the gap
	waiting := &Product{InsurancePeriod: 3, PolicyWaitingPeriod: 1}
	start, _ = g.periodBounds(&Contract{}, waiting, date(2026, time.January, 1), false)
	assert.Equal(t, date(2026, time.February, 6), start)

	// chained contract: one-month gap, coverage stretched a month
	chained := &Contract{ParentID: "C-000001"}
	start, expiry = g.periodBounds(chained, product, date(2026, time.January, 1), false)
	assert.Equal(t, date(2026, time.February, 6), start)
	assert.Equal(t, date(2026, time.June, 5), expiry)
}

func TestPeriodBounds_AnnualProduct(t *testing.T) {
	g := &PeriodGenerator{}
	product := &Product{InsurancePeriod: 12}

	// four-month gap, a year of coverage
	start, expiry := g.periodBounds(&Contract{}, product, date(2026, time.January, 1), false)
	assert.Equal(t, date(2026, time.May, 6), start)
	assert.Equal(t, date(2027, time.May, 5), expiry)

	// other contracts for the holder pull the start back
	start, _ = g.periodBounds(&Contract{}, product, date(2026, time.January, 1), true)
	assert.Equal(t, date(2026, time.March, 6), start)
}

// =============================================================================
// PAYMENT DUE DATE
// =============================================================================

func TestPaymentDueDate(t *testing.T) {
	approved := date(2026, time.January, 10)

	// without configuration: end of the next month
	assert.Equal(t, date(2026, time.February, 28), paymentDueDate(nil, approved))

	// with a payment cutoff: that day in the next month
	cutoff := date(2026, time.January, 15)
	cfg := &ProductConfig{PaymentEndDate: &cutoff}
	assert.Equal(t, date(2026, time.February, 15), paymentDueDate(cfg, approved))
}
