/*
penalty_test.go - Declaration window alignment and penalty flag
*/
package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlignDeclarationWindow_SameMonth(t *testing.T) {
	// template window on days 5..15
	declStart := date(2020, time.January, 5)
	declEnd := date(2020, time.January, 15)

	// creation inside the window, March 2026
	start, end := AlignDeclarationWindow(declStart, declEnd, date(2026, time.March, 10))
	assert.Equal(t, date(2026, time.March, 5), start)
	assert.Equal(t, date(2026, time.March, 15), end)

	// creation before the window still anchors to the creation month
	start, end = AlignDeclarationWindow(declStart, declEnd, date(2026, time.March, 2))
	assert.Equal(t, date(2026, time.March, 5), start)
	assert.Equal(t, date(2026, time.March, 15), end)
}

func TestAlignDeclarationWindow_WrapsMonthBoundary(t *testing.T) {
	// window wraps: starts the 25th, ends the 5th of the next month
	declStart := date(2020, time.January, 25)
	declEnd := date(2020, time.February, 5)

	// creation after the start edge: end lands in the next month
	start, end := AlignDeclarationWindow(declStart, declEnd, date(2026, time.March, 28))
	assert.Equal(t, date(2026, time.March, 25), start)
	assert.Equal(t, date(2026, time.April, 5), end)

	// December wraps into January of the next year
	start, end = AlignDeclarationWindow(declStart, declEnd, date(2026, time.December, 28))
	assert.Equal(t, date(2026, time.December, 25), start)
	assert.Equal(t, date(2027, time.January, 5), end)

	// creation before the end edge: start came from the previous month
	start, end = AlignDeclarationWindow(declStart, declEnd, date(2026, time.March, 2))
	assert.Equal(t, date(2026, time.February, 25), start)
	assert.Equal(t, date(2026, time.March, 5), end)
}

func TestPenaltyApplies_BetweenWrappingEdges(t *testing.T) {
	// window wraps from the 20th to the 5th of the next month; creation on
	// the 10th of the following month sits between the two edge days, so no
	// alignment case matches and the template window stands as configured
	declStart := date(2026, time.January, 20)
	declEnd := date(2026, time.February, 5)
	cfg := &ProductConfig{DeclarationStartDate: &declStart, DeclarationEndDate: &declEnd}

	created := date(2026, time.February, 10)
	start, end := AlignDeclarationWindow(declStart, declEnd, created)
	assert.Equal(t, declStart, start)
	assert.Equal(t, declEnd, end)

	// the whole window has passed: the penalty is raised
	assert.True(t, PenaltyApplies(cfg, created))
}

func TestPenaltyApplies(t *testing.T) {
	declStart := date(2020, time.January, 5)
	declEnd := date(2020, time.January, 15)
	cfg := &ProductConfig{DeclarationStartDate: &declStart, DeclarationEndDate: &declEnd}

	// created after the whole window passed
	assert.True(t, PenaltyApplies(cfg, date(2026, time.March, 20)))

	// created inside the window
	assert.False(t, PenaltyApplies(cfg, date(2026, time.March, 10)))

	// created before the window opens
	assert.False(t, PenaltyApplies(cfg, date(2026, time.March, 2)))

	// unconfigured products never raise penalties
	assert.False(t, PenaltyApplies(nil, date(2026, time.March, 20)))
	assert.False(t, PenaltyApplies(&ProductConfig{}, date(2026, time.March, 20)))
}
