/*
penalty.go - Late-declaration penalty window

PURPOSE:
  The product's declaration window is configured once as a pair of
  template dates; only their day-of-month matters. On approval the window
  is re-anchored onto the month of the contract's creation date and the
  contract is flagged with a penalty when it was created after the whole
  window had passed.

ALIGNMENT:
  Four cases, driven by how the window's start/end days sit around the
  creation day. When the window wraps a month boundary (start day > end
  day), one of its two edges shifts into the neighbouring month, including
  across a year boundary.

SEE ALSO:
  - effects.go: raises the penalty flag during the approve pipeline
*/
package contract

import "time"

// anchorTo keeps t's day-of-month but moves it to the given month/year,
// clamping the day to the target month's length.
func anchorTo(t time.Time, year int, month time.Month) time.Time {
	return replaceDay(time.Date(year, month, 1, 0, 0, 0, 0, t.Location()), t.Day())
}

// AlignDeclarationWindow re-anchors the product's declaration window onto
// the month of the contract creation date.
func AlignDeclarationWindow(declStart, declEnd, created time.Time) (start, end time.Time) {
	sd, ed, cd := declStart.Day(), declEnd.Day(), created.Day()
	year, month, _ := created.Date()
	start, end = declStart, declEnd

	switch {
	case sd < ed && cd > sd && cd < ed:
		// creation inside a same-month window
		start = anchorTo(declStart, year, month)
		end = anchorTo(declEnd, year, month)

	case sd < ed && cd < sd && cd < ed:
		// creation before a same-month window
		start = anchorTo(declStart, year, month)
		end = anchorTo(declEnd, year, month)

	case sd > ed && cd > sd && cd > ed:
		// wrapping window, creation after the start edge: the end edge
		// belongs to the next month
		start = anchorTo(declStart, year, month)
		endYear, endMonth := year, month+1
		if month == time.December {
			endYear, endMonth = year+1, time.January
		}
		end = anchorTo(declEnd, endYear, endMonth)

	case sd > ed && cd < sd && cd < ed:
		// wrapping window, creation before the end edge: the start edge
		// belongs to the previous month
		end = anchorTo(declEnd, year, month)
		startYear, startMonth := year, month-1
		if month == time.January {
			startYear, startMonth = year-1, time.December
		}
		start = anchorTo(declStart, startYear, startMonth)
	}
	return start, end
}

// PenaltyApplies reports whether the contract was created after its
// product's declaration window had fully passed. Products without a
// configured window never raise penalties.
func PenaltyApplies(cfg *ProductConfig, created time.Time) bool {
	if cfg == nil || cfg.DeclarationStartDate == nil || cfg.DeclarationEndDate == nil {
		return false
	}
	start, end := AlignDeclarationWindow(*cfg.DeclarationStartDate, *cfg.DeclarationEndDate, created)
	return created.After(start) && created.After(end)
}
