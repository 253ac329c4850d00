/*
codegen.go - Contract code generation

PURPOSE:
  Produces the unique, human-readable contract code
  D<DEPT><MM><YYYY><NNNNNN> from the policy holder's location, the contract
  date and a per-month sequence.

ALGORITHM:
  1. Walk the policy holder's location parent chain until a node of
     administrative type "R" (region) is found.
  2. Normalize the region name (strip diacritics, uppercase) and match it
     against the fixed department table by substring containment.
  3. Scan existing non-deleted codes of the same month/year with the "D"
     prefix, take max trailing 6-digit increment + 1.
  4. On collision keep incrementing until an unused code is found.

The generator is pure read + propose; the caller persists the code
atomically with contract creation, and retries on a duplicate-code race.

SEE ALSO:
  - service.go: Create() consumes the generated code
*/
package contract

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// DEPARTMENT TABLE - immutable static mapping, loaded once
// =============================================================================

const codePrefix = "D"

// locationTypeRegion marks the administrative level carrying a department.
const locationTypeRegion = "R"

// departmentCodes maps normalized department names to their three-letter
// codes. Never mutated after process start.
var departmentCodes = map[string]string{
	"BOUENZA":        "BOA",
	"CUVETTE":        "CVT",
	"CUVETTE-OUEST":  "CVO",
	"KOUILOU":        "KLO",
	"LEKOUMOU":       "LKM",
	"LIKOUALA":       "LKA",
	"NIARI":          "NRI",
	"PLATEAUX":       "PTX",
	"POOL":           "POL",
	"SANGHA":         "SGH",
	"POINTE-NOIRE":   "PNR",
	"BRAZZAVILLE":    "BZV",
	"DJOUE-LEFINI":   "DJL",
	"NKENI-ALIMA":    "NKA",
	"CONGO-OUBANGUI": "COB",
}

// foldDiacritics strips combining marks and uppercases, so "Lékoumou"
// matches "LEKOUMOU".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(folded)
}

// =============================================================================
// CODE GENERATOR
// =============================================================================

// CodeGenerator proposes unique contract codes.
type CodeGenerator struct {
	Store Store
}

// departmentCodeFor resolves the department code by walking the policy
// holder's location chain up to the region node.
func (g *CodeGenerator) departmentCodeFor(ctx context.Context, holder *PolicyHolder) (string, error) {
	locID := holder.LocationID
	for locID != "" {
		loc, err := g.Store.GetLocation(ctx, locID)
		if err != nil {
			return "", err
		}
		if loc == nil {
			break
		}
		if loc.Type == locationTypeRegion {
			name := foldDiacritics(loc.Name)
			for dept, code := range departmentCodes {
				if strings.Contains(name, dept) || strings.Contains(dept, name) {
					return code, nil
				}
			}
			break
		}
		locID = loc.ParentID
	}
	return "", &ConfigurationError{
		Msg: fmt.Sprintf("no valid department (type %q) found in location hierarchy for policy holder %s",
			locationTypeRegion, holder.ID),
	}
}

// Generate proposes the next free code for the holder and date. The
// sequence restarts every month; a racing writer is handled by the
// increment-and-check loop.
func (g *CodeGenerator) Generate(ctx context.Context, holder *PolicyHolder, date time.Time) (string, error) {
	dept, err := g.departmentCodeFor(ctx, holder)
	if err != nil {
		return "", err
	}

	codes, err := g.Store.CodesForMonth(ctx, codePrefix, date.Year(), date.Month())
	if err != nil {
		return "", err
	}
	increment := 1
	for _, code := range codes {
		if len(code) < 6 {
			continue
		}
		n, err := strconv.Atoi(code[len(code)-6:])
		if err != nil {
			continue
		}
		if n+1 > increment {
			increment = n + 1
		}
	}

	for {
		candidate := fmt.Sprintf("%s%s%02d%04d%06d", codePrefix, dept, date.Month(), date.Year(), increment)
		exists, err := g.Store.CodeExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		increment++
	}
}
