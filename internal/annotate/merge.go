/**
 * Merge Engine - attaches term segmentation to LaTeX equations
 *
 * Mathpix is authoritative for equation structure and LaTeX, Google Vision
 * for term segmentation. Every Vision term is re-parented under the Mathpix
 * equation it overlaps; terms that overlap nothing are dropped.
 */

package annotate

import (
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
)

// OverlapThreshold is the overlap percentage a term must exceed to attach
const OverlapThreshold = 65.0

// MergeResult is the merged equation tree plus terms nothing claimed
type MergeResult struct {
	Equations []ocr.Equation `json:"equations"`
	Dropped   []ocr.Term     `json:"dropped,omitempty"`
}

// Merge attaches every term of secondary to the first primary equation it
// overlaps by more than OverlapThreshold. Attached terms get ids of the form
// <equationId>-term-<suffix>, and their symbols follow. Neither input is
// modified.
func Merge(primary, secondary []ocr.Equation) MergeResult {
	merged := ocr.CloneEquations(primary)
	var dropped []ocr.Term

	for _, source := range secondary {
		for _, term := range source.Terms {
			idx := bestMatch(merged, term)
			if idx < 0 {
				dropped = append(dropped, term)
				continue
			}
			attached := term
			attached.ID = ocr.ChildTermID(merged[idx].ID, term.ID)
			attached.Symbols = ocr.ReparentSymbols(attached.ID, term.Symbols)
			merged[idx].Terms = append(merged[idx].Terms, attached)
		}
	}

	return MergeResult{Equations: merged, Dropped: dropped}
}

// bestMatch returns the index of the first equation clearing the threshold, or -1
func bestMatch(equations []ocr.Equation, term ocr.Term) int {
	for i, eq := range equations {
		if geometry.OverlapPercentage(term.BoundingBox, eq.BoundingBox) > OverlapThreshold {
			return i
		}
	}
	return -1
}

// Correction is a LaTeX rewrite of one merged term
type Correction struct {
	ID    string `json:"id"`
	Latex string `json:"latex"`
}

// ApplyCorrections replaces the text of each corrected term, locating it
// through the equation id derived from the term id. It returns the corrected
// tree and the ids that matched no term.
func ApplyCorrections(equations []ocr.Equation, corrections []Correction) ([]ocr.Equation, []string) {
	out := ocr.CloneEquations(equations)

	byID := make(map[string]int, len(out))
	for i, eq := range out {
		byID[eq.ID] = i
	}

	var missed []string
	for _, c := range corrections {
		eqID, ok := ocr.EquationIDOf(c.ID)
		if !ok {
			missed = append(missed, c.ID)
			continue
		}
		idx, ok := byID[eqID]
		if !ok {
			missed = append(missed, c.ID)
			continue
		}

		found := false
		for j := range out[idx].Terms {
			if out[idx].Terms[j].ID == c.ID {
				out[idx].Terms[j].Text = c.Latex
				found = true
				break
			}
		}
		if !found {
			missed = append(missed, c.ID)
		}
	}
	return out, missed
}
