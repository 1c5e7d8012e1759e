/**
 * OCR Types - Shared data structures for handwriting recognition
 *
 * Common types produced by Google Vision, Mathpix and the Tesseract fallback
 * and consumed by the merge and placement engines.
 */

package ocr

import (
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
)

// Symbol is a single recognised glyph inside a term
type Symbol struct {
	ID          string               `json:"id"`
	Text        string               `json:"text"`
	BoundingBox geometry.BoundingBox `json:"boundingBox"`
}

// Term is the smallest annotatable unit of handwriting. Vision terms carry
// their symbols; Text is their concatenation.
type Term struct {
	ID          string               `json:"id"`
	Text        string               `json:"text"`
	BoundingBox geometry.BoundingBox `json:"boundingBox"`
	Symbols     []Symbol             `json:"symbols,omitempty"`
}

// Equation groups a line or block of handwriting with its terms.
// Vision equations carry Text, Mathpix equations carry Latex.
type Equation struct {
	ID          string               `json:"id"`
	Text        string               `json:"text,omitempty"`
	Latex       string               `json:"latex,omitempty"`
	BoundingBox geometry.BoundingBox `json:"boundingBox"`
	Terms       []Term               `json:"terms,omitempty"`
}

// Result represents the output of one recognition pass over an image
type Result struct {
	Source    string        `json:"source"` // "google-vision", "mathpix" or "tesseract"
	AllText   string        `json:"allText,omitempty"`
	Equations []Equation    `json:"equations"`
	Duration  time.Duration `json:"-"`
}

// CloneEquations deep-copies equations so callers can attach terms without
// touching the detection source's slices.
func CloneEquations(equations []Equation) []Equation {
	out := make([]Equation, len(equations))
	for i, eq := range equations {
		out[i] = eq
		if eq.Terms != nil {
			out[i].Terms = append([]Term(nil), eq.Terms...)
			for j, term := range eq.Terms {
				if term.Symbols != nil {
					out[i].Terms[j].Symbols = append([]Symbol(nil), term.Symbols...)
				}
			}
		}
	}
	return out
}

// TermCount returns the total number of terms across equations
func TermCount(equations []Equation) int {
	n := 0
	for _, eq := range equations {
		n += len(eq.Terms)
	}
	return n
}
