/**
 * Tesseract OCR - Offline term source
 *
 * Free, local OCR using Tesseract. Used in place of Google Vision when no
 * Vision API key is configured. Text blocks become equations and words
 * become terms, each word attached to the block it overlaps most.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR handles word-level OCR using Tesseract
type TesseractOCR struct {
	language string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language string
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	language := cfg.Language
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{language: language}
}

// DetectTerms performs block and word detection on an encoded image
func (t *TesseractOCR) DetectTerms(ctx context.Context, image []byte) (*Result, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	blocks, err := client.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to get text blocks: %w", err)
	}

	words, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get words: %w", err)
	}

	equations := groupWords(toRegions(blocks), toRegions(words))

	return &Result{
		Source:    "tesseract",
		AllText:   text,
		Equations: equations,
		Duration:  time.Since(startTime),
	}, nil
}

// region is a recognised box independent of the gosseract types
type region struct {
	text string
	box  geometry.BoundingBox
}

func toRegions(boxes []gosseract.BoundingBox) []region {
	out := make([]region, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, region{
			text: strings.TrimSpace(b.Word),
			box: geometry.FromCorners(
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Max.X), float64(b.Box.Max.Y),
			),
		})
	}
	return out
}

// groupWords builds equations from blocks and attaches each non-empty word
// to the block with the largest overlap. Words outside every block are dropped.
func groupWords(blocks, words []region) []Equation {
	equations := make([]Equation, len(blocks))
	for i, b := range blocks {
		equations[i] = Equation{ID: NewEquationID(), BoundingBox: b.box}
	}

	for _, w := range words {
		if w.text == "" {
			continue
		}
		best, bestOverlap := -1, 0.0
		for i := range equations {
			if o := geometry.OverlapPercentage(w.box, equations[i].BoundingBox); o > bestOverlap {
				best, bestOverlap = i, o
			}
		}
		if best < 0 {
			continue
		}
		eq := &equations[best]
		eq.Terms = append(eq.Terms, Term{
			ID:          NewTermID(eq.ID),
			Text:        w.text,
			BoundingBox: w.box,
		})
	}

	for i := range equations {
		texts := make([]string, len(equations[i].Terms))
		for j, term := range equations[i].Terms {
			texts[j] = term.Text
		}
		equations[i].Text = strings.Join(texts, " ")
	}

	return equations
}
