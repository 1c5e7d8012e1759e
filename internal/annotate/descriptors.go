/**
 * Annotation descriptors - the unified LLM feedback model
 *
 * Both analysis flows (student work and question only) decode into one
 * descriptor type tagged with the variant that produced it. Each descriptor
 * targets an equation or a term by id and carries its explanation.
 */

package annotate

import (
	"encoding/json"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
)

// TargetKind says what an annotation descriptor points at
type TargetKind string

const (
	TargetEquation TargetKind = "equation"
	TargetTerm     TargetKind = "term"
)

// Variant tags which analysis flow produced a set of descriptors
type Variant string

const (
	// VariantTermOnly comes from the question analysis: terms of the printed
	// question, each with the value the student should read from it.
	VariantTermOnly Variant = "termOnly"
	// VariantEquationAndTerm comes from the student-work analysis
	VariantEquationAndTerm Variant = "equationAndTerm"
)

// DefaultColor is used when a descriptor omits its colour
const DefaultColor = "blue"

// Descriptor is one requested annotation box
type Descriptor struct {
	TargetID    string     `json:"targetId"`
	Kind        TargetKind `json:"kind"`
	Explanation string     `json:"explanation"`
	Color       string     `json:"color,omitempty"`
	TermValue   string     `json:"termValue,omitempty"`
}

// Feedback is a decoded LLM analysis in unified form
type Feedback struct {
	Variant         Variant      `json:"variant"`
	OverallFeedback string       `json:"overallFeedback"`
	Descriptors     []Descriptor `json:"annotations"`
}

// Wire formats returned by the structured LLM prompts.

type EquationAnnotation struct {
	EqID      string `json:"eqId"`
	AnnoExp   string `json:"annoExp"`
	AnnoColor string `json:"annoColor"`
}

type TermAnnotation struct {
	TermID    string `json:"termId"`
	AnnoExp   string `json:"annoExp"`
	AnnoColor string `json:"annoColor"`
}

type AnnotationGroup struct {
	EqsToAnno   []EquationAnnotation `json:"eqsToAnno"`
	TermsToAnno []TermAnnotation     `json:"termsToAnno"`
}

// AnalysisResponse is the analyze and verify output
type AnalysisResponse struct {
	OvFb  string            `json:"ovFb"`
	Annos []AnnotationGroup `json:"annos"`
}

type QuestionTerm struct {
	TermID    string `json:"termId"`
	TermValue string `json:"termValue"`
	TermExp   string `json:"termExp"`
}

// QuestionAnalysisResponse is the analyze-question and verify-question output
type QuestionAnalysisResponse struct {
	OvFb        string         `json:"ovFb"`
	TermsToAnno []QuestionTerm `json:"termsToAnno"`
}

// CorrectionResponse is the new-correction output
type CorrectionResponse struct {
	CorrectedTerms []Correction `json:"correctedTerms"`
}

// Feedback flattens the nested groups, equations before terms within each group
func (r AnalysisResponse) Feedback() Feedback {
	fb := Feedback{Variant: VariantEquationAndTerm, OverallFeedback: r.OvFb}
	for _, group := range r.Annos {
		for _, eq := range group.EqsToAnno {
			fb.Descriptors = append(fb.Descriptors, Descriptor{
				TargetID:    eq.EqID,
				Kind:        TargetEquation,
				Explanation: eq.AnnoExp,
				Color:       eq.AnnoColor,
			})
		}
		for _, term := range group.TermsToAnno {
			fb.Descriptors = append(fb.Descriptors, Descriptor{
				TargetID:    term.TermID,
				Kind:        TargetTerm,
				Explanation: term.AnnoExp,
				Color:       term.AnnoColor,
			})
		}
	}
	return fb
}

func (r QuestionAnalysisResponse) Feedback() Feedback {
	fb := Feedback{Variant: VariantTermOnly, OverallFeedback: r.OvFb}
	for _, term := range r.TermsToAnno {
		fb.Descriptors = append(fb.Descriptors, Descriptor{
			TargetID:    term.TermID,
			Kind:        TargetTerm,
			Explanation: term.TermExp,
			TermValue:   term.TermValue,
		})
	}
	return fb
}

// DecodeFeedback parses a structured LLM reply for the given variant
func DecodeFeedback(variant Variant, data []byte) (Feedback, error) {
	switch variant {
	case VariantTermOnly:
		var r QuestionAnalysisResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return Feedback{}, errors.NewMalformedResponseError("llm", "invalid question analysis JSON", err)
		}
		return r.Feedback(), nil
	case VariantEquationAndTerm:
		var r AnalysisResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return Feedback{}, errors.NewMalformedResponseError("llm", "invalid analysis JSON", err)
		}
		return r.Feedback(), nil
	default:
		return Feedback{}, errors.NewInvalidInputError("unknown annotation variant " + string(variant))
	}
}

// DecodeCorrections parses a new-correction reply
func DecodeCorrections(data []byte) ([]Correction, error) {
	var r CorrectionResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.NewMalformedResponseError("llm", "invalid correction JSON", err)
	}
	return r.CorrectedTerms, nil
}
