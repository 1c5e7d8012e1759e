package prompts

import "github.com/adverant/nexus/whiteboard-tutor/internal/llm"

// Structured reply schemas. Names are the response_format names.
const (
	AnnotationsSchemaName    = "annotations"
	CorrectedTermsSchemaName = "correctedTerms"
)

// AnalysisSchema is the analyze and verify reply
func AnalysisSchema() *llm.Schema {
	return llm.Object(
		llm.F("ovFb", llm.String()),
		llm.F("annos", llm.Array(llm.Object(
			llm.F("eqsToAnno", llm.Array(llm.Object(
				llm.F("eqId", llm.String()),
				llm.F("annoExp", llm.String()),
				llm.F("annoColor", llm.String()),
			))),
			llm.F("termsToAnno", llm.Array(llm.Object(
				llm.F("termId", llm.String()),
				llm.F("annoExp", llm.String()),
				llm.F("annoColor", llm.String()),
			))),
		))),
	)
}

// QuestionAnalysisSchema is the analyze-question and verify-question reply
func QuestionAnalysisSchema() *llm.Schema {
	return llm.Object(
		llm.F("ovFb", llm.String()),
		llm.F("termsToAnno", llm.Array(llm.Object(
			llm.F("termId", llm.String()),
			llm.F("termValue", llm.String()),
			llm.F("termExp", llm.String()),
		))),
	)
}

// CorrectionSchema is the new-correction reply
func CorrectionSchema() *llm.Schema {
	return llm.Object(
		llm.F("correctedTerms", llm.Array(llm.Object(
			llm.F("id", llm.String()),
			llm.F("latex", llm.String()),
		))),
	)
}
