package processor

import (
	"context"
	"encoding/json"

	"github.com/adverant/nexus/whiteboard-tutor/internal/annotate"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
	"github.com/adverant/nexus/whiteboard-tutor/internal/prompts"
)

// Tutor runs the structured LLM calls of an analysis cycle
type Tutor struct {
	llm llm.Completer
}

// NewTutor wraps a completion backend
func NewTutor(completer llm.Completer) *Tutor {
	return &Tutor{llm: completer}
}

// complete sends one structured request and decodes the reply into out
func (t *Tutor) complete(ctx context.Context, model, schemaName string, schema *llm.Schema, messages []llm.Message, out interface{}) error {
	reply, err := t.llm.Complete(ctx, llm.Request{
		Model:      model,
		Messages:   messages,
		Schema:     schema,
		SchemaName: schemaName,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(reply), out); err != nil {
		return errors.NewMalformedResponseError("llm", "reply does not match "+schemaName+" schema", err)
	}
	return nil
}

// Analyze produces the first-pass annotations for student work
func (t *Tutor) Analyze(ctx context.Context, pc prompts.Context, equations []ocr.Equation, imageB64 string, history []llm.Message) (*annotate.AnalysisResponse, error) {
	messages, err := prompts.Analyze(pc, equations, imageB64, history)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	var resp annotate.AnalysisResponse
	if err := t.complete(ctx, prompts.AnalysisModel, prompts.AnnotationsSchemaName, prompts.AnalysisSchema(), messages, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify reviews a student-work analysis and returns the improved version
func (t *Tutor) Verify(ctx context.Context, pc prompts.Context, equations []ocr.Equation, imageB64 string, annotations *annotate.AnalysisResponse) (*annotate.AnalysisResponse, error) {
	messages, err := prompts.Verify(pc, equations, imageB64, annotations)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	var resp annotate.AnalysisResponse
	if err := t.complete(ctx, prompts.AnalysisModel, prompts.AnnotationsSchemaName, prompts.AnalysisSchema(), messages, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AnalyzeQuestion picks the problem-statement terms worth annotating
func (t *Tutor) AnalyzeQuestion(ctx context.Context, pc prompts.Context, equations []ocr.Equation, imageB64 string, history []llm.Message) (*annotate.QuestionAnalysisResponse, error) {
	messages, err := prompts.AnalyzeQuestion(pc, equations, imageB64, history)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	var resp annotate.QuestionAnalysisResponse
	if err := t.complete(ctx, prompts.AnalysisModel, prompts.AnnotationsSchemaName, prompts.QuestionAnalysisSchema(), messages, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyQuestion reviews question-term annotations. imageB64 may be empty.
func (t *Tutor) VerifyQuestion(ctx context.Context, pc prompts.Context, equations []ocr.Equation, imageB64 string, annotations *annotate.QuestionAnalysisResponse) (*annotate.QuestionAnalysisResponse, error) {
	messages, err := prompts.VerifyQuestion(pc, equations, imageB64, annotations)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	var resp annotate.QuestionAnalysisResponse
	if err := t.complete(ctx, prompts.AnalysisModel, prompts.AnnotationsSchemaName, prompts.QuestionAnalysisSchema(), messages, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Correct asks for LaTeX renderings of each merged term
func (t *Tutor) Correct(ctx context.Context, equations []ocr.Equation, imageB64 string) ([]annotate.Correction, error) {
	var resp annotate.CorrectionResponse
	messages := prompts.Correction(equations, imageB64)
	if err := t.complete(ctx, prompts.CorrectionModel, prompts.CorrectedTermsSchemaName, prompts.CorrectionSchema(), messages, &resp); err != nil {
		return nil, err
	}
	return resp.CorrectedTerms, nil
}

// Chat runs the free-form baseline tutor
func (t *Tutor) Chat(ctx context.Context, question int, messages []llm.Message, images []string) (string, error) {
	conversation, err := prompts.Chat(question, messages, images)
	if err != nil {
		return "", errors.NewInvalidInputError(err.Error())
	}
	return t.llm.Complete(ctx, llm.Request{Model: prompts.ChatModel, Messages: conversation})
}
