package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	geminiService      = "gemini"
)

// GeminiClient serves completions from Gemini for LLM_PROVIDER=gemini.
// Request models are OpenAI names, so every call uses the configured model.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *logging.Logger
}

// NewGeminiClient connects to the Gemini API
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, logger: logging.NewLogger("GeminiClient")}, nil
}

// Complete runs one generate-content call
func (c *GeminiClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	system, contents, err := toGenaiContents(req.Messages)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema.ToGenai()
	}

	startTime := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", errors.NewNetworkError(geminiService, err)
	}
	text := result.Text()
	if text == "" {
		return "", errors.NewMalformedResponseError(geminiService, "empty reply", nil)
	}

	c.logger.Info("Gemini generation finished",
		"model", c.model,
		"structured", req.Schema != nil,
		"duration", time.Since(startTime))
	return text, nil
}

// toGenaiContents folds system messages into one instruction and maps the
// remaining turns to user and model contents
func toGenaiContents(messages []llm.Message) (*genai.Content, []*genai.Content, error) {
	var systemTexts []string
	var contents []*genai.Content

	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			systemTexts = append(systemTexts, m.Text())
			continue
		}

		role := string(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = string(genai.RoleModel)
		}

		var parts []*genai.Part
		for _, p := range m.Content {
			switch p.Type {
			case llm.PartText:
				parts = append(parts, &genai.Part{Text: p.Text})
			case llm.PartImageURL:
				if p.ImageURL == nil {
					continue
				}
				mime, data, err := llm.DecodeDataURL(p.ImageURL.URL)
				if err != nil {
					return nil, nil, errors.NewInvalidInputError("gemini accepts only inline data URL images")
				}
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}})
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	var system *genai.Content
	if len(systemTexts) > 0 {
		system = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(systemTexts, "\n\n")}}}
	}
	return system, contents, nil
}
