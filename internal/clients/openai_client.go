/**
 * OpenAI Client - chat, structured output, speech and embeddings
 *
 * One REST client covers every OpenAI call the tutor makes:
 * - chat completions, optionally with a strict json_schema response format
 * - tts-1 speech synthesis
 * - whisper-1 transcription
 * - text-embedding-3-small embeddings for the explanation index
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
)

const (
	DefaultOpenAIURL = "https://api.openai.com/v1"
	openAIService    = "openai"

	SpeechModel        = "tts-1"
	SpeechVoice        = "alloy"
	TranscriptionModel = "whisper-1"
	EmbeddingModel     = "text-embedding-3-small"
	EmbeddingDims      = 1536
)

// OpenAIClient handles communication with the OpenAI REST API
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

type chatCompletionRequest struct {
	Model          string                 `json:"model"`
	Messages       []llm.Message          `json:"messages"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewOpenAIClient creates a new OpenAI client. timeout bounds each call.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("OpenAIClient"),
	}
}

// Complete runs a chat completion and returns the reply content
func (c *OpenAIClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	body := chatCompletionRequest{Model: req.Model, Messages: req.Messages}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		body.ResponseFormat = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   name,
				"strict": true,
				"schema": req.Schema.ToOpenAI(),
			},
		}
	}

	startTime := time.Now()
	respBody, err := c.postJSON(ctx, "/chat/completions", body, "application/json")
	if err != nil {
		return "", err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.NewMalformedResponseError(openAIService, "invalid chat completion JSON", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewMalformedResponseError(openAIService, "no choices", nil)
	}
	choice := parsed.Choices[0]
	if choice.Message.Refusal != "" {
		return "", errors.NewMalformedResponseError(openAIService, "model refused: "+choice.Message.Refusal, nil)
	}
	if req.Schema != nil && choice.Message.Content == "" {
		return "", errors.NewMalformedResponseError(openAIService, "empty structured reply", nil)
	}

	c.logger.Info("Chat completion finished",
		"model", req.Model,
		"structured", req.Schema != nil,
		"tokens", parsed.Usage.TotalTokens,
		"duration", time.Since(startTime))

	return choice.Message.Content, nil
}

// Speech synthesises MP3 audio for text
func (c *OpenAIClient) Speech(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.NewInvalidInputError("valid text is required")
	}
	body := map[string]string{
		"model": SpeechModel,
		"voice": SpeechVoice,
		"input": text,
	}
	return c.postJSON(ctx, "/audio/speech", body, "audio/mpeg")
}

// Transcribe converts recorded audio to English text
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.NewInvalidInputError("no audio data provided")
	}
	if filename == "" {
		filename = "input.wav"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio data to form: %w", err)
	}
	for field, value := range map[string]string{
		"model":           TranscriptionModel,
		"language":        "en",
		"response_format": "json",
	} {
		if err := writer.WriteField(field, value); err != nil {
			return "", fmt.Errorf("failed to write %s field: %w", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.NewMalformedResponseError(openAIService, "invalid transcription JSON", err)
	}
	return parsed.Text, nil
}

// Embed returns a 1536-dimensional embedding for text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.NewInvalidInputError("text is required")
	}
	body := map[string]string{"model": EmbeddingModel, "input": text}
	respBody, err := c.postJSON(ctx, "/embeddings", body, "application/json")
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.NewMalformedResponseError(openAIService, "invalid embedding JSON", err)
	}
	if len(parsed.Data) == 0 {
		return nil, errors.NewMalformedResponseError(openAIService, "no embedding data", nil)
	}
	embedding := parsed.Data[0].Embedding
	if len(embedding) != EmbeddingDims {
		return nil, errors.NewMalformedResponseError(openAIService,
			fmt.Sprintf("unexpected embedding dimensions: got %d, expected %d", len(embedding), EmbeddingDims), nil)
	}
	return embedding, nil
}

func (c *OpenAIClient) postJSON(ctx context.Context, path string, payload interface{}, accept string) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	return c.do(httpReq)
}

func (c *OpenAIClient) do(httpReq *http.Request) ([]byte, error) {
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError(openAIService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(openAIService, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(openAIService,
			fmt.Errorf("%s returned status %d: %s", httpReq.URL.Path, resp.StatusCode, string(body)))
	}
	return body, nil
}
