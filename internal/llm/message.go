/**
 * LLM message model shared by the OpenAI and Gemini backends
 *
 * Messages use the chat-completions content-part layout. Image parts carry
 * data URLs so either backend can inline them.
 */

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part types
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ImageURL references an image by URL or data URL
type ImageURL struct {
	URL string `json:"url"`
}

// Part is one piece of message content
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content []Part `json:"content"`
}

// TextPart builds a text content part
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart builds an image content part
func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// JPEGDataURL wraps raw base64 JPEG data in a data URL
func JPEGDataURL(b64 string) string {
	return "data:image/jpeg;base64," + b64
}

// Text concatenates the message's text parts
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Content {
		if p.Type == PartText {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// UnmarshalJSON accepts content either as a plain string or as a part list
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = nil

	trimmed := strings.TrimSpace(string(raw.Content))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return err
		}
		m.Content = []Part{TextPart(s)}
		return nil
	default:
		return json.Unmarshal(raw.Content, &m.Content)
	}
}

// DecodeDataURL splits a base64 data URL into its MIME type and bytes
func DecodeDataURL(url string) (string, []byte, error) {
	if !strings.HasPrefix(url, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mime, _, _ := strings.Cut(header, ";")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return mime, data, nil
}

// Request is one completion call
type Request struct {
	Model      string
	Messages   []Message
	Schema     *Schema // nil for free-form replies
	SchemaName string
}

// Completer returns the reply text for a request. With a schema set the
// reply is the JSON object conforming to it.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
