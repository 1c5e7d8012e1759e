package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"google.golang.org/genai"
)

const visionFixture = `{
  "responses": [{
    "fullTextAnnotation": {
      "text": "x2 + 1",
      "pages": [{
        "blocks": [{
          "boundingBox": {"vertices": [{"x": 10, "y": 20}, {"x": 110, "y": 20}, {"x": 110, "y": 60}, {"x": 10, "y": 60}]},
          "paragraphs": [{
            "words": [
              {
                "boundingBox": {"vertices": [{"x": 10, "y": 20}, {"x": 40, "y": 20}, {"x": 40, "y": 60}, {"x": 10, "y": 60}]},
                "symbols": [
                  {"text": "x", "boundingBox": {"vertices": [{"x": 10, "y": 20}, {"x": 25, "y": 20}, {"x": 25, "y": 60}, {"x": 10, "y": 60}]}},
                  {"text": "2", "boundingBox": {"vertices": [{"x": 25, "y": 20}, {"x": 40, "y": 20}, {"x": 40, "y": 60}, {"x": 25, "y": 60}]}}
                ]
              },
              {
                "boundingBox": {"vertices": [{"x": 50, "y": 20}, {"x": 60, "y": 20}, {"x": 60, "y": 60}, {"x": 50, "y": 60}]},
                "symbols": [{"text": "+"}]
              }
            ]
          }]
        }]
      }]
    }
  }]
}`

func TestVisionDetectTerms(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key = %q", r.URL.Query().Get("key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, visionFixture)
	}))
	defer server.Close()

	client := NewVisionClient(server.URL, "test-key")
	result, err := client.DetectTerms(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("DetectTerms() error = %v", err)
	}

	if !strings.Contains(mustMarshal(gotBody), "DOCUMENT_TEXT_DETECTION") {
		t.Errorf("request did not ask for document text detection: %v", gotBody)
	}
	if len(result.Equations) != 1 {
		t.Fatalf("equations = %d, want 1", len(result.Equations))
	}
	eq := result.Equations[0]
	if !regexp.MustCompile(`^item-[0-9a-f]{8}$`).MatchString(eq.ID) {
		t.Errorf("equation id = %q", eq.ID)
	}
	if eq.BoundingBox != (geometry.BoundingBox{X: 10, Y: 20, Width: 100, Height: 40}) {
		t.Errorf("equation box = %+v", eq.BoundingBox)
	}
	if eq.Text != "x2 +" {
		t.Errorf("equation text = %q, want space-joined term texts", eq.Text)
	}
	if len(eq.Terms) != 2 || eq.Terms[0].Text != "x2" {
		t.Fatalf("terms = %+v", eq.Terms)
	}
	if !strings.HasPrefix(eq.Terms[0].ID, eq.ID+"-term-") {
		t.Errorf("term id %q is not a child of %q", eq.Terms[0].ID, eq.ID)
	}
	symbols := eq.Terms[0].Symbols
	if len(symbols) != 2 || symbols[0].Text != "x" || symbols[1].Text != "2" {
		t.Fatalf("symbols = %+v", symbols)
	}
	if symbols[1].BoundingBox != (geometry.BoundingBox{X: 25, Y: 20, Width: 15, Height: 40}) {
		t.Errorf("symbol box = %+v", symbols[1].BoundingBox)
	}
	for _, sym := range symbols {
		if !regexp.MustCompile(`^` + regexp.QuoteMeta(eq.Terms[0].ID) + `-symbol-[0-9a-f]{6}$`).MatchString(sym.ID) {
			t.Errorf("symbol id %q is not a child of %q", sym.ID, eq.Terms[0].ID)
		}
	}
	if result.AllText != "x2 + 1" {
		t.Errorf("AllText = %q", result.AllText)
	}
}

func TestVisionEmptyAnnotation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"responses":[{}]}`)
	}))
	defer server.Close()

	result, err := NewVisionClient(server.URL, "k").DetectTerms(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("DetectTerms() error = %v", err)
	}
	if result.Equations == nil || len(result.Equations) != 0 {
		t.Errorf("equations = %#v, want empty non-nil list", result.Equations)
	}
}

func TestVisionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   errors.ErrorCode
	}{
		{"http failure", http.StatusForbidden, `{"error":"denied"}`, errors.ErrorNetwork},
		{"annotate error", http.StatusOK, `{"responses":[{"error":{"code":3,"message":"bad image"}}]}`, errors.ErrorNetwork},
		{"bad json", http.StatusOK, `not json`, errors.ErrorMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewVisionClient(server.URL, "k").DetectTerms(context.Background(), []byte("jpeg"))
			if !errors.IsCode(err, tt.code) || !errors.IsNetwork(err) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestMathpixDetectEquations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("app_id") != "id" || r.Header.Get("app_key") != "key" {
			t.Errorf("credentials headers = %q/%q", r.Header.Get("app_id"), r.Header.Get("app_key"))
		}
		var req MathpixRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.IncludeWordData || !strings.HasPrefix(req.Src, "data:image/jpeg;base64,") {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"word_data":[{"text":"x^{2}+1","cnt":[[-4,10],[50,10],[50,30],[-4,30]]}]}`)
	}))
	defer server.Close()

	result, err := NewMathpixClient(server.URL, "id", "key").DetectEquations(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("DetectEquations() error = %v", err)
	}
	if len(result.Equations) != 1 {
		t.Fatalf("equations = %d, want 1", len(result.Equations))
	}
	eq := result.Equations[0]
	if eq.Latex != "x^{2}+1" {
		t.Errorf("latex = %q", eq.Latex)
	}
	// negative contour coordinates clamp to zero
	if eq.BoundingBox != (geometry.BoundingBox{X: 0, Y: 10, Width: 50, Height: 20}) {
		t.Errorf("box = %+v", eq.BoundingBox)
	}
}

func TestMathpixRequiresCredentials(t *testing.T) {
	_, err := NewMathpixClient("http://127.0.0.1:1", "", "").DetectEquations(context.Background(), []byte("jpeg"))
	if !errors.IsNetwork(err) {
		t.Errorf("error = %v, want network error", err)
	}
}

func TestOpenAICompleteStructured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		format := body["response_format"].(map[string]interface{})
		if format["type"] != "json_schema" {
			t.Errorf("response_format = %v", format)
		}
		schema := format["json_schema"].(map[string]interface{})
		if schema["name"] != "annotations" || schema["strict"] != true {
			t.Errorf("json_schema = %v", schema)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"ovFb\":\"ok\"}"}}],"usage":{"total_tokens":12}}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "sk-test", 5*time.Second)
	got, err := client.Complete(context.Background(), llm.Request{
		Model:      "gpt-4o",
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: []llm.Part{llm.TextPart("hi")}}},
		Schema:     llm.Object(llm.F("ovFb", llm.String())),
		SchemaName: "annotations",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"ovFb":"ok"}` {
		t.Errorf("Complete() = %q", got)
	}
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   errors.ErrorCode
	}{
		{"server error", http.StatusInternalServerError, `{}`, errors.ErrorNetwork},
		{"no choices", http.StatusOK, `{"choices":[]}`, errors.ErrorMalformedResponse},
		{"refusal", http.StatusOK, `{"choices":[{"message":{"refusal":"no"}}]}`, errors.ErrorMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewOpenAIClient(server.URL, "k", time.Second).Complete(context.Background(), llm.Request{Model: "gpt-4o"})
			if !errors.IsCode(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOpenAISpeechAndTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/speech":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != SpeechModel || body["voice"] != SpeechVoice || body["input"] != "hello" {
				t.Errorf("speech body = %v", body)
			}
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3audio"))
		case "/audio/transcriptions":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("ParseMultipartForm() error = %v", err)
			}
			if r.FormValue("model") != TranscriptionModel || r.FormValue("language") != "en" {
				t.Errorf("transcription fields = %v", r.MultipartForm.Value)
			}
			_, _ = io.WriteString(w, `{"text":"what is the chain rule"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "k", time.Second)
	audio, err := client.Speech(context.Background(), "hello")
	if err != nil || string(audio) != "ID3audio" {
		t.Errorf("Speech() = %q, %v", audio, err)
	}
	text, err := client.Transcribe(context.Background(), []byte("RIFF"), "")
	if err != nil || text != "what is the chain rule" {
		t.Errorf("Transcribe() = %q, %v", text, err)
	}
	if _, err := client.Speech(context.Background(), ""); !errors.IsCode(err, errors.ErrorInvalidInput) {
		t.Errorf("Speech(\"\") error = %v, want INVALID_INPUT", err)
	}
}

func TestOpenAIEmbedChecksDimensions(t *testing.T) {
	dims := EmbeddingDims
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, dims)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec, "index": 0}},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "k", time.Second)
	vec, err := client.Embed(context.Background(), "check the sign")
	if err != nil || len(vec) != EmbeddingDims {
		t.Errorf("Embed() = %d dims, %v", len(vec), err)
	}

	dims = 8
	if _, err := client.Embed(context.Background(), "x"); !errors.IsCode(err, errors.ErrorMalformedResponse) {
		t.Errorf("Embed() with wrong dims error = %v", err)
	}
}

func TestArtifactUploadSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if got := r.FormValue("path"); got != "users/42/system/q1/msg-1_image" {
			t.Errorf("path = %q", got)
		}
		_, _ = io.WriteString(w, `{"success":true,"artifact":{"id":"a1","download_url":"https://files/a1"}}`)
	}))
	defer server.Close()

	resp, err := NewArtifactClient(server.URL).UploadSnapshot(context.Background(), &SnapshotUploadRequest{
		Image:     []byte("jpeg"),
		UserID:    "42",
		Question:  1,
		MessageID: "msg-1",
	})
	if err != nil {
		t.Fatalf("UploadSnapshot() error = %v", err)
	}
	if resp.Artifact.DownloadURL != "https://files/a1" {
		t.Errorf("download url = %q", resp.Artifact.DownloadURL)
	}
}

func TestToGenaiContents(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: []llm.Part{llm.TextPart("be a tutor"), llm.TextPart("problem")}},
		{Role: llm.RoleUser, Content: []llm.Part{llm.ImagePart("data:image/jpeg;base64,aGVsbG8=")}},
		{Role: llm.RoleAssistant, Content: []llm.Part{llm.TextPart("try the power rule")}},
	}
	system, contents, err := toGenaiContents(messages)
	if err != nil {
		t.Fatalf("toGenaiContents() error = %v", err)
	}
	if system == nil || !strings.Contains(system.Parts[0].Text, "be a tutor") {
		t.Errorf("system instruction = %+v", system)
	}
	if len(contents) != 2 {
		t.Fatalf("contents = %d, want 2", len(contents))
	}
	if blob := contents[0].Parts[0].InlineData; blob == nil || blob.MIMEType != "image/jpeg" || string(blob.Data) != "hello" {
		t.Errorf("image part = %+v", contents[0].Parts[0])
	}
	if contents[1].Role != string(genai.RoleModel) {
		t.Errorf("assistant role = %q, want model", contents[1].Role)
	}

	_, _, err = toGenaiContents([]llm.Message{{Role: llm.RoleUser, Content: []llm.Part{llm.ImagePart("https://x/y.png")}}})
	if !errors.IsCode(err, errors.ErrorInvalidInput) {
		t.Errorf("remote image error = %v, want INVALID_INPUT", err)
	}
}

func mustMarshal(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
