package llm

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"
)

func TestMessageUnmarshalAcceptsStringContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `{"role":"user","content":"what is a derivative?"}`, "what is a derivative?"},
		{"parts", `{"role":"assistant","content":[{"type":"text","text":"start with the power rule"}]}`, "start with the power rule"},
		{"null", `{"role":"user","content":null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.raw), &m); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := m.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageMarshalUsesParts(t *testing.T) {
	m := Message{Role: RoleUser, Content: []Part{ImagePart(JPEGDataURL("AAAA"))}}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"role":"user","content":[{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,AAAA"}}]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, err := DecodeDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("DecodeDataURL() error = %v", err)
	}
	if mime != "image/png" || string(data) != "hello" {
		t.Errorf("DecodeDataURL() = %q, %q", mime, data)
	}
	if _, _, err := DecodeDataURL("https://example.com/a.png"); err == nil {
		t.Errorf("DecodeDataURL(http url) returned no error")
	}
}

func testSchema() *Schema {
	return Object(
		F("ovFb", String()),
		F("termsToAnno", Array(Object(
			F("termId", String()),
			F("termExp", String()),
		))),
	)
}

func TestSchemaToOpenAIIsStrict(t *testing.T) {
	doc := testSchema().ToOpenAI()

	if doc["additionalProperties"] != false {
		t.Errorf("top-level additionalProperties = %v, want false", doc["additionalProperties"])
	}
	required := doc["required"].([]string)
	if len(required) != 2 || required[0] != "ovFb" || required[1] != "termsToAnno" {
		t.Errorf("required = %v", required)
	}
	items := doc["properties"].(map[string]interface{})["termsToAnno"].(map[string]interface{})["items"].(map[string]interface{})
	if items["additionalProperties"] != false {
		t.Errorf("nested object is not strict: %v", items)
	}
}

func TestSchemaToGenai(t *testing.T) {
	s := testSchema().ToGenai()
	if s.Type != genai.TypeObject {
		t.Fatalf("Type = %v, want object", s.Type)
	}
	if len(s.PropertyOrdering) != 2 || s.PropertyOrdering[0] != "ovFb" {
		t.Errorf("PropertyOrdering = %v", s.PropertyOrdering)
	}
	terms := s.Properties["termsToAnno"]
	if terms.Type != genai.TypeArray || terms.Items.Properties["termExp"].Type != genai.TypeString {
		t.Errorf("termsToAnno schema = %+v", terms)
	}
}
