package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/annotate"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	qdrant "github.com/qdrant/go-client/qdrant"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"007", 7, false},
		{"", 0, true},
		{"12a", 0, true},
		{"-3", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseUserID(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUserID(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseUserID(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParticipantIsBaseline(t *testing.T) {
	for id, want := range map[int64]bool{1: true, 6: true, 7: false, 120: false} {
		if got := (Participant{UserID: id}).IsBaseline(); got != want {
			t.Errorf("Participant{%d}.IsBaseline() = %v, want %v", id, got, want)
		}
	}
}

func TestInteractionLogFlatKeys(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	log := InteractionLog{UserID: 42}
	log.VoiceRecords[1] = 2
	log.Reads[2] = 5
	log.Messages[0] = []LogMessage{{
		ID:        "m1",
		Timestamp: ts,
		Role:      "assistant",
		Content:   "Check the sign.",
		ImageURL:  "https://files/m1",
		Annotations: []annotate.Descriptor{
			{TargetID: "item-1", Kind: annotate.TargetEquation, Explanation: "sign", Color: "red"},
		},
	}}

	data, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{
		"question0VoiceRecords", "question1VoiceRecords", "question2VoiceRecords",
		"question0Reads", "question1Reads", "question2Reads",
		"q0Messages", "q1Messages", "q2Messages",
	} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing key %s in %s", key, data)
		}
	}
	if string(doc["q1Messages"]) != "[]" {
		t.Errorf("empty board messages = %s, want []", doc["q1Messages"])
	}

	var back InteractionLog
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() into log error = %v", err)
	}
	if back.UserID != 42 || back.VoiceRecords[1] != 2 || back.Reads[2] != 5 {
		t.Errorf("counters = %+v", back)
	}
	if len(back.Messages[0]) != 1 || back.Messages[0][0].Annotations[0].Color != "red" {
		t.Errorf("messages = %+v", back.Messages[0])
	}
}

func TestInteractionLogPartialDocument(t *testing.T) {
	var log InteractionLog
	if err := json.Unmarshal([]byte(`{"question2Reads": 3, "q0Messages": null}`), &log); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if log.Reads[2] != 3 || log.Messages[0] != nil {
		t.Errorf("log = %+v", log)
	}
	if err := json.Unmarshal([]byte(`{"question0Reads": "many"}`), &log); err == nil {
		t.Error("expected error for non-numeric counter")
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	in := []byte(`{"content":"a\u0000b\u0007c<"}`)
	got := string(sanitizeJSONForPostgres(in))
	want := `{"content":"ab c<"}`
	if got != want {
		t.Errorf("sanitizeJSONForPostgres() = %s, want %s", got, want)
	}
}

func TestExplanationPointIDStable(t *testing.T) {
	a := ExplanationPointID(42, 1, "shape:annotated-item-1")
	b := ExplanationPointID(42, 1, "shape:annotated-item-1")
	c := ExplanationPointID(42, 2, "shape:annotated-item-1")
	if a != b {
		t.Errorf("ids differ for the same shape: %s vs %s", a, b)
	}
	if a == c {
		t.Error("ids collide across boards")
	}
}

func TestExplanationPayloadRoundTrip(t *testing.T) {
	rec := &ExplanationRecord{
		UserID: 42, Question: 2, ShapeID: "s", TargetID: "t", Color: "green", Explanation: "apply the chain rule",
	}
	payload := explanationPayload(rec)
	if payload["userId"].GetStringValue() != "42" {
		t.Errorf("userId payload = %v", payload["userId"])
	}
	if _, ok := payload["question"].Kind.(*qdrant.Value_IntegerValue); !ok {
		t.Errorf("question payload kind = %T", payload["question"].Kind)
	}
	if got := recordFromPayload(payload); got != *rec {
		t.Errorf("recordFromPayload() = %+v, want %+v", got, *rec)
	}
}

type fakeEmbedder struct {
	calls int
	fail  string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if text == f.fail {
		return nil, fmt.Errorf("embedding refused")
	}
	return []float32{float32(len(text))}, nil
}

type fakeIndex struct {
	upserts []ExplanationRecord
	search  []ExplanationMatch
	userID  int64
}

func (f *fakeIndex) UpsertExplanation(ctx context.Context, rec *ExplanationRecord, vector []float32) error {
	f.upserts = append(f.upserts, *rec)
	return nil
}

func (f *fakeIndex) SearchExplanations(ctx context.Context, userID int64, vector []float32, limit int) ([]ExplanationMatch, error) {
	f.userID = userID
	return f.search, nil
}

func (f *fakeIndex) Close() error { return nil }

func TestStorageManagerIndexExplanations(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	sm := NewStorageManagerWith(nil, index, embedder)

	n, err := sm.IndexExplanations(context.Background(), []ExplanationRecord{
		{ShapeID: "a", Explanation: "derivative of x^2"},
		{ShapeID: "b", Explanation: "   "},
		{ShapeID: "c", Explanation: "constant term vanishes"},
	})
	if err != nil {
		t.Fatalf("IndexExplanations() error = %v", err)
	}
	if n != 2 || len(index.upserts) != 2 || embedder.calls != 2 {
		t.Errorf("indexed=%d upserts=%d embeds=%d, want 2/2/2", n, len(index.upserts), embedder.calls)
	}

	embedder.fail = "boom"
	n, err = sm.IndexExplanations(context.Background(), []ExplanationRecord{
		{ShapeID: "d", Explanation: "ok"},
		{ShapeID: "e", Explanation: "boom"},
	})
	if err == nil || n != 1 {
		t.Errorf("IndexExplanations() = %d, %v; want 1 and an error", n, err)
	}
}

func TestStorageManagerSearch(t *testing.T) {
	index := &fakeIndex{search: []ExplanationMatch{{ExplanationRecord: ExplanationRecord{ShapeID: "a"}, Score: 0.9}}}
	sm := NewStorageManagerWith(nil, index, &fakeEmbedder{})

	matches, err := sm.SearchExplanations(context.Background(), 42, "chain rule", 5)
	if err != nil || len(matches) != 1 || index.userID != 42 {
		t.Errorf("SearchExplanations() = %+v, %v (user %d)", matches, err, index.userID)
	}
	if _, err := sm.SearchExplanations(context.Background(), 42, " ", 5); !errors.IsCode(err, errors.ErrorInvalidInput) {
		t.Errorf("blank query error = %v, want INVALID_INPUT", err)
	}
}

func TestStorageManagerMissingBackends(t *testing.T) {
	sm := NewStorageManagerWith(nil, nil, nil)
	ctx := context.Background()

	checks := map[string]error{
		"register": sm.RegisterParticipant(ctx, &Participant{UserID: 7}),
		"save":     sm.SaveInteractionLog(ctx, &InteractionLog{UserID: 7}),
	}
	_, checks["index"] = sm.IndexExplanations(ctx, nil)
	_, checks["search"] = sm.SearchExplanations(ctx, 7, "q", 1)

	for name, err := range checks {
		if !errors.IsCode(err, errors.ErrorStorageFailed) {
			t.Errorf("%s error = %v, want STORAGE_FAILED", name, err)
		}
		if err != nil && !strings.Contains(err.Error(), "not configured") {
			t.Errorf("%s error = %v, want not configured message", name, err)
		}
	}
	if sm.HasLogStore() || sm.HasIndex() {
		t.Error("manager without backends reports them available")
	}
}
