package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/annotate"
	"github.com/adverant/nexus/whiteboard-tutor/internal/prompts"
)

// BaselineUserLimit is the highest participant id that belongs to the
// baseline cohort (free-form chat instead of board annotation).
const BaselineUserLimit = 6

var userIDPattern = regexp.MustCompile(`^[0-9]+$`)

// Participant is a registered study participant
type Participant struct {
	UserID    int64     `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsBaseline reports whether the participant uses the baseline chat tutor
func (p Participant) IsBaseline() bool {
	return p.UserID <= BaselineUserLimit
}

// ParseUserID accepts digit-only participant ids
func ParseUserID(raw string) (int64, error) {
	if !userIDPattern.MatchString(raw) {
		return 0, fmt.Errorf("user id must contain only digits: %q", raw)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user id out of range: %w", err)
	}
	return id, nil
}

// LogMessage is one chat turn stored in the interaction log
type LogMessage struct {
	ID          string                `json:"id"`
	Timestamp   time.Time             `json:"timestamp"`
	Role        string                `json:"role"`
	Content     string                `json:"content"`
	ImageURL    string                `json:"imageUrl,omitempty"`
	Annotations []annotate.Descriptor `json:"annotations,omitempty"`
}

// InteractionLog holds per-board counters and message histories for one
// participant. It serialises to flat keys (question0Reads, q0Messages, ...).
type InteractionLog struct {
	UserID       int64
	VoiceRecords [prompts.QuestionCount]int
	Reads        [prompts.QuestionCount]int
	Messages     [prompts.QuestionCount][]LogMessage
	UpdatedAt    time.Time
}

// MarshalJSON flattens the per-board arrays into numbered keys
func (l InteractionLog) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{
		"userId":    l.UserID,
		"updatedAt": l.UpdatedAt,
	}
	for i := 0; i < prompts.QuestionCount; i++ {
		doc[fmt.Sprintf("question%dVoiceRecords", i)] = l.VoiceRecords[i]
		doc[fmt.Sprintf("question%dReads", i)] = l.Reads[i]
		messages := l.Messages[i]
		if messages == nil {
			messages = []LogMessage{}
		}
		doc[fmt.Sprintf("q%dMessages", i)] = messages
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the flat numbered keys back into arrays.
// Missing keys leave zero values.
func (l *InteractionLog) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	decode := func(key string, v interface{}) error {
		raw, ok := doc[key]
		if !ok || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		return nil
	}

	if err := decode("userId", &l.UserID); err != nil {
		return err
	}
	if err := decode("updatedAt", &l.UpdatedAt); err != nil {
		return err
	}
	for i := 0; i < prompts.QuestionCount; i++ {
		if err := decode(fmt.Sprintf("question%dVoiceRecords", i), &l.VoiceRecords[i]); err != nil {
			return err
		}
		if err := decode(fmt.Sprintf("question%dReads", i), &l.Reads[i]); err != nil {
			return err
		}
		if err := decode(fmt.Sprintf("q%dMessages", i), &l.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

// ExplanationRecord is one placed annotation queued for semantic indexing
type ExplanationRecord struct {
	UserID      int64  `json:"userId"`
	Question    int    `json:"question"`
	ShapeID     string `json:"shapeId"`
	TargetID    string `json:"targetId"`
	Color       string `json:"color"`
	Explanation string `json:"explanation"`
}

// ExplanationMatch is a search hit from the explanation index
type ExplanationMatch struct {
	ExplanationRecord
	Score float32 `json:"score"`
}
