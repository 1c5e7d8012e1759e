package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/hibiken/asynq"
)

// Task types consumed by cmd/worker
const (
	TypeInteractionLogPersist = "interaction-log:persist"
	TypeParticipantRegister   = "participant:register"
	TypeSnapshotUpload        = "snapshot:upload"
	TypeExplanationIndex      = "explanation:index"
)

// DefaultQueueName is the asynq queue the server enqueues to
const DefaultQueueName = "tutor"

// SnapshotPayload carries one annotated board image to upload
type SnapshotPayload struct {
	UserID    int64  `json:"userId"`
	Question  int    `json:"question"`
	MessageID string `json:"messageId"`
	Image     []byte `json:"image"`
}

// ExplanationPayload carries the explanations placed in one cycle
type ExplanationPayload struct {
	Records []storage.ExplanationRecord `json:"records"`
}

func newTask(taskType string, payload interface{}, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data, opts...), nil
}

// NewInteractionLogTask snapshots the log at enqueue time. Later writes of the
// same participant supersede earlier ones since each carries the full document.
func NewInteractionLogTask(log *storage.InteractionLog) (*asynq.Task, error) {
	return newTask(TypeInteractionLogPersist, log, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
}

// NewParticipantTask registers a participant
func NewParticipantTask(p *storage.Participant) (*asynq.Task, error) {
	return newTask(TypeParticipantRegister, p, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
}

// NewSnapshotTask uploads a board image
func NewSnapshotTask(p *SnapshotPayload) (*asynq.Task, error) {
	if len(p.Image) == 0 {
		return nil, fmt.Errorf("snapshot image is empty")
	}
	return newTask(TypeSnapshotUpload, p, asynq.MaxRetry(3), asynq.Timeout(2*time.Minute))
}

// NewExplanationTask indexes explanations in Qdrant
func NewExplanationTask(p *ExplanationPayload) (*asynq.Task, error) {
	return newTask(TypeExplanationIndex, p, asynq.MaxRetry(3), asynq.Timeout(2*time.Minute))
}
