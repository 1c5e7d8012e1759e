package queue

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/hibiken/asynq"
)

// Producer enqueues persistence work for cmd/worker
type Producer struct {
	client    *asynq.Client
	queueName string
	logger    *logging.Logger
}

// NewProducer connects an asynq client to Redis
func NewProducer(redisURL, queueName string) (*Producer, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		queueName = DefaultQueueName
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Producer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		logger:    logging.NewLogger("QueueProducer"),
	}, nil
}

func (p *Producer) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := p.client.EnqueueContext(ctx, task, asynq.Queue(p.queueName))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	p.logger.Debug("Task enqueued", "type", task.Type(), "id", info.ID, "queue", info.Queue)
	return nil
}

// PersistLog enqueues a full interaction log write
func (p *Producer) PersistLog(ctx context.Context, log *storage.InteractionLog) error {
	task, err := NewInteractionLogTask(log)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

// RegisterParticipant enqueues a participant upsert
func (p *Producer) RegisterParticipant(ctx context.Context, participant *storage.Participant) error {
	task, err := NewParticipantTask(participant)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

// UploadSnapshot enqueues a board image upload for an assistant message
func (p *Producer) UploadSnapshot(ctx context.Context, userID int64, question int, messageID string, image []byte) error {
	task, err := NewSnapshotTask(&SnapshotPayload{
		UserID:    userID,
		Question:  question,
		MessageID: messageID,
		Image:     image,
	})
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

// IndexExplanations enqueues placed explanations for semantic indexing
func (p *Producer) IndexExplanations(ctx context.Context, records []storage.ExplanationRecord) error {
	if len(records) == 0 {
		return nil
	}
	task, err := NewExplanationTask(&ExplanationPayload{Records: records})
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

// Close closes the asynq client
func (p *Producer) Close() error {
	return p.client.Close()
}
