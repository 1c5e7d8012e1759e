/**
 * Queue Consumer for the tutor worker
 *
 * Consumes persistence tasks the server enqueues off the request path:
 * - interaction-log:persist  full log document UPSERT into Postgres
 * - participant:register     participant UPSERT into Postgres
 * - snapshot:upload          board JPEG to the artifact service, URL published back
 * - explanation:index        explanation embeddings into Qdrant
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/clients"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/hibiken/asynq"
)

// Store is the persistence surface the handlers write to
type Store interface {
	RegisterParticipant(ctx context.Context, participant *storage.Participant) error
	SaveInteractionLog(ctx context.Context, log *storage.InteractionLog) error
	IndexExplanations(ctx context.Context, records []storage.ExplanationRecord) (int, error)
}

// SnapshotUploader stores board images
type SnapshotUploader interface {
	UploadSnapshot(ctx context.Context, req *clients.SnapshotUploadRequest) (*clients.ArtifactUploadResponse, error)
}

// Publisher announces finished uploads to the servers
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Consumer handles task consumption from the Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	store     Store
	uploader  SnapshotUploader
	publisher Publisher
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Store       Store
	Uploader    SnapshotUploader // optional; snapshot tasks fail without it
	Publisher   Publisher        // optional
	TaskTimeout time.Duration    // default 2 minutes
}

// asynqLogger routes asynq's own logging through the structured logger
type asynqLogger struct {
	l *logging.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}

// RetryDelay backs off exponentially: 5s, 10s, 20s, capped at 60s
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	const maxDelay = 60 * time.Second
	if n < 0 || n > 4 {
		return maxDelay
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 2 * time.Minute
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("QueueConsumer")
	consumer := newHandlers(cfg, logger)

	consumer.server = asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task processing error",
					"type", task.Type(),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err)
			}),
			Logger: asynqLogger{l: logging.NewLogger("asynq")},
		},
	)

	return consumer, nil
}

// newHandlers builds the consumer's task routing without a server
func newHandlers(cfg *ConsumerConfig, logger *logging.Logger) *Consumer {
	c := &Consumer{
		mux:       asynq.NewServeMux(),
		store:     cfg.Store,
		uploader:  cfg.Uploader,
		publisher: cfg.Publisher,
		config:    cfg,
		logger:    logger,
	}
	c.mux.HandleFunc(TypeInteractionLogPersist, c.withTimeout(c.handleInteractionLog))
	c.mux.HandleFunc(TypeParticipantRegister, c.withTimeout(c.handleParticipant))
	c.mux.HandleFunc(TypeSnapshotUpload, c.withTimeout(c.handleSnapshot))
	c.mux.HandleFunc(TypeExplanationIndex, c.withTimeout(c.handleExplanations))
	return c
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// ProcessTask routes one task through the registered handlers
func (c *Consumer) ProcessTask(ctx context.Context, task *asynq.Task) error {
	return c.mux.ProcessTask(ctx, task)
}

func (c *Consumer) withTimeout(h func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		taskCtx, cancel := context.WithTimeout(ctx, c.config.TaskTimeout)
		defer cancel()

		startTime := time.Now()
		err := h(taskCtx, task)
		if err != nil && taskCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn("Task timed out", "type", task.Type(), "timeout", c.config.TaskTimeout)
		}
		c.logger.Debug("Task finished", "type", task.Type(), "duration", time.Since(startTime), "ok", err == nil)
		return err
	}
}

// permanent marks errors that a retry cannot fix
func permanent(err error) bool {
	return stderrors.Is(err, storage.ErrNotConfigured)
}

func decode(task *asynq.Task, v interface{}) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func (c *Consumer) handleInteractionLog(ctx context.Context, task *asynq.Task) error {
	var log storage.InteractionLog
	if err := decode(task, &log); err != nil {
		return err
	}
	if err := c.store.SaveInteractionLog(ctx, &log); err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("interaction log persist failed: %w", err)
	}
	c.logger.Info("Interaction log persisted", "user", log.UserID)
	return nil
}

func (c *Consumer) handleParticipant(ctx context.Context, task *asynq.Task) error {
	var participant storage.Participant
	if err := decode(task, &participant); err != nil {
		return err
	}
	if err := c.store.RegisterParticipant(ctx, &participant); err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("participant register failed: %w", err)
	}
	c.logger.Info("Participant registered", "user", participant.UserID, "baseline", participant.IsBaseline())
	return nil
}

func (c *Consumer) handleSnapshot(ctx context.Context, task *asynq.Task) error {
	var payload SnapshotPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	if c.uploader == nil {
		return fmt.Errorf("artifact service not configured: %w", asynq.SkipRetry)
	}

	resp, err := c.uploader.UploadSnapshot(ctx, &clients.SnapshotUploadRequest{
		Image:     payload.Image,
		UserID:    fmt.Sprintf("%d", payload.UserID),
		Question:  payload.Question,
		MessageID: payload.MessageID,
		Metadata: map[string]interface{}{
			"question": payload.Question,
		},
	})
	if err != nil {
		return fmt.Errorf("snapshot upload failed: %w", err)
	}

	if c.publisher != nil {
		event := Event{
			Type:      EventSnapshotUploaded,
			UserID:    payload.UserID,
			Question:  payload.Question,
			MessageID: payload.MessageID,
			URL:       resp.Artifact.DownloadURL,
		}
		if err := c.publisher.Publish(ctx, event); err != nil {
			// The upload itself succeeded; retrying would duplicate it.
			c.logger.Warn("Failed to publish snapshot event", "message", payload.MessageID, "error", err)
		}
	}
	return nil
}

func (c *Consumer) handleExplanations(ctx context.Context, task *asynq.Task) error {
	var payload ExplanationPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	n, err := c.store.IndexExplanations(ctx, payload.Records)
	if err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("explanation index failed after %d of %d: %w", n, len(payload.Records), err)
	}
	c.logger.Info("Explanations indexed", "count", n)
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
