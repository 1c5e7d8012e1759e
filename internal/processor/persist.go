package processor

import (
	"context"
	"strconv"

	"github.com/adverant/nexus/whiteboard-tutor/internal/clients"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/queue"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
)

// Persister takes the off-request persistence work of a cycle.
// queue.Producer satisfies it by enqueuing asynq tasks.
type Persister interface {
	PersistLog(ctx context.Context, log *storage.InteractionLog) error
	RegisterParticipant(ctx context.Context, participant *storage.Participant) error
	UploadSnapshot(ctx context.Context, userID int64, question int, messageID string, image []byte) error
	IndexExplanations(ctx context.Context, records []storage.ExplanationRecord) error
}

// Notifier broadcasts board events to other replicas
type Notifier interface {
	Publish(ctx context.Context, event queue.Event) error
}

// Uploader stores snapshot images
type Uploader interface {
	UploadSnapshot(ctx context.Context, req *clients.SnapshotUploadRequest) (*clients.ArtifactUploadResponse, error)
}

// DirectPersister writes synchronously when no Redis queue is configured.
// Either backend may be nil; the matching writes become no-ops.
type DirectPersister struct {
	storage  *storage.StorageManager
	uploader Uploader
	logger   *logging.Logger

	// OnSnapshot receives the uploaded URL, normally Orchestrator.HandleEvent
	OnSnapshot func(ctx context.Context, event queue.Event)
}

// NewDirectPersister creates a synchronous persister
func NewDirectPersister(sm *storage.StorageManager, uploader Uploader) *DirectPersister {
	return &DirectPersister{
		storage:  sm,
		uploader: uploader,
		logger:   logging.NewLogger("DirectPersister"),
	}
}

func (p *DirectPersister) PersistLog(ctx context.Context, log *storage.InteractionLog) error {
	if p.storage == nil || !p.storage.HasLogStore() {
		return nil
	}
	return p.storage.SaveInteractionLog(ctx, log)
}

func (p *DirectPersister) RegisterParticipant(ctx context.Context, participant *storage.Participant) error {
	if p.storage == nil || !p.storage.HasLogStore() {
		return nil
	}
	return p.storage.RegisterParticipant(ctx, participant)
}

func (p *DirectPersister) UploadSnapshot(ctx context.Context, userID int64, question int, messageID string, image []byte) error {
	if p.uploader == nil {
		return nil
	}
	resp, err := p.uploader.UploadSnapshot(ctx, &clients.SnapshotUploadRequest{
		Image:     image,
		UserID:    strconv.FormatInt(userID, 10),
		Question:  question,
		MessageID: messageID,
	})
	if err != nil {
		return err
	}

	if p.OnSnapshot != nil {
		p.OnSnapshot(ctx, queue.Event{
			Type:      queue.EventSnapshotUploaded,
			UserID:    userID,
			Question:  question,
			MessageID: messageID,
			URL:       resp.Artifact.DownloadURL,
		})
	}
	return nil
}

func (p *DirectPersister) IndexExplanations(ctx context.Context, records []storage.ExplanationRecord) error {
	if p.storage == nil || !p.storage.HasIndex() || len(records) == 0 {
		return nil
	}
	indexed, err := p.storage.IndexExplanations(ctx, records)
	p.logger.Debug("Indexed explanations", "count", indexed)
	return err
}

// discardPersister is used when nothing is configured
type discardPersister struct{}

func (discardPersister) PersistLog(context.Context, *storage.InteractionLog) error { return nil }
func (discardPersister) RegisterParticipant(context.Context, *storage.Participant) error {
	return nil
}
func (discardPersister) UploadSnapshot(context.Context, int64, int, string, []byte) error {
	return nil
}
func (discardPersister) IndexExplanations(context.Context, []storage.ExplanationRecord) error {
	return nil
}
