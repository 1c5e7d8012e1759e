/**
 * Storage Manager for the whiteboard tutor
 *
 * Coordinates PostgreSQL (participants, interaction logs) and Qdrant
 * (explanation vectors). Either backend is optional: a missing backend makes
 * the operations that need it fail with STORAGE_FAILED rather than panic.
 */

package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
)

// ErrNotConfigured is the cause of failures against a disabled backend
var ErrNotConfigured = stderrors.New("backend not configured")

// Embedder turns explanation text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LogStore persists participants and interaction logs
type LogStore interface {
	UpsertParticipant(ctx context.Context, participant *Participant) error
	SaveInteractionLog(ctx context.Context, log *InteractionLog) error
	GetInteractionLog(ctx context.Context, userID int64) (*InteractionLog, error)
	Close() error
}

// VectorIndex stores and searches explanation vectors
type VectorIndex interface {
	UpsertExplanation(ctx context.Context, rec *ExplanationRecord, vector []float32) error
	SearchExplanations(ctx context.Context, userID int64, vector []float32, limit int) ([]ExplanationMatch, error)
	Close() error
}

// ManagerConfig selects the backends to connect. Empty URLs disable a backend.
type ManagerConfig struct {
	PostgresURL      string
	QdrantAddress    string
	QdrantCollection string
	Dimensions       int
	Embedder         Embedder
}

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	logs     LogStore
	index    VectorIndex
	embedder Embedder
	logger   *logging.Logger
}

// NewStorageManager connects the configured backends
func NewStorageManager(ctx context.Context, cfg *ManagerConfig) (*StorageManager, error) {
	var (
		logs  LogStore
		index VectorIndex
	)

	if cfg.PostgresURL != "" {
		pg, err := NewPostgresClient(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		logs = pg
	}

	if cfg.QdrantAddress != "" {
		qc, err := NewQdrantClient(cfg.QdrantAddress, cfg.QdrantCollection, cfg.Dimensions)
		if err != nil {
			if logs != nil {
				logs.Close()
			}
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		index = qc
	}

	return NewStorageManagerWith(logs, index, cfg.Embedder), nil
}

// NewStorageManagerWith assembles a manager from existing backends; any may be nil
func NewStorageManagerWith(logs LogStore, index VectorIndex, embedder Embedder) *StorageManager {
	return &StorageManager{
		logs:     logs,
		index:    index,
		embedder: embedder,
		logger:   logging.NewLogger("StorageManager"),
	}
}

// HasLogStore reports whether participants and logs are persisted
func (sm *StorageManager) HasLogStore() bool {
	return sm.logs != nil
}

// HasIndex reports whether explanation search is available
func (sm *StorageManager) HasIndex() bool {
	return sm.index != nil && sm.embedder != nil
}

// RegisterParticipant stores a participant
func (sm *StorageManager) RegisterParticipant(ctx context.Context, participant *Participant) error {
	if sm.logs == nil {
		return errors.NewStorageFailedError("register participant", ErrNotConfigured)
	}
	if err := sm.logs.UpsertParticipant(ctx, participant); err != nil {
		return errors.NewStorageFailedError("register participant", err)
	}
	return nil
}

// SaveInteractionLog stores a participant's log document
func (sm *StorageManager) SaveInteractionLog(ctx context.Context, log *InteractionLog) error {
	if sm.logs == nil {
		return errors.NewStorageFailedError("save interaction log", ErrNotConfigured)
	}
	if err := sm.logs.SaveInteractionLog(ctx, log); err != nil {
		return errors.NewStorageFailedError("save interaction log", err)
	}
	return nil
}

// GetInteractionLog loads a participant's log document
func (sm *StorageManager) GetInteractionLog(ctx context.Context, userID int64) (*InteractionLog, error) {
	if sm.logs == nil {
		return nil, errors.NewStorageFailedError("load interaction log", ErrNotConfigured)
	}
	log, err := sm.logs.GetInteractionLog(ctx, userID)
	if err != nil {
		return nil, errors.NewStorageFailedError("load interaction log", err)
	}
	return log, nil
}

// IndexExplanations embeds and stores each record. Records with blank
// explanations are skipped. The first failure stops the batch.
func (sm *StorageManager) IndexExplanations(ctx context.Context, records []ExplanationRecord) (int, error) {
	if !sm.HasIndex() {
		return 0, errors.NewStorageFailedError("index explanations", ErrNotConfigured)
	}

	indexed := 0
	for i := range records {
		rec := &records[i]
		if strings.TrimSpace(rec.Explanation) == "" {
			continue
		}
		vector, err := sm.embedder.Embed(ctx, rec.Explanation)
		if err != nil {
			return indexed, fmt.Errorf("failed to embed explanation for %s: %w", rec.ShapeID, err)
		}
		if err := sm.index.UpsertExplanation(ctx, rec, vector); err != nil {
			return indexed, errors.NewStorageFailedError("index explanation "+rec.ShapeID, err)
		}
		indexed++
	}

	sm.logger.Debug("Explanations indexed", "count", indexed, "received", len(records))
	return indexed, nil
}

// SearchExplanations finds the participant's explanations closest to query
func (sm *StorageManager) SearchExplanations(ctx context.Context, userID int64, query string, limit int) ([]ExplanationMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewInvalidInputError("search query is required")
	}
	if !sm.HasIndex() {
		return nil, errors.NewStorageFailedError("search explanations", ErrNotConfigured)
	}

	vector, err := sm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}
	matches, err := sm.index.SearchExplanations(ctx, userID, vector, limit)
	if err != nil {
		return nil, errors.NewStorageFailedError("search explanations", err)
	}
	return matches, nil
}

// GetStats returns statistics from the connected backends
func (sm *StorageManager) GetStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"postgres": sm.logs != nil,
		"qdrant":   sm.index != nil,
	}
	if pg, ok := sm.logs.(*PostgresClient); ok {
		pgStats := pg.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}
	if qc, ok := sm.index.(*QdrantClient); ok {
		if info, err := qc.GetCollectionInfo(ctx); err == nil {
			stats["qdrant"] = info
		} else {
			sm.logger.Warn("Failed to read Qdrant stats", "error", err)
		}
	}
	return stats
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.logs != nil {
		pgErr = sm.logs.Close()
	}
	if sm.index != nil {
		qdErr = sm.index.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}
	return nil
}
