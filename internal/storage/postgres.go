/**
 * PostgreSQL Client for the whiteboard tutor
 *
 * Persists registered participants and their interaction logs. The log is
 * one JSONB document per participant, rewritten by UPSERT on every change.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS tutor;

	CREATE TABLE IF NOT EXISTS tutor.participants (
		user_id    BIGINT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS tutor.interaction_logs (
		user_id    BIGINT PRIMARY KEY,
		log        JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

var (
	nullEscapePattern    = regexp.MustCompile(`\\u0000`)
	controlEscapePattern = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the tutor tables if they are missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertParticipant registers a participant, keeping the original created_at
func (p *PostgresClient) UpsertParticipant(ctx context.Context, participant *Participant) error {
	if participant == nil || participant.UserID <= 0 {
		return fmt.Errorf("participant with a positive user id is required")
	}

	createdAt := participant.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tutor.participants (user_id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email
	`
	if _, err := p.db.ExecContext(ctx, query,
		participant.UserID, participant.Name, participant.Email, createdAt); err != nil {
		return fmt.Errorf("failed to upsert participant %d: %w", participant.UserID, err)
	}
	return nil
}

// GetParticipant loads a participant by id
func (p *PostgresClient) GetParticipant(ctx context.Context, userID int64) (*Participant, error) {
	query := `
		SELECT user_id, name, email, created_at
		FROM tutor.participants
		WHERE user_id = $1
	`

	var participant Participant
	err := p.db.QueryRowContext(ctx, query, userID).Scan(
		&participant.UserID,
		&participant.Name,
		&participant.Email,
		&participant.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("participant not found: %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &participant, nil
}

// SaveInteractionLog writes the participant's whole log document
func (p *PostgresClient) SaveInteractionLog(ctx context.Context, log *InteractionLog) error {
	if log == nil || log.UserID <= 0 {
		return fmt.Errorf("interaction log with a positive user id is required")
	}

	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction log: %w", err)
	}
	logJSON = sanitizeJSONForPostgres(logJSON)

	query := `
		INSERT INTO tutor.interaction_logs (user_id, log, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			log = EXCLUDED.log,
			updated_at = NOW()
	`
	if _, err := p.db.ExecContext(ctx, query, log.UserID, logJSON); err != nil {
		return fmt.Errorf("failed to save interaction log (user=%d, bytes=%d): %w", log.UserID, len(logJSON), err)
	}
	return nil
}

// GetInteractionLog loads the participant's log document
func (p *PostgresClient) GetInteractionLog(ctx context.Context, userID int64) (*InteractionLog, error) {
	query := `SELECT log, updated_at FROM tutor.interaction_logs WHERE user_id = $1`

	var (
		logJSON   []byte
		updatedAt time.Time
	)
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&logJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("interaction log not found: %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction log: %w", err)
	}

	var log InteractionLog
	if err := json.Unmarshal(logJSON, &log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interaction log: %w", err)
	}
	log.UserID = userID
	log.UpdatedAt = updatedAt
	return &log, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

// sanitizeJSONForPostgres strips escape sequences JSONB rejects. Transcribed
// speech and OCR text can carry \u0000 and other control characters.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscapePattern.ReplaceAll(jsonBytes, []byte{})
	return controlEscapePattern.ReplaceAll(result, []byte(" "))
}
