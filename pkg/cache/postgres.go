package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatcoach/coachd/pkg/models"
)

// PostgresStore persists cache events in the cache_events table. Events past
// the TTL are invisible to reads; a retention job may delete them later.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

// GetLast returns the most recent live event for key, or ErrNotFound.
func (s *PostgresStore) GetLast(ctx context.Context, key Key) (*models.CacheEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, scene, category, resource, payload, model, strategy, ts
		FROM cache_events
		WHERE session_id = $1 AND scene = $2 AND category = $3 AND resource = $4
		  AND ts > $5
		ORDER BY ts DESC, id DESC
		LIMIT 1`,
		key.SessionID, key.Scene, key.Category, key.Resource, time.Now().Add(-s.ttl))

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache event: %w", err)
	}
	return ev, nil
}

// Append inserts a new event for key.
func (s *PostgresStore) Append(ctx context.Context, key Key, payload json.RawMessage, meta Meta) (*models.CacheEvent, error) {
	ev := &models.CacheEvent{
		ID:        uuid.NewString(),
		SessionID: key.SessionID,
		Scene:     key.Scene,
		Category:  key.Category,
		Resource:  key.Resource,
		Payload:   append(json.RawMessage(nil), payload...),
		Model:     meta.Model,
		Strategy:  meta.Strategy,
		TS:        time.Now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_events (id, session_id, scene, category, resource, payload, model, strategy, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.SessionID, ev.Scene, ev.Category, ev.Resource, []byte(ev.Payload),
		nullIfEmpty(ev.Model), nullIfEmpty(ev.Strategy), ev.TS)
	if err != nil {
		return nil, fmt.Errorf("failed to append cache event: %w", err)
	}
	return ev, nil
}

// Events returns all live events of one session partition in commit order.
func (s *PostgresStore) Events(ctx context.Context, sessionID string, scene int) ([]*models.CacheEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, scene, category, resource, payload, model, strategy, ts
		FROM cache_events
		WHERE session_id = $1 AND scene = $2 AND ts > $3
		ORDER BY ts ASC, id ASC`,
		sessionID, scene, time.Now().Add(-s.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.CacheEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.CacheEvent, error) {
	var (
		ev              models.CacheEvent
		payload         []byte
		model, strategy sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.SessionID, &ev.Scene, &ev.Category, &ev.Resource,
		&payload, &model, &strategy, &ev.TS); err != nil {
		return nil, err
	}
	ev.Payload = payload
	ev.Model = model.String
	ev.Strategy = strategy.String
	return &ev, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
