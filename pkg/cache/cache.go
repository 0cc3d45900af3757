// Package cache implements the session cache: an append-only event log
// partitioned by (session_id, scene) and indexed by (category, resource).
// Reads return the most recent payload for a key; writes never overwrite.
// Categories are flow-agnostic so the merge-step and legacy flows share work.
package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chatcoach/coachd/pkg/models"
)

// Recognized categories. New categories may be added without schema change.
const (
	CategoryContextAnalysis = "context_analysis"
	CategorySceneAnalysis   = "scene_analysis"
	CategoryPersonaAnalysis = "persona_analysis"
	CategoryReply           = "reply"
	CategoryImageResult     = "image_result"
	CategoryImageDimensions = "image_dimensions"
)

// ErrNotFound is returned by GetLast when no live event exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Key identifies one slot of the event log.
type Key struct {
	SessionID string
	Scene     int
	Category  string
	Resource  string
}

// Meta is the observability metadata attached to an event. It never
// participates in cache keys or hit decisions.
type Meta struct {
	Model    string
	Strategy string
}

// Store is the session cache handle shared by the analyzer and the reply
// pipeline. Implementations must be safe for concurrent use; ordering of
// concurrent appends for the same key is whatever order the backend commits.
type Store interface {
	// GetLast returns the most recent event for key, or ErrNotFound.
	GetLast(ctx context.Context, key Key) (*models.CacheEvent, error)

	// Append adds a new event for key. It never overwrites prior events.
	Append(ctx context.Context, key Key, payload json.RawMessage, meta Meta) (*models.CacheEvent, error)
}
