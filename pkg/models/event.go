package models

import (
	"encoding/json"
	"time"
)

// Flow variant tags attached to cache event payloads. They describe which
// analysis flow produced an event and never participate in cache keys, so a
// deployment may switch flows without invalidating prior work.
const (
	FlowMergeStep    = "merge-step"
	FlowNonMergeStep = "non-merge-step"
)

// CacheEvent is one record of the append-only session event log. Payload is
// opaque JSON owned by the producing component; Model and Strategy are
// observability metadata serialized into the payload envelope as _model and
// _strategy.
type CacheEvent struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Scene     int             `json:"scene"`
	Category  string          `json:"category"`
	Resource  string          `json:"resource"`
	Payload   json.RawMessage `json:"payload"`
	Model     string          `json:"_model,omitempty"`
	Strategy  string          `json:"_strategy,omitempty"`
	TS        time.Time       `json:"ts"`
}
