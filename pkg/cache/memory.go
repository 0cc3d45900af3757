package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatcoach/coachd/pkg/models"
)

// MemoryStore is an in-process Store with TTL expiry of session buckets.
// Expired buckets are cleaned up lazily on read; there is no background
// goroutine. Intended for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[partition]*bucket
	ttl     time.Duration
	now     func() time.Time
}

// partition is the (session_id, scene) bucket key.
type partition struct {
	sessionID string
	scene     int
}

// slot is the (category, resource) index inside a partition.
type slot struct {
	category string
	resource string
}

type bucket struct {
	events    map[slot][]*models.CacheEvent
	touchedAt time.Time
}

// NewMemoryStore creates a memory store whose session buckets live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		buckets: make(map[partition]*bucket),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetLast returns the most recent event for key, or ErrNotFound.
func (s *MemoryStore) GetLast(_ context.Context, key Key) (*models.CacheEvent, error) {
	part := partition{key.SessionID, key.Scene}

	s.mu.RLock()
	b, ok := s.buckets[part]
	var expired bool
	if ok {
		expired = s.now().Sub(b.touchedAt) > s.ttl
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if expired {
		s.mu.Lock()
		if current, ok := s.buckets[part]; ok && s.now().Sub(current.touchedAt) > s.ttl {
			delete(s.buckets, part)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	events := b.events[slot{key.Category, key.Resource}]
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	ev := *events[len(events)-1]
	return &ev, nil
}

// Append adds a new event for key, refreshing the session bucket's TTL.
func (s *MemoryStore) Append(_ context.Context, key Key, payload json.RawMessage, meta Meta) (*models.CacheEvent, error) {
	ev := &models.CacheEvent{
		ID:        uuid.NewString(),
		SessionID: key.SessionID,
		Scene:     key.Scene,
		Category:  key.Category,
		Resource:  key.Resource,
		Payload:   append(json.RawMessage(nil), payload...),
		Model:     meta.Model,
		Strategy:  meta.Strategy,
		TS:        s.now(),
	}

	part := partition{key.SessionID, key.Scene}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[part]
	if !ok || s.now().Sub(b.touchedAt) > s.ttl {
		b = &bucket{events: make(map[slot][]*models.CacheEvent)}
		s.buckets[part] = b
	}
	b.touchedAt = s.now()
	sl := slot{key.Category, key.Resource}
	b.events[sl] = append(b.events[sl], ev)

	out := *ev
	return &out, nil
}

// Events returns all events of one session partition in append order.
// Used by the session events endpoint.
func (s *MemoryStore) Events(_ context.Context, sessionID string, scene int) ([]*models.CacheEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[partition{sessionID, scene}]
	if !ok || s.now().Sub(b.touchedAt) > s.ttl {
		return nil, nil
	}

	var out []*models.CacheEvent
	for _, events := range b.events {
		for _, ev := range events {
			copied := *ev
			out = append(out, &copied)
		}
	}
	sortEventsByTime(out)
	return out, nil
}
