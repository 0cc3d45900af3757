package cache

import (
	"context"
	"sort"

	"github.com/chatcoach/coachd/pkg/models"
)

// EventLister is implemented by stores that can enumerate a session
// partition's events for observability endpoints.
type EventLister interface {
	Events(ctx context.Context, sessionID string, scene int) ([]*models.CacheEvent, error)
}

func sortEventsByTime(events []*models.CacheEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TS.Before(events[j].TS)
	})
}
