package history

import (
	"context"
	"strings"
	"time"
)

// Entry is one ended dialogue session as recorded in the journal.
type Entry struct {
	ID         string    `json:"id"`
	SiteID     string    `json:"siteId"`
	SessionID  string    `json:"sessionId"`
	Reason     string    `json:"reason"`
	Transcript string    `json:"transcript,omitempty"`
	Intent     string    `json:"intent,omitempty"`
	CustomData string    `json:"customData,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
}

// Store journals ended sessions and answers recent-history queries.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, siteID string, limit int) ([]Entry, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
