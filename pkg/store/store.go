package store

import (
	"context"
	"time"

	"github.com/gridpulse/resload/pkg/scenario"
)

// Entry is one computed scenario set for a (model, issue time) pair.
// Entries are immutable once stored: a newer issue time supersedes an older
// entry, it never mutates it. Readers therefore always observe a complete,
// consistent scenario sequence.
type Entry struct {
	Model      string              `json:"model"`
	Issue      time.Time           `json:"issue"`
	Scenarios  []scenario.Residual `json:"scenarios"`
	ComputedAt time.Time           `json:"computedAt"`
}

// Age returns how long ago the entry was computed.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ComputedAt)
}

// Store holds recent scenario entries per model, most recent first, bounded
// by a retention count. Implementations must serialize writes for the same
// model and never let a reader observe a partially written entry.
type Store interface {
	// Put stores an entry, evicting the oldest entry for the model when the
	// retention bound is exceeded. Re-putting an existing (model, issue)
	// pair replaces that entry in place.
	Put(ctx context.Context, e Entry) error

	// Get retrieves the entry for an exact (model, issue) pair.
	Get(ctx context.Context, model string, issue time.Time) (Entry, bool, error)

	// GetLatest retrieves the most recent entry for a model.
	GetLatest(ctx context.Context, model string) (Entry, bool, error)

	// IssueTimes lists the retained issue times for a model, most recent
	// first.
	IssueTimes(ctx context.Context, model string) ([]time.Time, error)
}
