package rank

import (
	"context"
	"time"

	"github.com/feiwu/aibrief/internal/store"
)

// Gate suppresses re-publication of topics already covered by a recent
// brief.
type Gate struct {
	store store.Store
	now   func() time.Time
}

// NewGate creates a dedup gate over the brief log.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s, now: time.Now}
}

// RecentlyPublished returns the subset of refIDs that were the subject of a
// brief within the trailing hours window. Empty input or a non-positive
// window returns empty immediately; a zero-hour window means dedup is
// disabled.
func (g *Gate) RecentlyPublished(ctx context.Context, kind string, refIDs []int64, hours int) (map[int64]bool, error) {
	if len(refIDs) == 0 || hours <= 0 {
		return map[int64]bool{}, nil
	}
	since := g.now().UTC().Add(-time.Duration(hours) * time.Hour)
	return g.store.RecentBriefRefIDs(ctx, kind, refIDs, since)
}
