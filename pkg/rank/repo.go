package rank

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/source"
)

// Snapshot lookup window for the "~24h ago" star count. Collection cadence
// is not exact, so any snapshot between 20 and 30 hours old qualifies.
const (
	snapshotWindowMin = 20 * time.Hour
	snapshotWindowMax = 30 * time.Hour
)

// RankedRepo is a scored repository ready for brief generation.
type RankedRepo struct {
	source.Repo
	Score          float64              `json:"score"`
	Delta24h       int                  `json:"delta_24h"`
	FeedbackScore  float64              `json:"feedback_score"`
	FeedbackCounts store.FeedbackCounts `json:"feedback_counts"`
}

// RepoScore computes the ranking score for a repository before feedback:
// star growth dominates, total stars contribute a little, freshness decays
// with the square root of days since the last push, and open issues add a
// small activity signal capped at 50.
func RepoScore(starsNow, deltaStars, openIssues int, daysSincePush int) float64 {
	if daysSincePush < 1 {
		daysSincePush = 1
	}
	freshness := 1.0 / math.Sqrt(float64(daysSincePush))

	score := (float64(deltaStars)*2.0 + float64(starsNow)*0.01) * freshness
	issues := openIssues
	if issues > 50 {
		issues = 50
	}
	return score + float64(issues)*0.1
}

// TopRepos scores every tracked repository against its ~24h-ago snapshot
// and returns the top N. Repos the user explicitly skipped in the last 30
// days are excluded before scoring. A repo with no qualifying snapshot gets
// a zero star delta rather than an inflated one.
func (e *Engine) TopRepos(ctx context.Context, limit int) ([]RankedRepo, error) {
	now := e.now().UTC()

	skipped, err := e.store.SkippedRefIDs(ctx, store.KindRepo, now.Add(-feedbackWindow))
	if err != nil {
		return nil, fmt.Errorf("skipped repos: %w", err)
	}

	repos, err := e.store.ListRepos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}

	var ranked []RankedRepo
	for i := range repos {
		repo := repos[i]
		if skipped[repo.ID] {
			continue
		}

		snap, err := e.store.SnapshotBetween(ctx, repo.ID,
			now.Add(-snapshotWindowMax), now.Add(-snapshotWindowMin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "  repos: snapshot %s: %v\n", repo.FullName, err)
			continue
		}
		starsThen := repo.Stars // no snapshot: zero delta
		if snap != nil {
			starsThen = snap.Stars
		}
		delta := repo.Stars - starsThen

		pushed := repo.CreatedAt
		if repo.LastPushedAt != nil {
			pushed = *repo.LastPushedAt
		}
		daysSincePush := int(now.Sub(pushed).Hours() / 24)

		counts, err := e.store.FeedbackCounts(ctx, store.KindRepo, repo.ID, now.Add(-feedbackWindow))
		if err != nil {
			fmt.Fprintf(os.Stderr, "  repos: feedback %s: %v\n", repo.FullName, err)
			continue
		}
		fbScore := feedbackScore(counts)

		ranked = append(ranked, RankedRepo{
			Repo:           repo,
			Score:          RepoScore(repo.Stars, delta, repo.OpenIssues, daysSincePush) + fbScore,
			Delta24h:       delta,
			FeedbackScore:  fbScore,
			FeedbackCounts: counts,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
