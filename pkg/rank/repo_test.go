package rank

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/source"
)

func TestRepoScore(t *testing.T) {
	tests := []struct {
		name                                string
		stars, delta, issues, daysSincePush int
		want                                float64
	}{
		{"fresh riser", 1000, 100, 0, 1, 100*2.0 + 1000*0.01},
		{"no growth capped issues", 1000, 0, 60, 4, (0*2.0+1000*0.01)/2.0 + 50*0.1},
		{"days floor at one", 500, 10, 0, 0, 10*2.0 + 500*0.01},
		{"decay by sqrt days", 400, 20, 0, 16, (20*2.0 + 400*0.01) / 4.0},
	}
	for _, tt := range tests {
		got := RepoScore(tt.stars, tt.delta, tt.issues, tt.daysSincePush)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: RepoScore(%d, %d, %d, %d) = %.3f, want %.3f",
				tt.name, tt.stars, tt.delta, tt.issues, tt.daysSincePush, got, tt.want)
		}
	}
}

func addRepo(t *testing.T, s store.Store, fullName string, stars, issues int, pushed time.Time) int64 {
	t.Helper()
	repo := source.Repo{
		FullName:     fullName,
		URL:          "https://github.com/" + fullName,
		Stars:        stars,
		OpenIssues:   issues,
		CreatedAt:    pushed.Add(-90 * 24 * time.Hour),
		LastPushedAt: &pushed,
	}
	id, err := s.UpsertRepo(context.Background(), &repo)
	if err != nil {
		t.Fatalf("upsert repo %s: %v", fullName, err)
	}
	return id
}

func TestTopReposUsesSnapshotDelta(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := newTestEngine(t, s, now)

	id := addRepo(t, s, "org/grower", 1100, 0, now.Add(-6*time.Hour))
	if err := s.AddRepoSnapshot(ctx, id, now.Add(-24*time.Hour), 1000, 0, 0); err != nil {
		t.Fatalf("add snapshot: %v", err)
	}

	ranked, err := e.TopRepos(ctx, 10)
	if err != nil {
		t.Fatalf("TopRepos: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d repos, want 1", len(ranked))
	}
	if ranked[0].Delta24h != 100 {
		t.Errorf("delta = %d, want 100", ranked[0].Delta24h)
	}
	want := RepoScore(1100, 100, 0, 0)
	if math.Abs(ranked[0].Score-want) > 1e-9 {
		t.Errorf("score = %.3f, want %.3f", ranked[0].Score, want)
	}
}

func TestTopReposZeroDeltaWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := newTestEngine(t, s, now)

	// Snapshot too recent to qualify for the ~24h comparison window.
	id := addRepo(t, s, "org/recent", 2000, 0, now.Add(-2*time.Hour))
	if err := s.AddRepoSnapshot(ctx, id, now.Add(-5*time.Hour), 1500, 0, 0); err != nil {
		t.Fatalf("add snapshot: %v", err)
	}

	ranked, err := e.TopRepos(ctx, 10)
	if err != nil {
		t.Fatalf("TopRepos: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d repos, want 1", len(ranked))
	}
	if ranked[0].Delta24h != 0 {
		t.Errorf("delta = %d without qualifying snapshot, want 0", ranked[0].Delta24h)
	}
}

func TestTopReposOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := newTestEngine(t, s, now)

	fast := addRepo(t, s, "org/fast", 1000, 0, now.Add(-6*time.Hour))
	slow := addRepo(t, s, "org/slow", 1000, 0, now.Add(-6*time.Hour))
	if err := s.AddRepoSnapshot(ctx, fast, now.Add(-24*time.Hour), 800, 0, 0); err != nil {
		t.Fatalf("add snapshot: %v", err)
	}
	if err := s.AddRepoSnapshot(ctx, slow, now.Add(-24*time.Hour), 990, 0, 0); err != nil {
		t.Fatalf("add snapshot: %v", err)
	}

	ranked, err := e.TopRepos(ctx, 1)
	if err != nil {
		t.Fatalf("TopRepos: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d repos with limit 1, want 1", len(ranked))
	}
	if ranked[0].FullName != "org/fast" {
		t.Errorf("top repo = %s, want org/fast", ranked[0].FullName)
	}
}

func TestTopReposExcludesSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := newTestEngine(t, s, now)

	id := addRepo(t, s, "org/skipped", 5000, 0, now.Add(-6*time.Hour))
	addRepo(t, s, "org/kept", 100, 0, now.Add(-6*time.Hour))
	if err := s.AddFeedback(ctx, store.KindRepo, id, store.LabelSkip, "not interested", "tester"); err != nil {
		t.Fatalf("add feedback: %v", err)
	}

	ranked, err := e.TopRepos(ctx, 10)
	if err != nil {
		t.Fatalf("TopRepos: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d repos, want 1", len(ranked))
	}
	if ranked[0].FullName != "org/kept" {
		t.Errorf("remaining repo = %s, want org/kept", ranked[0].FullName)
	}
}

func TestTopReposFeedbackAdjustsScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := newTestEngine(t, s, now)

	id := addRepo(t, s, "org/liked", 1000, 0, now.Add(-6*time.Hour))
	if err := s.AddFeedback(ctx, store.KindRepo, id, store.LabelUseful, "", "tester"); err != nil {
		t.Fatalf("add feedback: %v", err)
	}

	ranked, err := e.TopRepos(ctx, 10)
	if err != nil {
		t.Fatalf("TopRepos: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d repos, want 1", len(ranked))
	}
	if ranked[0].FeedbackScore != 2.0 {
		t.Errorf("feedback score = %.1f, want 2.0", ranked[0].FeedbackScore)
	}
	base := RepoScore(1000, 0, 0, 0)
	if math.Abs(ranked[0].Score-(base+2.0)) > 1e-9 {
		t.Errorf("score = %.3f, want base %.3f + 2.0", ranked[0].Score, base)
	}
}
