package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/alert"
	"github.com/feiwu/aibrief/pkg/brief"
	"github.com/feiwu/aibrief/pkg/rank"
	"github.com/feiwu/aibrief/pkg/source"
	"github.com/google/uuid"
)

// Scheduler runs periodic collection and brief passes.
type Scheduler struct {
	store      store.Store
	sources    []source.Source
	github     *source.GitHub // nil = repo tracking disabled
	engine     *rank.Engine
	builder    *brief.Builder
	alertMgr   *alert.Manager
	collectInt time.Duration
	briefInt   time.Duration
}

// New creates a new scheduler.
func New(
	s store.Store,
	sources []source.Source,
	github *source.GitHub,
	engine *rank.Engine,
	builder *brief.Builder,
	alertMgr *alert.Manager,
	collectInt, briefInt time.Duration,
) *Scheduler {
	if collectInt == 0 {
		collectInt = time.Hour
	}
	if briefInt == 0 {
		briefInt = 24 * time.Hour
	}
	return &Scheduler{
		store:      s,
		sources:    sources,
		github:     github,
		engine:     engine,
		builder:    builder,
		alertMgr:   alertMgr,
		collectInt: collectInt,
		briefInt:   briefInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	collectTicker := time.NewTicker(s.collectInt)
	briefTicker := time.NewTicker(s.briefInt)
	defer collectTicker.Stop()
	defer briefTicker.Stop()

	fmt.Fprintln(os.Stderr, "scheduler: initial collection...")
	s.CollectOnce(ctx)

	fmt.Fprintf(os.Stderr, "scheduler: running (collect every %s, brief every %s)\n",
		s.collectInt, s.briefInt)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-collectTicker.C:
			fmt.Fprintln(os.Stderr, "scheduler: collecting...")
			s.CollectOnce(ctx)
		case <-briefTicker.C:
			fmt.Fprintln(os.Stderr, "scheduler: building brief...")
			if _, err := s.BriefOnce(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "  brief error: %v\n", err)
			}
		}
	}
}

// CollectOnce runs all collectors one time. Per-source failures are logged
// and do not abort the pass.
func (s *Scheduler) CollectOnce(ctx context.Context) {
	run := &store.JobRun{
		RunID:     uuid.NewString(),
		Job:       "collect",
		StartedAt: time.Now().UTC(),
	}

	for _, src := range s.sources {
		items, err := src.Collect(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s error: %v\n", src.Name(), err)
			continue
		}
		run.ItemsIn += len(items)

		stored := 0
		for i := range items {
			if err := s.storeItem(ctx, &items[i]); err != nil {
				fmt.Fprintf(os.Stderr, "  %s store error: %v\n", src.Name(), err)
				continue
			}
			stored++
		}
		run.ItemsOut += stored
		fmt.Fprintf(os.Stderr, "  %s: %d items\n", src.Name(), stored)
	}

	if s.github != nil {
		n, err := s.collectRepos(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  github repos error: %v\n", err)
		}
		run.ItemsIn += n
		run.ItemsOut += n
		fmt.Fprintf(os.Stderr, "  github: %d repos\n", n)
	}

	run.FinishedAt = time.Now().UTC()
	if err := s.store.RecordJobRun(ctx, run); err != nil {
		fmt.Fprintf(os.Stderr, "  job run record error: %v\n", err)
	}
}

// storeItem records the raw capture and upserts the normalized item.
func (s *Scheduler) storeItem(ctx context.Context, item *source.Item) error {
	raw := &store.RawItem{
		SourceKind:      string(item.Source),
		SourceRef:       item.ExternalID,
		SourceURL:       item.URL,
		RetrievedAt:     item.FetchedAt,
		ContentSnapshot: snapshot(item.Title, item.Summary),
	}
	if id, err := s.store.AddRawItem(ctx, raw); err != nil {
		fmt.Fprintf(os.Stderr, "  raw capture error: %v\n", err)
	} else {
		item.RawItemID = &id
	}
	return s.store.UpsertItem(ctx, item)
}

func (s *Scheduler) collectRepos(ctx context.Context) (int, error) {
	repos, err := s.github.CollectRepos(ctx)
	if err != nil && len(repos) == 0 {
		return 0, err
	}

	now := time.Now().UTC()
	stored := 0
	for i := range repos {
		repo := &repos[i]

		payload, _ := json.Marshal(repo)
		if _, err := s.store.AddRawItem(ctx, &store.RawItem{
			SourceKind:      string(source.SourceGitHub),
			SourceRef:       repo.FullName,
			SourceURL:       repo.URL,
			RetrievedAt:     now,
			ContentSnapshot: snapshot(repo.FullName, repo.Description),
			RawPayload:      string(payload),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "  raw capture error: %v\n", err)
		}

		id, err := s.store.UpsertRepo(ctx, repo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  repo upsert error: %v\n", err)
			continue
		}
		if err := s.store.AddRepoSnapshot(ctx, id, now, repo.Stars, repo.Forks, repo.OpenIssues); err != nil {
			fmt.Fprintf(os.Stderr, "  repo snapshot error: %v\n", err)
			continue
		}
		stored++
	}
	return stored, err
}

// BriefOnce runs clustering, scoring and brief generation one time.
func (s *Scheduler) BriefOnce(ctx context.Context) (*brief.Brief, error) {
	run := &store.JobRun{
		RunID:     uuid.NewString(),
		Job:       "brief",
		StartedAt: time.Now().UTC(),
	}

	cfg := s.engine.Config()
	if err := s.engine.ClusterNews(ctx, cfg.WindowHours, cfg.SimilarityThreshold); err != nil {
		run.Error = err.Error()
		run.FinishedAt = time.Now().UTC()
		s.store.RecordJobRun(ctx, run)
		return nil, fmt.Errorf("clustering: %w", err)
	}
	if err := s.engine.ScoreClusters(ctx, cfg.WindowHours); err != nil {
		run.Error = err.Error()
		run.FinishedAt = time.Now().UTC()
		s.store.RecordJobRun(ctx, run)
		return nil, fmt.Errorf("scoring: %w", err)
	}

	b, err := s.builder.Build(ctx, true)
	if err != nil {
		run.Error = err.Error()
		run.FinishedAt = time.Now().UTC()
		s.store.RecordJobRun(ctx, run)
		return nil, fmt.Errorf("build brief: %w", err)
	}

	run.ItemsOut = len(b.Clusters) + len(b.Repos)
	run.FinishedAt = time.Now().UTC()
	if err := s.store.RecordJobRun(ctx, run); err != nil {
		fmt.Fprintf(os.Stderr, "  job run record error: %v\n", err)
	}

	if s.alertMgr != nil && s.alertMgr.HasNotifiers() {
		topScore := 0.0
		if len(b.Clusters) > 0 {
			topScore = b.Clusters[0].Score
		}
		n := &alert.Notification{
			Title:     b.Title,
			Body:      fmt.Sprintf("%d news clusters and %d repos selected", len(b.Clusters), len(b.Repos)),
			NewsCount: len(b.Clusters),
			RepoCount: len(b.Repos),
			TopScore:  topScore,
		}
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			fmt.Fprintf(os.Stderr, "  alert error: %v\n", err)
		}
	}

	return b, nil
}

const snapshotMaxBytes = 800

func snapshot(title, body string) string {
	combined := title + "\n" + body
	if len(combined) <= snapshotMaxBytes {
		return combined
	}
	// Cut on a rune boundary so CJK content stays valid UTF-8.
	cut := snapshotMaxBytes
	for cut > 0 && !utf8.RuneStart(combined[cut]) {
		cut--
	}
	return combined[:cut]
}
