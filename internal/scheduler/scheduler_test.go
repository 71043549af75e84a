package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/brief"
	"github.com/feiwu/aibrief/pkg/rank"
	"github.com/feiwu/aibrief/pkg/source"
)

type fakeSource struct {
	items []source.Item
	err   error
}

func (f *fakeSource) Name() source.SourceType { return source.SourceRSS }
func (f *fakeSource) Collect(ctx context.Context) ([]source.Item, error) {
	return f.items, f.err
}

func newTestScheduler(t *testing.T, sources ...source.Source) (*Scheduler, *store.SQLiteStore) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	engine := rank.NewEngine(s, rank.DefaultConfig(), nil)
	builder := brief.NewBuilder(s, engine, rank.NewGate(s))
	return New(s, sources, nil, engine, builder, nil, time.Hour, 24*time.Hour), s
}

func fakeItem(id, title string, at time.Time) source.Item {
	pub := at
	return source.Item{
		ID:          id,
		Source:      source.SourceRSS,
		ExternalID:  id,
		Title:       title,
		URL:         "https://example.com/" + id,
		Domain:      "example.com",
		Summary:     "summary of " + title,
		PublishedAt: &pub,
		FetchedAt:   at,
	}
}

func TestCollectOnceStoresItemsWithRawCapture(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	src := &fakeSource{items: []source.Item{
		fakeItem("i1", "First story", now.Add(-time.Hour)),
		fakeItem("i2", "Second story", now.Add(-2*time.Hour)),
	}}
	sched, s := newTestScheduler(t, src)

	sched.CollectOnce(ctx)

	items, err := s.ListUnclusteredItems(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.RawItemID == nil {
			t.Errorf("item %s has no raw capture reference", item.ID)
		}
	}
}

func TestCollectOnceSourceFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	broken := &fakeSource{err: errors.New("feed unreachable")}
	working := &fakeSource{items: []source.Item{fakeItem("i1", "Story", now.Add(-time.Hour))}}
	sched, s := newTestScheduler(t, broken, working)

	sched.CollectOnce(ctx)

	items, err := s.ListUnclusteredItems(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items, want 1 from the working source", len(items))
	}
}

func TestCollectOnceIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	src := &fakeSource{items: []source.Item{fakeItem("i1", "Story", now.Add(-time.Hour))}}
	sched, s := newTestScheduler(t, src)

	sched.CollectOnce(ctx)
	sched.CollectOnce(ctx)

	items, err := s.ListUnclusteredItems(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items after repeated collection, want 1", len(items))
	}
}

func TestBriefOnceClustersAndRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	src := &fakeSource{items: []source.Item{
		fakeItem("i1", "OpenAI launches realtime voice API", now.Add(-time.Hour)),
		fakeItem("i2", "OpenAI launches realtime voice API today", now.Add(-2*time.Hour)),
	}}
	sched, _ := newTestScheduler(t, src)

	sched.CollectOnce(ctx)

	b, err := sched.BriefOnce(ctx)
	if err != nil {
		t.Fatalf("BriefOnce: %v", err)
	}
	if len(b.Clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(b.Clusters))
	}
	if b.Clusters[0].Meta.ItemCount != 2 {
		t.Errorf("cluster item count = %d, want 2", b.Clusters[0].Meta.ItemCount)
	}
	if !strings.Contains(b.Markdown, "OpenAI launches realtime voice API") {
		t.Errorf("markdown missing cluster title:\n%s", b.Markdown)
	}

	// The brief was recorded, so an immediate re-run has nothing new.
	again, err := sched.BriefOnce(ctx)
	if err != nil {
		t.Fatalf("second BriefOnce: %v", err)
	}
	if len(again.Clusters) != 0 {
		t.Errorf("second brief has %d clusters, want 0 after dedup", len(again.Clusters))
	}
}

func TestSnapshotTruncates(t *testing.T) {
	long := strings.Repeat("x", 1000)
	if got := snapshot("title", long); len(got) != 800 {
		t.Errorf("snapshot length = %d, want 800", len(got))
	}
	if got := snapshot("t", "b"); got != "t\nb" {
		t.Errorf("snapshot = %q, want title and body joined", got)
	}
}

func TestSnapshotKeepsValidUTF8(t *testing.T) {
	cjk := strings.Repeat("模型发布", 100)
	got := snapshot("标题", cjk)
	if len(got) > 800 {
		t.Errorf("snapshot length = %d, want <= 800", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("snapshot produced invalid UTF-8: %q", got[len(got)-6:])
	}
}
