package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/feiwu/aibrief/pkg/source"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(id, title string, published time.Time) source.Item {
	pub := published
	return source.Item{
		ID:          id,
		Source:      source.SourceRSS,
		ExternalID:  id,
		Title:       title,
		URL:         "https://example.com/" + id,
		Domain:      "example.com",
		PublishedAt: &pub,
		FetchedAt:   published,
	}
}

func TestUpsertItemIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	item := testItem("rss:feed:1", "First title", now)
	if err := s.UpsertItem(ctx, &item); err != nil {
		t.Fatalf("insert: %v", err)
	}

	item.Title = "Updated title"
	if err := s.UpsertItem(ctx, &item); err != nil {
		t.Fatalf("update: %v", err)
	}

	items, err := s.ListUnclusteredItems(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Title != "Updated title" {
		t.Errorf("title = %q, want updated value", items[0].Title)
	}
}

func TestListUnclusteredItemsWindowAndOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	older := testItem("i1", "Older", now.Add(-3*time.Hour))
	newer := testItem("i2", "Newer", now.Add(-1*time.Hour))
	ancient := testItem("i3", "Ancient", now.Add(-100*time.Hour))
	for _, it := range []source.Item{older, newer, ancient} {
		item := it
		if err := s.UpsertItem(ctx, &item); err != nil {
			t.Fatalf("insert %s: %v", it.ID, err)
		}
	}

	items, err := s.ListUnclusteredItems(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 inside window", len(items))
	}
	if items[0].ID != "i2" || items[1].ID != "i1" {
		t.Errorf("order = [%s, %s], want newest first", items[0].ID, items[1].ID)
	}
}

func TestAssignItemClusterExcludesFromUnclustered(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	item := testItem("i1", "Story", now)
	if err := s.UpsertItem(ctx, &item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	clusterID, err := s.CreateCluster(ctx, "Story", now)
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if err := s.AssignItemCluster(ctx, "i1", clusterID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	unclustered, err := s.ListUnclusteredItems(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list unclustered: %v", err)
	}
	if len(unclustered) != 0 {
		t.Errorf("got %d unclustered items after assignment, want 0", len(unclustered))
	}

	members, err := s.ListClusterItems(ctx, clusterID, 0)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].ID != "i1" {
		t.Errorf("cluster members = %v, want [i1]", members)
	}
}

func TestTouchClusterNeverRewindsLastSeen(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	id, err := s.CreateCluster(ctx, "Story", now)
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if err := s.TouchCluster(ctx, id, now.Add(-time.Hour)); err != nil {
		t.Fatalf("touch with older time: %v", err)
	}

	c, err := s.GetCluster(ctx, id)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if !c.LastSeenAt.Equal(now) {
		t.Errorf("last_seen_at rewound to %v, want %v", c.LastSeenAt, now)
	}
}

func TestRefreshClusterAggregates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	id, err := s.CreateCluster(ctx, "Story", now.Add(-5*time.Hour))
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	for _, it := range []source.Item{
		testItem("i1", "Story", now.Add(-5*time.Hour)),
		testItem("i2", "Story again", now.Add(-1*time.Hour)),
	} {
		item := it
		if err := s.UpsertItem(ctx, &item); err != nil {
			t.Fatalf("insert %s: %v", it.ID, err)
		}
		if err := s.AssignItemCluster(ctx, it.ID, id); err != nil {
			t.Fatalf("assign %s: %v", it.ID, err)
		}
	}

	if err := s.RefreshClusterAggregates(ctx, now.Add(-72*time.Hour)); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	c, err := s.GetCluster(ctx, id)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if c.ItemCount != 2 {
		t.Errorf("item_count = %d, want 2", c.ItemCount)
	}
	if !c.LastSeenAt.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("last_seen_at = %v, want newest item time", c.LastSeenAt)
	}
}

func TestTopClustersExclusionAndOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	var ids []int64
	for i, score := range []float64{5, 20, 10} {
		id, err := s.CreateCluster(ctx, "Story", now)
		if err != nil {
			t.Fatalf("create cluster %d: %v", i, err)
		}
		if err := s.UpdateClusterScore(ctx, id, score, ""); err != nil {
			t.Fatalf("score cluster %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	top, err := s.TopClusters(ctx, now.Add(-time.Hour), 10, []int64{ids[1]})
	if err != nil {
		t.Fatalf("top clusters: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d clusters, want 2 after exclusion", len(top))
	}
	if top[0].ID != ids[2] || top[1].ID != ids[0] {
		t.Errorf("order = [%d, %d], want [%d, %d]", top[0].ID, top[1].ID, ids[2], ids[0])
	}
}

func TestUpdateClusterLinksRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	id, err := s.CreateCluster(ctx, "Story", now)
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	evidence := []string{"https://a.example.com/1", "https://b.example.com/2"}
	if err := s.UpdateClusterLinks(ctx, id, evidence[0], evidence, `{"candidate_count":2}`); err != nil {
		t.Fatalf("update links: %v", err)
	}

	c, err := s.GetCluster(ctx, id)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if c.PrimaryLink != evidence[0] {
		t.Errorf("primary = %q, want %q", c.PrimaryLink, evidence[0])
	}
	if len(c.EvidenceLinks) != 2 {
		t.Errorf("evidence = %v, want 2 links", c.EvidenceLinks)
	}
}

func TestUpsertRepoKeepsID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	repo := source.Repo{FullName: "org/proj", Stars: 100, CreatedAt: now}
	id1, err := s.UpsertRepo(ctx, &repo)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	repo.Stars = 150
	id2, err := s.UpsertRepo(ctx, &repo)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("repo id changed on upsert: %d -> %d", id1, id2)
	}

	repos, err := s.ListRepos(ctx)
	if err != nil {
		t.Fatalf("list repos: %v", err)
	}
	if len(repos) != 1 {
		t.Fatalf("got %d repos, want 1", len(repos))
	}
	if repos[0].Stars != 150 {
		t.Errorf("stars = %d, want 150", repos[0].Stars)
	}
}

func TestSnapshotBetween(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	repo := source.Repo{FullName: "org/proj", Stars: 100, CreatedAt: now}
	id, err := s.UpsertRepo(ctx, &repo)
	if err != nil {
		t.Fatalf("upsert repo: %v", err)
	}

	for hours, stars := range map[int]int{28: 70, 24: 80, 4: 95} {
		at := now.Add(-time.Duration(hours) * time.Hour)
		if err := s.AddRepoSnapshot(ctx, id, at, stars, 0, 0); err != nil {
			t.Fatalf("add snapshot at -%dh: %v", hours, err)
		}
	}

	snap, err := s.SnapshotBetween(ctx, id, now.Add(-30*time.Hour), now.Add(-20*time.Hour))
	if err != nil {
		t.Fatalf("snapshot between: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot in the window")
	}
	if snap.Stars != 80 {
		t.Errorf("stars = %d, want most recent in-window snapshot (80)", snap.Stars)
	}

	none, err := s.SnapshotBetween(ctx, id, now.Add(-20*time.Hour), now.Add(-10*time.Hour))
	if err != nil {
		t.Fatalf("empty window: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for window without snapshots, got %+v", none)
	}
}

func TestFeedbackCountsAndValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.AddFeedback(ctx, KindNews, 1, "amazing", "", ""); err == nil {
		t.Error("expected error for invalid label")
	}

	for _, label := range []string{LabelUseful, LabelUseful, LabelUseless, LabelSkip} {
		if err := s.AddFeedback(ctx, KindNews, 1, label, "", "tester"); err != nil {
			t.Fatalf("add %s: %v", label, err)
		}
	}
	// Different topic must not leak into the counts.
	if err := s.AddFeedback(ctx, KindNews, 2, LabelUseful, "", "tester"); err != nil {
		t.Fatalf("add other topic: %v", err)
	}

	counts, err := s.FeedbackCounts(ctx, KindNews, 1, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Useful != 2 || counts.Useless != 1 || counts.Skip != 1 {
		t.Errorf("counts = %+v, want {2 1 1}", counts)
	}

	skipped, err := s.SkippedRefIDs(ctx, KindNews, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("skipped: %v", err)
	}
	if !skipped[1] || skipped[2] {
		t.Errorf("skipped = %v, want only id 1", skipped)
	}
}

func TestBriefLogQueries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	since := time.Now().UTC().Add(-24 * time.Hour)

	if err := s.LogBrief(ctx, KindNews, 1, "story one"); err != nil {
		t.Fatalf("log brief: %v", err)
	}
	if err := s.LogBrief(ctx, KindRepo, 2, "repo two"); err != nil {
		t.Fatalf("log brief: %v", err)
	}

	recent, err := s.RecentBriefRefIDs(ctx, KindNews, []int64{1, 2, 3}, since)
	if err != nil {
		t.Fatalf("recent briefs: %v", err)
	}
	if !recent[1] || recent[2] || recent[3] {
		t.Errorf("recent = %v, want only news id 1", recent)
	}

	all, err := s.ListBriefedRefIDs(ctx, KindNews, since)
	if err != nil {
		t.Fatalf("briefed ids: %v", err)
	}
	if len(all) != 1 || !all[1] {
		t.Errorf("briefed = %v, want {1}", all)
	}

	empty, err := s.RecentBriefRefIDs(ctx, KindNews, nil, since)
	if err != nil {
		t.Fatalf("empty recent briefs: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty input returned %v", empty)
	}
}

func TestRawItemsAndJobRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	raw := RawItem{
		SourceKind:      "rss",
		SourceRef:       "guid-1",
		SourceURL:       "https://example.com/feed",
		RetrievedAt:     now,
		ContentSnapshot: "Title\nBody",
	}
	id, err := s.AddRawItem(ctx, &raw)
	if err != nil {
		t.Fatalf("add raw item: %v", err)
	}
	if id == 0 || raw.ID != id {
		t.Errorf("raw item id = %d (struct %d), want assigned id", id, raw.ID)
	}

	run := JobRun{
		RunID:      "run-1",
		Job:        "collect",
		ItemsIn:    10,
		ItemsOut:   7,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
	if err := s.RecordJobRun(ctx, &run); err != nil {
		t.Fatalf("record job run: %v", err)
	}
}
