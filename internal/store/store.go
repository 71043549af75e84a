package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/feiwu/aibrief/pkg/source"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// FeedbackLabel values accepted in user_feedback rows.
const (
	LabelUseful  = "useful"
	LabelUseless = "useless"
	LabelSkip    = "skip"
)

// Topic kinds used by feedback and brief rows.
const (
	KindNews = "news"
	KindRepo = "repo"
)

// Cluster is a topical grouping of news items sharing a representative title.
type Cluster struct {
	ID            int64     `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Kind          string    `db:"kind" json:"kind"`
	FirstSeenAt   time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt    time.Time `db:"last_seen_at" json:"last_seen_at"`
	ItemCount     int       `db:"item_count" json:"item_count"`
	Score         float64   `db:"score" json:"score"`
	MetaJSON      string    `db:"meta" json:"-"`
	PrimaryLink   string    `db:"primary_link" json:"primary_link"`
	EvidenceJSON  string    `db:"evidence_links" json:"-"`
	EvidenceLinks []string  `db:"-" json:"evidence_links"`
	LinkDebugJSON string    `db:"link_select_debug" json:"-"`
}

// RepoSnapshot is an immutable point-in-time capture of repo counters.
type RepoSnapshot struct {
	ID         int64     `db:"id"`
	RepoID     int64     `db:"repo_id"`
	CapturedAt time.Time `db:"captured_at"`
	Stars      int       `db:"stars"`
	Forks      int       `db:"forks"`
	OpenIssues int       `db:"open_issues"`
}

// FeedbackCounts aggregates feedback labels for one topic.
type FeedbackCounts struct {
	Useful  int `json:"useful"`
	Useless int `json:"useless"`
	Skip    int `json:"skip"`
}

// RawItem records what was retrieved from a source before normalization.
type RawItem struct {
	ID              int64     `db:"id"`
	SourceKind      string    `db:"source_kind"`
	SourceRef       string    `db:"source_ref"`
	SourceURL       string    `db:"source_url"`
	RetrievedAt     time.Time `db:"retrieved_at"`
	ContentSnapshot string    `db:"content_snapshot"`
	RawPayload      string    `db:"raw_payload"`
}

// JobRun records one batch pass for operational audit.
type JobRun struct {
	ID         int64     `db:"id"`
	RunID      string    `db:"run_id"`
	Job        string    `db:"job"`
	ItemsIn    int       `db:"items_in"`
	ItemsOut   int       `db:"items_out"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Error      string    `db:"error"`
}

// Store is the persistence interface.
type Store interface {
	UpsertItem(ctx context.Context, item *source.Item) error
	UpsertItems(ctx context.Context, items []source.Item) error
	ListUnclusteredItems(ctx context.Context, since time.Time) ([]source.Item, error)
	ListClusterItems(ctx context.Context, clusterID int64, limit int) ([]source.Item, error)
	AssignItemCluster(ctx context.Context, itemID string, clusterID int64) error

	ListActiveClusters(ctx context.Context, since time.Time) ([]Cluster, error)
	GetCluster(ctx context.Context, id int64) (*Cluster, error)
	CreateCluster(ctx context.Context, title string, seenAt time.Time) (int64, error)
	TouchCluster(ctx context.Context, id int64, seenAt time.Time) error
	RefreshClusterAggregates(ctx context.Context, since time.Time) error
	UpdateClusterScore(ctx context.Context, id int64, score float64, metaJSON string) error
	UpdateClusterLinks(ctx context.Context, id int64, primary string, evidence []string, debugJSON string) error
	TopClusters(ctx context.Context, since time.Time, limit int, exclude []int64) ([]Cluster, error)

	UpsertRepo(ctx context.Context, repo *source.Repo) (int64, error)
	AddRepoSnapshot(ctx context.Context, repoID int64, capturedAt time.Time, stars, forks, openIssues int) error
	ListRepos(ctx context.Context) ([]source.Repo, error)
	SnapshotBetween(ctx context.Context, repoID int64, from, to time.Time) (*RepoSnapshot, error)

	AddFeedback(ctx context.Context, kind string, refID int64, label, reason, userID string) error
	FeedbackCounts(ctx context.Context, kind string, refID int64, since time.Time) (FeedbackCounts, error)
	SkippedRefIDs(ctx context.Context, kind string, since time.Time) (map[int64]bool, error)

	LogBrief(ctx context.Context, kind string, refID int64, title string) error
	RecentBriefRefIDs(ctx context.Context, kind string, refIDs []int64, since time.Time) (map[int64]bool, error)
	ListBriefedRefIDs(ctx context.Context, kind string, since time.Time) (map[int64]bool, error)

	AddRawItem(ctx context.Context, raw *RawItem) (int64, error)
	RecordJobRun(ctx context.Context, run *JobRun) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertItem(ctx context.Context, item *source.Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, source, external_id, title, url, domain, summary, published_at, fetched_at, raw_item_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			domain = excluded.domain,
			summary = excluded.summary,
			fetched_at = excluded.fetched_at
	`, item.ID, item.Source, item.ExternalID, item.Title, item.URL,
		item.Domain, item.Summary, item.PublishedAt, item.FetchedAt, item.RawItemID)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertItems(ctx context.Context, items []source.Item) error {
	for i := range items {
		if err := s.UpsertItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ListUnclusteredItems(ctx context.Context, since time.Time) ([]source.Item, error) {
	var items []source.Item
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM items
		WHERE cluster_id IS NULL
		  AND COALESCE(published_at, fetched_at) > ?
		ORDER BY COALESCE(published_at, fetched_at) DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list unclustered items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) ListClusterItems(ctx context.Context, clusterID int64, limit int) ([]source.Item, error) {
	query := `
		SELECT * FROM items
		WHERE cluster_id = ?
		ORDER BY COALESCE(published_at, fetched_at) DESC
	`
	args := []any{clusterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var items []source.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items for cluster %d: %w", clusterID, err)
	}
	return items, nil
}

func (s *SQLiteStore) AssignItemCluster(ctx context.Context, itemID string, clusterID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE items SET cluster_id = ? WHERE id = ?", clusterID, itemID)
	if err != nil {
		return fmt.Errorf("assign item %s to cluster %d: %w", itemID, clusterID, err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveClusters(ctx context.Context, since time.Time) ([]Cluster, error) {
	var clusters []Cluster
	err := s.db.SelectContext(ctx, &clusters,
		"SELECT * FROM clusters WHERE last_seen_at > ? ORDER BY last_seen_at DESC", since)
	if err != nil {
		return nil, fmt.Errorf("list active clusters: %w", err)
	}
	decodeClusterJSON(clusters)
	return clusters, nil
}

func (s *SQLiteStore) GetCluster(ctx context.Context, id int64) (*Cluster, error) {
	var c Cluster
	err := s.db.GetContext(ctx, &c, "SELECT * FROM clusters WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get cluster %d: %w", id, err)
	}
	json.Unmarshal([]byte(c.EvidenceJSON), &c.EvidenceLinks)
	return &c, nil
}

func (s *SQLiteStore) CreateCluster(ctx context.Context, title string, seenAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO clusters (title, kind, first_seen_at, last_seen_at, item_count, score)
		VALUES (?, 'news', ?, ?, 0, 0)
	`, title, seenAt, seenAt)
	if err != nil {
		return 0, fmt.Errorf("create cluster: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create cluster id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) TouchCluster(ctx context.Context, id int64, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE clusters SET last_seen_at = MAX(last_seen_at, ?) WHERE id = ?", seenAt, id)
	if err != nil {
		return fmt.Errorf("touch cluster %d: %w", id, err)
	}
	return nil
}

// RefreshClusterAggregates recomputes item_count and last_seen_at for every
// cluster active in the window from the authoritative item set. A full
// aggregation rather than an incremental counter so re-runs converge.
func (s *SQLiteStore) RefreshClusterAggregates(ctx context.Context, since time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clusters SET
			item_count = (SELECT COUNT(*) FROM items WHERE items.cluster_id = clusters.id),
			last_seen_at = COALESCE(
				(SELECT MAX(COALESCE(published_at, fetched_at)) FROM items WHERE items.cluster_id = clusters.id),
				last_seen_at)
		WHERE last_seen_at > ?
	`, since)
	if err != nil {
		return fmt.Errorf("refresh cluster aggregates: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateClusterScore(ctx context.Context, id int64, score float64, metaJSON string) error {
	if metaJSON == "" {
		metaJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE clusters SET score = ?, meta = ? WHERE id = ?", score, metaJSON, id)
	if err != nil {
		return fmt.Errorf("update cluster %d score: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateClusterLinks(ctx context.Context, id int64, primary string, evidence []string, debugJSON string) error {
	if evidence == nil {
		evidence = []string{}
	}
	evidenceJSON, _ := json.Marshal(evidence)
	if debugJSON == "" {
		debugJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE clusters SET primary_link = ?, evidence_links = ?, link_select_debug = ?
		WHERE id = ?
	`, primary, string(evidenceJSON), debugJSON, id)
	if err != nil {
		return fmt.Errorf("update cluster %d links: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) TopClusters(ctx context.Context, since time.Time, limit int, exclude []int64) ([]Cluster, error) {
	if limit <= 0 {
		limit = 10
	}

	query := "SELECT * FROM clusters WHERE last_seen_at > ?"
	args := []any{since}

	if len(exclude) > 0 {
		in, inArgs, err := sqlx.In(" AND id NOT IN (?)", exclude)
		if err != nil {
			return nil, fmt.Errorf("top clusters exclusion: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	query += " ORDER BY score DESC LIMIT ?"
	args = append(args, limit)

	var clusters []Cluster
	if err := s.db.SelectContext(ctx, &clusters, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("top clusters: %w", err)
	}
	decodeClusterJSON(clusters)
	return clusters, nil
}

func decodeClusterJSON(clusters []Cluster) {
	for i := range clusters {
		json.Unmarshal([]byte(clusters[i].EvidenceJSON), &clusters[i].EvidenceLinks)
	}
}

func (s *SQLiteStore) UpsertRepo(ctx context.Context, repo *source.Repo) (int64, error) {
	topicsJSON, _ := json.Marshal(repo.Topics)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (full_name, url, description, topics, language, stars, forks, open_issues, created_at, last_pushed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_name) DO UPDATE SET
			url = excluded.url,
			description = excluded.description,
			topics = excluded.topics,
			language = excluded.language,
			stars = excluded.stars,
			forks = excluded.forks,
			open_issues = excluded.open_issues,
			last_pushed_at = excluded.last_pushed_at
	`, repo.FullName, repo.URL, repo.Description, string(topicsJSON), repo.Language,
		repo.Stars, repo.Forks, repo.OpenIssues, repo.CreatedAt, repo.LastPushedAt)
	if err != nil {
		return 0, fmt.Errorf("upsert repo %s: %w", repo.FullName, err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, "SELECT id FROM repos WHERE full_name = ?", repo.FullName); err != nil {
		return 0, fmt.Errorf("resolve repo id %s: %w", repo.FullName, err)
	}
	repo.ID = id
	return id, nil
}

func (s *SQLiteStore) AddRepoSnapshot(ctx context.Context, repoID int64, capturedAt time.Time, stars, forks, openIssues int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repo_snapshots (repo_id, captured_at, stars, forks, open_issues)
		VALUES (?, ?, ?, ?, ?)
	`, repoID, capturedAt, stars, forks, openIssues)
	if err != nil {
		return fmt.Errorf("add snapshot for repo %d: %w", repoID, err)
	}
	return nil
}

func (s *SQLiteStore) ListRepos(ctx context.Context) ([]source.Repo, error) {
	var repos []source.Repo
	if err := s.db.SelectContext(ctx, &repos, "SELECT * FROM repos ORDER BY stars DESC"); err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	for i := range repos {
		json.Unmarshal([]byte(repos[i].TopicsJSON), &repos[i].Topics)
	}
	return repos, nil
}

// SnapshotBetween returns the most recent snapshot captured in (from, to],
// or nil when none exists.
func (s *SQLiteStore) SnapshotBetween(ctx context.Context, repoID int64, from, to time.Time) (*RepoSnapshot, error) {
	var snap RepoSnapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT * FROM repo_snapshots
		WHERE repo_id = ? AND captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at DESC LIMIT 1
	`, repoID, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot for repo %d: %w", repoID, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) AddFeedback(ctx context.Context, kind string, refID int64, label, reason, userID string) error {
	switch label {
	case LabelUseful, LabelUseless, LabelSkip:
	default:
		return fmt.Errorf("invalid feedback label %q", label)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_feedback (topic_kind, topic_ref_id, label, reason, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, kind, refID, label, reason, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add feedback for %s/%d: %w", kind, refID, err)
	}
	return nil
}

func (s *SQLiteStore) FeedbackCounts(ctx context.Context, kind string, refID int64, since time.Time) (FeedbackCounts, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT label, COUNT(*) FROM user_feedback
		WHERE topic_kind = ? AND topic_ref_id = ? AND created_at > ?
		GROUP BY label
	`, kind, refID, since)
	if err != nil {
		return FeedbackCounts{}, fmt.Errorf("feedback counts for %s/%d: %w", kind, refID, err)
	}
	defer rows.Close()

	var counts FeedbackCounts
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return FeedbackCounts{}, err
		}
		switch label {
		case LabelUseful:
			counts.Useful = n
		case LabelUseless:
			counts.Useless = n
		case LabelSkip:
			counts.Skip = n
		}
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) SkippedRefIDs(ctx context.Context, kind string, since time.Time) (map[int64]bool, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT topic_ref_id FROM user_feedback
		WHERE topic_kind = ? AND label = ? AND created_at > ?
	`, kind, LabelSkip, since)
	if err != nil {
		return nil, fmt.Errorf("skipped ref ids for %s: %w", kind, err)
	}

	skipped := make(map[int64]bool, len(ids))
	for _, id := range ids {
		skipped[id] = true
	}
	return skipped, nil
}

func (s *SQLiteStore) LogBrief(ctx context.Context, kind string, refID int64, title string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO briefs (kind, ref_id, title, created_at)
		VALUES (?, ?, ?, ?)
	`, kind, refID, title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log brief %s/%d: %w", kind, refID, err)
	}
	return nil
}

func (s *SQLiteStore) RecentBriefRefIDs(ctx context.Context, kind string, refIDs []int64, since time.Time) (map[int64]bool, error) {
	if len(refIDs) == 0 {
		return map[int64]bool{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT DISTINCT ref_id FROM briefs WHERE kind = ? AND ref_id IN (?) AND created_at > ?",
		kind, refIDs, since)
	if err != nil {
		return nil, fmt.Errorf("recent briefs query: %w", err)
	}

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("recent briefs for %s: %w", kind, err)
	}

	recent := make(map[int64]bool, len(ids))
	for _, id := range ids {
		recent[id] = true
	}
	return recent, nil
}

func (s *SQLiteStore) ListBriefedRefIDs(ctx context.Context, kind string, since time.Time) (map[int64]bool, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT DISTINCT ref_id FROM briefs WHERE kind = ? AND created_at > ?", kind, since)
	if err != nil {
		return nil, fmt.Errorf("briefed ref ids for %s: %w", kind, err)
	}

	briefed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		briefed[id] = true
	}
	return briefed, nil
}

func (s *SQLiteStore) AddRawItem(ctx context.Context, raw *RawItem) (int64, error) {
	if raw.RawPayload == "" {
		raw.RawPayload = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_items (source_kind, source_ref, source_url, retrieved_at, content_snapshot, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, raw.SourceKind, raw.SourceRef, raw.SourceURL, raw.RetrievedAt, raw.ContentSnapshot, raw.RawPayload)
	if err != nil {
		return 0, fmt.Errorf("add raw item %s/%s: %w", raw.SourceKind, raw.SourceRef, err)
	}
	id, _ := res.LastInsertId()
	raw.ID = id
	return id, nil
}

func (s *SQLiteStore) RecordJobRun(ctx context.Context, run *JobRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (run_id, job, items_in, items_out, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Job, run.ItemsIn, run.ItemsOut, run.StartedAt, run.FinishedAt, run.Error)
	if err != nil {
		return fmt.Errorf("record job run %s: %w", run.Job, err)
	}
	return nil
}
