package rank

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/feiwu/aibrief/internal/store"
)

// ThresholdFloor is the lowest similarity threshold backfill may relax to.
// Matches below it are meaningless.
const ThresholdFloor = 30.0

const feedbackWindow = 30 * 24 * time.Hour

// Config holds the runtime-tunable ranking parameters.
//
// DedupHours is how far back brief-log dedup looks. Zero selects the
// default; a negative value disables dedup entirely.
type Config struct {
	SimilarityThreshold      float64
	WindowHours              int
	DedupHours               int
	TopNews                  int
	TopRepos                 int
	BackfillMaxSteps         int
	BackfillWindowMultiplier int
	BackfillThresholdStep    float64
	EvidenceMinLinks         int
	EvidenceMaxLinks         int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:      70.0,
		WindowHours:              72,
		DedupHours:               24,
		TopNews:                  10,
		TopRepos:                 10,
		BackfillMaxSteps:         2,
		BackfillWindowMultiplier: 2,
		BackfillThresholdStep:    5.0,
		EvidenceMinLinks:         3,
		EvidenceMaxLinks:         5,
	}
}

// Engine clusters news items and ranks clusters and repositories.
type Engine struct {
	store   store.Store
	cfg     Config
	signals *SignalSet
	now     func() time.Time
}

// NewEngine creates a ranking engine. A zero-valued cfg gets defaults.
func NewEngine(s store.Store, cfg Config, signals []Signal) *Engine {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = def.WindowHours
	}
	if cfg.DedupHours == 0 {
		cfg.DedupHours = def.DedupHours
	}
	if cfg.TopNews <= 0 {
		cfg.TopNews = def.TopNews
	}
	if cfg.TopRepos <= 0 {
		cfg.TopRepos = def.TopRepos
	}
	if cfg.BackfillMaxSteps < 0 {
		cfg.BackfillMaxSteps = 0
	}
	if cfg.BackfillWindowMultiplier < 1 {
		cfg.BackfillWindowMultiplier = def.BackfillWindowMultiplier
	}
	if cfg.BackfillThresholdStep <= 0 {
		cfg.BackfillThresholdStep = def.BackfillThresholdStep
	}
	if cfg.EvidenceMinLinks <= 0 {
		cfg.EvidenceMinLinks = def.EvidenceMinLinks
	}
	if cfg.EvidenceMaxLinks < cfg.EvidenceMinLinks {
		cfg.EvidenceMaxLinks = def.EvidenceMaxLinks
	}
	return &Engine{
		store:   s,
		cfg:     cfg,
		signals: NewSignalSet(signals),
		now:     time.Now,
	}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// windowHours clamps a clustering window to a sane minimum.
func windowHours(hours int) int {
	if hours < 6 {
		return 6
	}
	return hours
}

// ClusterNews assigns unclustered items inside the window to active
// clusters, creating new clusters for items that match nothing above the
// threshold. A new cluster is immediately eligible for matching subsequent
// items in the same pass. Per-item persistence failures are logged and
// skipped so one bad item cannot abort the batch.
func (e *Engine) ClusterNews(ctx context.Context, hours int, threshold float64) error {
	window := windowHours(hours)
	cutoff := e.now().UTC().Add(-time.Duration(window) * time.Hour)

	type activeCluster struct {
		id    int64
		title string
	}

	clusters, err := e.store.ListActiveClusters(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load active clusters: %w", err)
	}
	active := make([]activeCluster, 0, len(clusters))
	for _, c := range clusters {
		active = append(active, activeCluster{id: c.ID, title: c.Title})
	}

	items, err := e.store.ListUnclusteredItems(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load unclustered items: %w", err)
	}

	for i := range items {
		item := &items[i]
		title := strings.TrimSpace(item.Title)
		if title == "" {
			fmt.Fprintf(os.Stderr, "  cluster: item %s has no usable title, skipping\n", item.ID)
			continue
		}

		bestIdx := -1
		bestScore := 0.0
		for j := range active {
			if score := Similarity(title, active[j].title); score > bestScore {
				bestScore = score
				bestIdx = j
			}
		}

		seenAt := item.Effective()
		if bestIdx >= 0 && bestScore >= threshold {
			target := active[bestIdx]
			if err := e.store.AssignItemCluster(ctx, item.ID, target.id); err != nil {
				fmt.Fprintf(os.Stderr, "  cluster: assign %s: %v\n", item.ID, err)
				continue
			}
			if err := e.store.TouchCluster(ctx, target.id, seenAt); err != nil {
				fmt.Fprintf(os.Stderr, "  cluster: touch %d: %v\n", target.id, err)
			}
			continue
		}

		id, err := e.store.CreateCluster(ctx, title, seenAt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  cluster: create for %s: %v\n", item.ID, err)
			continue
		}
		if err := e.store.AssignItemCluster(ctx, item.ID, id); err != nil {
			fmt.Fprintf(os.Stderr, "  cluster: assign %s: %v\n", item.ID, err)
			continue
		}
		active = append(active, activeCluster{id: id, title: title})
	}

	if err := e.store.RefreshClusterAggregates(ctx, cutoff); err != nil {
		return fmt.Errorf("refresh aggregates: %w", err)
	}
	return nil
}

// ClusterMeta is the explainability record persisted with each score so the
// ranking decision can be reconstructed without recomputation.
type ClusterMeta struct {
	ValueSignals   []string             `json:"value_signals"`
	ValueScore     float64              `json:"value_score"`
	SourceCount    int                  `json:"source_count"`
	SourceQuality  string               `json:"source_quality"`
	ItemCount      int                  `json:"item_count"`
	FreshnessScore float64              `json:"freshness_score"`
	FeedbackScore  float64              `json:"feedback_score"`
	FeedbackCounts store.FeedbackCounts `json:"feedback_counts"`
}

// FreshnessScore decays linearly from 1.0 at zero hours since last seen to
// 0.0 at the window edge, clamped at zero beyond it.
func FreshnessScore(hoursSince float64, window int) float64 {
	if hoursSince < 0 {
		hoursSince = 0
	}
	f := (float64(window) - hoursSince) / float64(window)
	if f < 0 {
		return 0
	}
	return f
}

func feedbackScore(c store.FeedbackCounts) float64 {
	return float64(c.Useful)*2.0 - float64(c.Useless)*2.0 - float64(c.Skip)*5.0
}

// ScoreClusters recomputes the score of every active cluster in the window
// from scratch and persists it with explainability metadata and the
// link-selection result. Scores are recomputed wholesale, never accumulated,
// so the pass is safe to re-run. A failure on one cluster is logged and the
// pass continues.
func (e *Engine) ScoreClusters(ctx context.Context, hours int) error {
	window := windowHours(hours)
	now := e.now().UTC()
	cutoff := now.Add(-time.Duration(window) * time.Hour)

	clusters, err := e.store.ListActiveClusters(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load active clusters: %w", err)
	}

	for _, c := range clusters {
		if err := e.scoreCluster(ctx, c, window, now); err != nil {
			fmt.Fprintf(os.Stderr, "  score: cluster %d: %v\n", c.ID, err)
		}
	}
	return nil
}

func (e *Engine) scoreCluster(ctx context.Context, c store.Cluster, window int, now time.Time) error {
	items, err := e.store.ListClusterItems(ctx, c.ID, 0)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	domains := make(map[string]bool)
	official := 0
	var blob strings.Builder
	lastSeen := c.LastSeenAt
	for i := range items {
		if d := items[i].Domain; d != "" {
			if !domains[d] {
				domains[d] = true
				if OfficialDomains[d] {
					official++
				}
			}
		}
		blob.WriteString(items[i].Title)
		blob.WriteString(" ")
		blob.WriteString(items[i].Summary)
		blob.WriteString(" ")
		if eff := items[i].Effective(); eff.After(lastSeen) {
			lastSeen = eff
		}
	}

	sourceCount := len(domains)
	quality := "community"
	switch {
	case official > 0 && official == sourceCount:
		quality = "official"
	case official > 0:
		quality = "mixed"
	}

	text := blob.String()
	valueScore := e.signals.Score(text)
	valueSignals := e.signals.Names(text)

	hoursSince := now.Sub(lastSeen).Hours()
	freshness := FreshnessScore(hoursSince, window)

	counts, err := e.store.FeedbackCounts(ctx, store.KindNews, c.ID, now.Add(-feedbackWindow))
	if err != nil {
		return err
	}
	fbScore := feedbackScore(counts)

	score := float64(len(items))*1.0 +
		float64(sourceCount)*2.0 +
		valueScore*5.0 +
		freshness*3.0 +
		fbScore

	meta := ClusterMeta{
		ValueSignals:   valueSignals,
		ValueScore:     valueScore,
		SourceCount:    sourceCount,
		SourceQuality:  quality,
		ItemCount:      len(items),
		FreshnessScore: freshness,
		FeedbackScore:  fbScore,
		FeedbackCounts: counts,
	}
	metaJSON, _ := json.Marshal(meta)

	if err := e.store.UpdateClusterScore(ctx, c.ID, score, string(metaJSON)); err != nil {
		return err
	}

	sel := SelectLinks(c.ID, items, e.cfg.EvidenceMinLinks, e.cfg.EvidenceMaxLinks)
	debugJSON, _ := json.Marshal(sel.Debug)
	return e.store.UpdateClusterLinks(ctx, c.ID, sel.Primary, sel.Evidence, string(debugJSON))
}

// ClusterItem is a member item summary exposed with a ranked cluster.
type ClusterItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
	RawItemID   *int64    `json:"raw_item_id,omitempty"`
}

// RankedCluster is a scored cluster ready for brief generation.
type RankedCluster struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	Score         float64       `json:"score"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	PrimaryLink   string        `json:"primary_link"`
	EvidenceLinks []string      `json:"evidence_links"`
	Meta          ClusterMeta   `json:"meta"`
	Items         []ClusterItem `json:"items"`
}

// TopClusters returns the highest-scoring clusters in the window, excluding
// recently briefed topics and topics the user explicitly skipped.
func (e *Engine) TopClusters(ctx context.Context, limit, hours int) ([]RankedCluster, error) {
	window := windowHours(hours)
	now := e.now().UTC()
	cutoff := now.Add(-time.Duration(window) * time.Hour)

	var exclude []int64
	if e.cfg.DedupHours > 0 {
		briefed, err := e.store.ListBriefedRefIDs(ctx, store.KindNews, now.Add(-time.Duration(e.cfg.DedupHours)*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("briefed clusters: %w", err)
		}
		for id := range briefed {
			exclude = append(exclude, id)
		}
	}
	skipped, err := e.store.SkippedRefIDs(ctx, store.KindNews, now.Add(-feedbackWindow))
	if err != nil {
		return nil, fmt.Errorf("skipped clusters: %w", err)
	}
	for id := range skipped {
		exclude = append(exclude, id)
	}

	clusters, err := e.store.TopClusters(ctx, cutoff, limit, exclude)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedCluster, 0, len(clusters))
	for _, c := range clusters {
		items, err := e.store.ListClusterItems(ctx, c.ID, 5)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  top: cluster %d items: %v\n", c.ID, err)
			continue
		}

		rc := RankedCluster{
			ID:            c.ID,
			Title:         c.Title,
			Score:         c.Score,
			FirstSeenAt:   c.FirstSeenAt,
			PrimaryLink:   c.PrimaryLink,
			EvidenceLinks: c.EvidenceLinks,
		}
		json.Unmarshal([]byte(c.MetaJSON), &rc.Meta)
		for i := range items {
			rc.Items = append(rc.Items, ClusterItem{
				Title:       items[i].Title,
				URL:         items[i].URL,
				Source:      items[i].Domain,
				Summary:     items[i].Summary,
				PublishedAt: items[i].Effective(),
				RawItemID:   items[i].RawItemID,
			})
		}
		ranked = append(ranked, rc)
	}
	return ranked, nil
}

// TopClustersWithBackfill widens the window and relaxes the similarity
// threshold step by step until the target count is reached or the step
// budget is exhausted. Each step fully re-runs clustering and scoring since
// widening the window changes which clusters should exist.
func (e *Engine) TopClustersWithBackfill(ctx context.Context, limit int) ([]RankedCluster, error) {
	hours := e.cfg.WindowHours
	threshold := e.cfg.SimilarityThreshold

	results, err := e.TopClusters(ctx, limit, hours)
	if err != nil {
		return nil, err
	}
	if len(results) >= limit {
		return results, nil
	}

	for step := 1; step <= e.cfg.BackfillMaxSteps; step++ {
		hours *= e.cfg.BackfillWindowMultiplier
		threshold -= e.cfg.BackfillThresholdStep
		if threshold < ThresholdFloor {
			threshold = ThresholdFloor
		}
		fmt.Fprintf(os.Stderr, "  backfill step %d: window=%dh threshold=%.1f\n", step, hours, threshold)

		if err := e.ClusterNews(ctx, hours, threshold); err != nil {
			return results, fmt.Errorf("backfill clustering: %w", err)
		}
		if err := e.ScoreClusters(ctx, hours); err != nil {
			return results, fmt.Errorf("backfill scoring: %w", err)
		}
		results, err = e.TopClusters(ctx, limit, hours)
		if err != nil {
			return nil, err
		}
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
