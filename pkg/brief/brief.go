package brief

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/rank"
)

// Brief is one generated publication: ranked news clusters plus trending
// repos, rendered to markdown.
type Brief struct {
	Title       string               `json:"title"`
	GeneratedAt time.Time            `json:"generated_at"`
	Clusters    []rank.RankedCluster `json:"clusters"`
	Repos       []rank.RankedRepo    `json:"repos"`
	Markdown    string               `json:"markdown"`
}

// Builder assembles briefs from the ranking engine's output.
type Builder struct {
	store  store.Store
	engine *rank.Engine
	gate   *rank.Gate
}

// NewBuilder creates a brief builder.
func NewBuilder(s store.Store, engine *rank.Engine, gate *rank.Gate) *Builder {
	return &Builder{store: s, engine: engine, gate: gate}
}

// Build generates a brief from the current store state. When record is
// true, every included topic is logged so the dedup gate suppresses it in
// subsequent briefs.
func (b *Builder) Build(ctx context.Context, record bool) (*Brief, error) {
	cfg := b.engine.Config()

	clusters, err := b.engine.TopClustersWithBackfill(ctx, cfg.TopNews)
	if err != nil {
		return nil, fmt.Errorf("rank clusters: %w", err)
	}

	repos, err := b.engine.TopRepos(ctx, cfg.TopRepos)
	if err != nil {
		return nil, fmt.Errorf("rank repos: %w", err)
	}
	repos, err = b.dedupRepos(ctx, repos, cfg.DedupHours)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := &Brief{
		Title:       "AI Brief " + now.Format("2006-01-02"),
		GeneratedAt: now,
		Clusters:    clusters,
		Repos:       repos,
	}
	out.Markdown = render(out)

	if record {
		for _, c := range clusters {
			if err := b.store.LogBrief(ctx, store.KindNews, c.ID, c.Title); err != nil {
				fmt.Fprintf(os.Stderr, "  brief: log cluster %d: %v\n", c.ID, err)
			}
		}
		for _, r := range repos {
			if err := b.store.LogBrief(ctx, store.KindRepo, r.ID, r.FullName); err != nil {
				fmt.Fprintf(os.Stderr, "  brief: log repo %d: %v\n", r.ID, err)
			}
		}
	}

	return out, nil
}

// dedupRepos drops repos already covered by a brief in the dedup window.
func (b *Builder) dedupRepos(ctx context.Context, repos []rank.RankedRepo, hours int) ([]rank.RankedRepo, error) {
	ids := make([]int64, 0, len(repos))
	for _, r := range repos {
		ids = append(ids, r.ID)
	}
	published, err := b.gate.RecentlyPublished(ctx, store.KindRepo, ids, hours)
	if err != nil {
		return nil, fmt.Errorf("dedup repos: %w", err)
	}

	kept := repos[:0]
	for _, r := range repos {
		if !published[r.ID] {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func render(b *Brief) string {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n", b.Title)

	if len(b.Clusters) > 0 {
		md.WriteString("\n## Top News\n")
		for i, c := range b.Clusters {
			fmt.Fprintf(&md, "\n### %d. %s\n", i+1, c.Title)
			fmt.Fprintf(&md, "score %.1f · %d items · %d sources (%s)\n",
				c.Score, c.Meta.ItemCount, c.Meta.SourceCount, c.Meta.SourceQuality)
			if c.PrimaryLink != "" {
				fmt.Fprintf(&md, "\nPrimary: %s\n", c.PrimaryLink)
			}
			for _, link := range c.EvidenceLinks {
				if link == c.PrimaryLink {
					continue
				}
				fmt.Fprintf(&md, "- %s\n", link)
			}
		}
	}

	if len(b.Repos) > 0 {
		md.WriteString("\n## Trending Repos\n\n")
		for i, r := range b.Repos {
			fmt.Fprintf(&md, "%d. [%s](%s) — ★%d (+%d/24h, score %.1f)\n",
				i+1, r.FullName, r.URL, r.Stars, r.Delta24h, r.Score)
			if desc := strings.TrimSpace(r.Description); desc != "" {
				fmt.Fprintf(&md, "   %s\n", desc)
			}
		}
	}

	return md.String()
}
