package source

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// SourceType identifies which platform an item came from.
type SourceType string

const (
	SourceRSS    SourceType = "rss"
	SourceGitHub SourceType = "github"
)

// Item is the standardized data model for collected news content.
type Item struct {
	ID          string     `json:"id" db:"id"`
	Source      SourceType `json:"source" db:"source"`
	ExternalID  string     `json:"external_id" db:"external_id"`
	Title       string     `json:"title" db:"title"`
	URL         string     `json:"url" db:"url"`
	Domain      string     `json:"domain" db:"domain"`
	Summary     string     `json:"summary" db:"summary"`
	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at" db:"fetched_at"`
	RawItemID   *int64     `json:"raw_item_id,omitempty" db:"raw_item_id"`
	ClusterID   *int64     `json:"cluster_id,omitempty" db:"cluster_id"`
}

// Effective returns the published timestamp, falling back to the fetch time.
func (i *Item) Effective() time.Time {
	if i.PublishedAt != nil && !i.PublishedAt.IsZero() {
		return *i.PublishedAt
	}
	return i.FetchedAt
}

// Source is the interface every news collector must implement.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) ([]Item, error)
}

// Domain extracts the lowercased host from a URL, empty on failure.
func Domain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}
