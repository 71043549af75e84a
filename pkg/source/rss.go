package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
)

// RSSFeed is a named RSS/Atom feed URL.
type RSSFeed struct {
	Name string
	Tags []string
	URL  string
}

// RSS collects AI news from RSS/Atom feeds.
type RSS struct {
	client   *http.Client
	parser   *gofeed.Parser
	feeds    []RSSFeed
	filter   *Filter
	maxItems int
}

// NewRSS creates a new RSS collector.
func NewRSS(feeds []RSSFeed, filter *Filter) *RSS {
	return &RSS{
		client:   &http.Client{Timeout: 45 * time.Second},
		parser:   gofeed.NewParser(),
		feeds:    feeds,
		filter:   filter,
		maxItems: 100,
	}
}

func (r *RSS) Name() SourceType { return SourceRSS }

func (r *RSS) Collect(ctx context.Context) ([]Item, error) {
	var allItems []Item

	for _, feed := range r.feeds {
		items, err := r.collectFeed(ctx, feed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  rss feed %s error: %v\n", feed.Name, err)
			continue
		}
		allItems = append(allItems, items...)
	}

	return allItems, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed RSSFeed) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "aibrief/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	now := time.Now().UTC()
	var items []Item

	entries := parsed.Items
	if len(entries) > r.maxItems {
		entries = entries[:r.maxItems]
	}

	for _, entry := range entries {
		var published *time.Time
		if entry.PublishedParsed != nil {
			t := entry.PublishedParsed.UTC()
			published = &t
		} else if entry.UpdatedParsed != nil {
			t := entry.UpdatedParsed.UTC()
			published = &t
		}

		title := strings.TrimSpace(entry.Title)
		if title == "" {
			continue
		}

		if r.filter != nil && !r.filter.Matches(title+" "+entry.Description) {
			continue
		}

		link := CanonicalURL(entry.Link)
		if link == "" && len(entry.Links) > 0 {
			link = CanonicalURL(entry.Links[0])
		}

		externalID := entry.GUID
		if externalID == "" {
			externalID = link
		}

		items = append(items, Item{
			ID:          fmt.Sprintf("rss:%s:%s", feed.Name, externalID),
			Source:      SourceRSS,
			ExternalID:  externalID,
			Title:       title,
			URL:         link,
			Domain:      Domain(link),
			Summary:     truncate(strings.TrimSpace(entry.Description), 800),
			PublishedAt: published,
			FetchedAt:   now,
		})
	}

	return items, nil
}

// dropQueryParams are tracking parameters stripped during URL canonicalization.
var dropQueryParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "utm_id": true,
	"ref": true, "ref_src": true, "fbclid": true, "gclid": true,
	"igshid": true, "spm": true, "mc_cid": true, "mc_eid": true,
}

// CanonicalURL strips tracking query parameters and the fragment from a URL.
// Returns "" when the URL has no scheme or host.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	q := u.Query()
	for key := range q {
		if dropQueryParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
