package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultRepoQueries are the GitHub search queries tracked by default.
var DefaultRepoQueries = []string{
	"topic:llm stars:>200",
	"topic:rag stars:>100",
	"topic:agents stars:>100",
}

// Repo is a tracked GitHub repository as returned by the collector.
type Repo struct {
	ID           int64      `json:"id" db:"id"`
	FullName     string     `json:"full_name" db:"full_name"`
	URL          string     `json:"url" db:"url"`
	Description  string     `json:"description" db:"description"`
	Topics       []string   `json:"topics" db:"-"`
	TopicsJSON   string     `json:"-" db:"topics"`
	Language     string     `json:"language" db:"language"`
	Stars        int        `json:"stars" db:"stars"`
	Forks        int        `json:"forks" db:"forks"`
	OpenIssues   int        `json:"open_issues" db:"open_issues"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	LastPushedAt *time.Time `json:"last_pushed_at,omitempty" db:"last_pushed_at"`
}

// GitHub collects AI repositories from the GitHub search API.
type GitHub struct {
	client  *http.Client
	token   string
	queries []string
	perPage int
}

// NewGitHub creates a new GitHub repo collector.
func NewGitHub(token string, queries []string) *GitHub {
	if len(queries) == 0 {
		queries = DefaultRepoQueries
	}
	return &GitHub{
		client:  &http.Client{Timeout: 30 * time.Second},
		token:   token,
		queries: queries,
		perPage: 50,
	}
}

// CollectRepos runs all configured search queries and returns the merged,
// deduplicated repo list.
func (g *GitHub) CollectRepos(ctx context.Context) ([]Repo, error) {
	seen := make(map[string]bool)
	var repos []Repo

	for _, q := range g.queries {
		batch, err := g.search(ctx, q)
		if err != nil {
			return repos, fmt.Errorf("github search %q: %w", q, err)
		}
		for _, r := range batch {
			if seen[r.FullName] {
				continue
			}
			seen[r.FullName] = true
			repos = append(repos, r)
		}
	}

	return repos, nil
}

func (g *GitHub) search(ctx context.Context, query string) ([]Repo, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", fmt.Sprintf("%d", g.perPage))

	reqURL := "https://api.github.com/search/repositories?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create github request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch github repos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API status %d", resp.StatusCode)
	}

	var result ghSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}

	var repos []Repo
	for _, r := range result.Items {
		var pushed *time.Time
		if !r.PushedAt.IsZero() {
			t := r.PushedAt.UTC()
			pushed = &t
		}
		repos = append(repos, Repo{
			FullName:     r.FullName,
			URL:          r.HTMLURL,
			Description:  r.Description,
			Topics:       r.Topics,
			Language:     r.Language,
			Stars:        r.Stars,
			Forks:        r.Forks,
			OpenIssues:   r.OpenIssues,
			CreatedAt:    r.CreatedAt.UTC(),
			LastPushedAt: pushed,
		})
	}
	return repos, nil
}

type ghSearchResult struct {
	TotalCount int      `json:"total_count"`
	Items      []ghRepo `json:"items"`
}

type ghRepo struct {
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	OpenIssues  int       `json:"open_issues_count"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	PushedAt    time.Time `json:"pushed_at"`
}
