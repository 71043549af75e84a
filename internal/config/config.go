package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sources  SourcesConfig  `yaml:"sources"`
	Rank     RankConfig     `yaml:"rank"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures collection and briefing intervals.
type ScheduleConfig struct {
	CollectInterval string `yaml:"collect_interval"`
	BriefInterval   string `yaml:"brief_interval"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	d, err := time.ParseDuration(s.CollectInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// ParseBriefInterval returns the brief interval as time.Duration.
func (s ScheduleConfig) ParseBriefInterval() time.Duration {
	d, err := time.ParseDuration(s.BriefInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// SourcesConfig holds configuration for all data sources.
type SourcesConfig struct {
	GitHub GitHubConfig `yaml:"github"`
	RSS    RSSConfig    `yaml:"rss"`
}

// GitHubConfig for the GitHub repo collector.
type GitHubConfig struct {
	Enabled bool     `yaml:"enabled"`
	Token   string   `yaml:"token"`
	Queries []string `yaml:"queries"`
}

// RSSConfig for the RSS feed collector.
type RSSConfig struct {
	Enabled         bool       `yaml:"enabled"`
	Feeds           []FeedItem `yaml:"feeds"`
	DisableFilter   bool       `yaml:"disable_filter"`
	ExtraKeywords   []string   `yaml:"extra_keywords"`
	ExcludeKeywords []string   `yaml:"exclude_keywords"`
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name string   `yaml:"name"`
	URL  string   `yaml:"url"`
	Tags []string `yaml:"tags"`
}

// RankConfig configures clustering, scoring and backfill.
type RankConfig struct {
	SimilarityThreshold      float64        `yaml:"similarity_threshold"`
	WindowHours              int            `yaml:"window_hours"`
	DedupHours               int            `yaml:"dedup_hours"`
	TopNews                  int            `yaml:"top_news"`
	TopRepos                 int            `yaml:"top_repos"`
	BackfillMaxSteps         int            `yaml:"backfill_max_steps"`
	BackfillWindowMultiplier int            `yaml:"backfill_window_multiplier"`
	BackfillThresholdStep    float64        `yaml:"backfill_threshold_step"`
	EvidenceMinLinks         int            `yaml:"evidence_min_links"`
	EvidenceMaxLinks         int            `yaml:"evidence_max_links"`
	Signals                  []SignalConfig `yaml:"signals"`
}

// SignalConfig is one configurable value-signal category.
type SignalConfig struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// AlertsConfig configures brief notifications.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./aibrief.db"},
		Schedule: ScheduleConfig{
			CollectInterval: "1h",
			BriefInterval:   "24h",
		},
		Sources: SourcesConfig{
			GitHub: GitHubConfig{Enabled: true},
			RSS: RSSConfig{
				Enabled: true,
				Feeds: []FeedItem{
					{Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
					{Name: "The Verge AI", URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml"},
					{Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/"},
					{Name: "Ars Technica", URL: "https://feeds.arstechnica.com/arstechnica/technology-lab"},
				},
			},
		},
		Rank: RankConfig{
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
		},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AIBRIEF_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Sources.GitHub.Token = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
}
