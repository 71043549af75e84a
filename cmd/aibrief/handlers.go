package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/feiwu/aibrief/internal/config"
	"github.com/feiwu/aibrief/internal/scheduler"
	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/alert"
	"github.com/feiwu/aibrief/pkg/brief"
	"github.com/feiwu/aibrief/pkg/rank"
	"github.com/feiwu/aibrief/pkg/server"
	"github.com/feiwu/aibrief/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildEngine(cfg *config.Config, db store.Store) *rank.Engine {
	// Config defaults dedup_hours to 24, so zero here means the operator
	// set it explicitly. Map it to the engine's disabled value.
	dedupHours := cfg.Rank.DedupHours
	if dedupHours <= 0 {
		dedupHours = -1
	}
	rankCfg := rank.Config{
		SimilarityThreshold:      cfg.Rank.SimilarityThreshold,
		WindowHours:              cfg.Rank.WindowHours,
		DedupHours:               dedupHours,
		TopNews:                  cfg.Rank.TopNews,
		TopRepos:                 cfg.Rank.TopRepos,
		BackfillMaxSteps:         cfg.Rank.BackfillMaxSteps,
		BackfillWindowMultiplier: cfg.Rank.BackfillWindowMultiplier,
		BackfillThresholdStep:    cfg.Rank.BackfillThresholdStep,
		EvidenceMinLinks:         cfg.Rank.EvidenceMinLinks,
		EvidenceMaxLinks:         cfg.Rank.EvidenceMaxLinks,
	}

	var signals []rank.Signal
	for _, s := range cfg.Rank.Signals {
		signals = append(signals, rank.Signal{Name: s.Name, Weight: s.Weight, Keywords: s.Keywords})
	}

	return rank.NewEngine(db, rankCfg, signals)
}

func buildSources(cfg *config.Config) []source.Source {
	var sources []source.Source

	if cfg.Sources.RSS.Enabled {
		feeds := make([]source.RSSFeed, len(cfg.Sources.RSS.Feeds))
		for i, f := range cfg.Sources.RSS.Feeds {
			feeds[i] = source.RSSFeed{Name: f.Name, URL: f.URL, Tags: f.Tags}
		}
		filter := source.NewFilter(
			cfg.Sources.RSS.ExtraKeywords,
			cfg.Sources.RSS.ExcludeKeywords,
			cfg.Sources.RSS.DisableFilter,
		)
		sources = append(sources, source.NewRSS(feeds, filter))
	}

	return sources
}

func buildGitHub(cfg *config.Config) *source.GitHub {
	if !cfg.Sources.GitHub.Enabled {
		return nil
	}
	return source.NewGitHub(cfg.Sources.GitHub.Token, cfg.Sources.GitHub.Queries)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func buildScheduler(cfg *config.Config, db store.Store) *scheduler.Scheduler {
	engine := buildEngine(cfg, db)
	builder := brief.NewBuilder(db, engine, rank.NewGate(db))
	return scheduler.New(
		db,
		buildSources(cfg),
		buildGitHub(cfg),
		engine,
		builder,
		buildAlertManager(cfg),
		cfg.Schedule.ParseCollectInterval(),
		cfg.Schedule.ParseBriefInterval(),
	)
}

func runCollect() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	buildScheduler(cfg, db).CollectOnce(context.Background())
	return nil
}

func runBrief(dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	engine := buildEngine(cfg, db)

	if err := engine.ClusterNews(ctx, cfg.Rank.WindowHours, cfg.Rank.SimilarityThreshold); err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	if err := engine.ScoreClusters(ctx, cfg.Rank.WindowHours); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}

	builder := brief.NewBuilder(db, engine, rank.NewGate(db))
	b, err := builder.Build(ctx, !dryRun)
	if err != nil {
		return fmt.Errorf("build brief: %w", err)
	}

	fmt.Println(b.Markdown)
	return nil
}

func runClusters(jsonOutput bool, limit, hours int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine := buildEngine(cfg, db)
	if limit <= 0 {
		limit = cfg.Rank.TopNews
	}
	if hours <= 0 {
		hours = cfg.Rank.WindowHours
	}

	clusters, err := engine.TopClusters(context.Background(), limit, hours)
	if err != nil {
		return fmt.Errorf("top clusters: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(clusters)
	}

	if len(clusters) == 0 {
		fmt.Println("no clusters found (try collecting and briefing first: aibrief collect && aibrief brief --dry-run)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tITEMS\tSOURCES\tQUALITY\tTITLE")
	for _, c := range clusters {
		fmt.Fprintf(w, "%d\t%.1f\t%d\t%d\t%s\t%s\n",
			c.ID, c.Score, c.Meta.ItemCount, c.Meta.SourceCount, c.Meta.SourceQuality, c.Title)
	}
	return w.Flush()
}

func runRepos(jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine := buildEngine(cfg, db)
	if limit <= 0 {
		limit = cfg.Rank.TopRepos
	}

	repos, err := engine.TopRepos(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("top repos: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(repos)
	}

	if len(repos) == 0 {
		fmt.Println("no repos found (try collecting first: aibrief collect)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tSTARS\t+24H\tREPO")
	for _, r := range repos {
		fmt.Fprintf(w, "%d\t%.1f\t%d\t%d\t%s\n", r.ID, r.Score, r.Stars, r.Delta24h, r.FullName)
	}
	return w.Flush()
}

func runFeedback(kind, refIDArg, label, reason string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if kind != store.KindNews && kind != store.KindRepo {
		return fmt.Errorf("kind must be news or repo, got %q", kind)
	}
	refID, err := strconv.ParseInt(refIDArg, 10, 64)
	if err != nil || refID <= 0 {
		return fmt.Errorf("invalid ref id %q", refIDArg)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.AddFeedback(context.Background(), kind, refID, label, reason, "cli"); err != nil {
		return err
	}

	fmt.Printf("recorded %s feedback for %s/%d\n", label, kind, refID)
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	srv := server.New(db, buildEngine(cfg, db), port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := buildEngine(cfg, db)
	builder := brief.NewBuilder(db, engine, rank.NewGate(db))
	sched := scheduler.New(
		db,
		buildSources(cfg),
		buildGitHub(cfg),
		engine,
		builder,
		buildAlertManager(cfg),
		cfg.Schedule.ParseCollectInterval(),
		cfg.Schedule.ParseBriefInterval(),
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	// Start HTTP server.
	srv := server.New(db, engine, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return srv.ListenAndServe()
}
