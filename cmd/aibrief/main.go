package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aibrief",
		Short: "Curate and rank AI news and repositories into periodic briefs",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(briefCmd())
	root.AddCommand(clustersCmd())
	root.AddCommand(reposCmd())
	root.AddCommand(feedbackCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run data collectors once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect()
		},
	}
}

func briefCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Cluster, score and print a markdown brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrief(dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not record published topics (dedup gate keeps them eligible)")
	return cmd
}

func clustersCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
		hours      int
	)

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Show current top news clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClusters(jsonOutput, limit, hours)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "max clusters to show (default: from config)")
	cmd.Flags().IntVar(&hours, "hours", 0, "window hours (default: from config)")
	return cmd
}

func reposCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Show current top repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepos(jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "max repos to show (default: from config)")
	return cmd
}

func feedbackCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "feedback <news|repo> <ref-id> <useful|useless|skip>",
		Short: "Record user feedback on a topic",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedback(args[0], args[1], args[2], reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "optional free-form reason")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
