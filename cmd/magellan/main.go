// Package main provides the magellan CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"magellan/cli"
)

var (
	// Global flags
	provider   string
	verbose    bool
	dbPath     string
	reportsDir string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "magellan",
		Short: "LLM-orchestrated deep research and travel planning",
		Long: `A CLI for recursive web research driven by a language model.

Research fans out from a root query: each topic is searched, sources are
distilled into findings, and the model proposes narrower follow-up topics
to recurse into, bounded by depth and breadth. A travel server exposes
flight search and weather forecasts for the trip-planning assistant.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "anthropic", "LLM provider (openai, anthropic, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "magellan.db", "Database path for storage")
	rootCmd.PersistentFlags().StringVar(&reportsDir, "reports-dir", "reports", "Directory for saved reports")

	rootCmd.AddCommand(researchCmd())
	rootCmd.AddCommand(simpleCmd())
	rootCmd.AddCommand(travelServeCmd())
	rootCmd.AddCommand(travelPlanCmd())
	rootCmd.AddCommand(reportsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func baseOptions() cli.Options {
	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.Verbose = verbose
	opts.DBPath = dbPath
	opts.ReportsDir = reportsDir
	return opts
}

func researchCmd() *cobra.Command {
	var depth, breadth, concurrency int
	var save bool

	cmd := &cobra.Command{
		Use:   "research [query]",
		Short: "Run recursive deep research on a topic",
		Long: `Run recursive deep research on a topic.

Each level searches the web, distills sources into findings, and spawns
narrower follow-up topics. Depth bounds the recursion levels, breadth the
follow-ups per level; breadth shrinks by one per level but never below one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := baseOptions()
			opts.Depth = depth
			opts.Breadth = breadth
			opts.Concurrency = concurrency
			opts.Save = save
			return cli.Research(context.Background(), args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 2, "Recursion depth")
	cmd.Flags().IntVarP(&breadth, "breadth", "b", 3, "Follow-up topics per level")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Concurrent research branches (0 = config default)")
	cmd.Flags().BoolVar(&save, "save", false, "Save the report to the reports directory")

	return cmd
}

func simpleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simple [query]",
		Short: "Run a single-pass research lookup",
		Long: `Run a single-pass research lookup: one search, one summary.

When the search yields nothing usable the model answers from its own
knowledge and the result carries a disclaimer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Simple(context.Background(), args[0], baseOptions())
		},
	}
	return cmd
}

func travelServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "travel-serve",
		Short: "Start the travel tools HTTP server",
		Long: `Start the travel tools HTTP server.

Exposes POST /get_flight (SerpApi Google Flights) and POST /get_weather
(Open-Meteo forecast plus a model-written typical-weather summary).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.TravelServe(context.Background(), port, baseOptions())
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from TRAVEL_SERVER_PORT or 8000)")

	return cmd
}

func travelPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "travel-plan",
		Short: "Plan a trip interactively",
		Long: `Plan a trip interactively.

Describe a trip in plain language; the assistant extracts the origin,
destination, and dates, asks for anything missing, then looks up flight
options and the weather for the stay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.TravelPlan(context.Background(), baseOptions())
		},
	}
	return cmd
}

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports [slug]",
		Short: "List saved reports, or print one by slug",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := ""
			if len(args) > 0 {
				slug = args[0]
			}
			return cli.Reports(context.Background(), slug, baseOptions())
		},
	}
	return cmd
}
