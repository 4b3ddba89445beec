// Command load-ratings floods a studypulse service with rating submissions and
// verifies they reach the study analytics.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/studypulse/internal/loadgen"
	"github.com/okian/studypulse/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumRatings  = 10_000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &loadgen.Config{}
	var (
		verboseLogs bool
		runTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:          "load-ratings",
		Short:        "Submit generated ratings to a studypulse service and verify ingestion",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Example: `  load-ratings --study study-aurora
  load-ratings --url http://localhost:8080 --study study-aurora --ratings 50000 --workers 16`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(); err != nil {
				return err
			}
			if verboseLogs {
				_ = logger.SetLevelString("debug")
			}
			cfg.Verbose = verboseLogs

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			_, err := loadgen.Run(ctx, cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.StringVar(&cfg.StudyID, "study", "study-aurora", "Study receiving the ratings")
	f.IntVar(&cfg.NumRatings, "ratings", defaultNumRatings, "Number of ratings to generate and submit")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", loadgen.DefaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.SettleWait, "settle", loadgen.DefaultSettleWait, "How long to wait for ingestion to catch up")
	f.StringSliceVar(&cfg.ArtifactIDs, "artifacts", nil, "Artifact ids to rate (default: discovered from the study)")
	f.StringVar(&cfg.OutputFile, "output", "", "Write the generated ratings to this JSON file")
	f.BoolVar(&verboseLogs, "verbose", false, "Enable verbose logging")
	f.DurationVar(&runTimeout, "run-timeout", defaultTestTimeout, "Overall time limit")
	return cmd
}
