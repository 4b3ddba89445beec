package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/studypulse/internal/domain/analytics"
	"github.com/okian/studypulse/internal/fixtures"
)

type reportOptions struct {
	from        string
	to          string
	participant string
	fixture     string
	at          string
	windowDays  int
}

func newReportCmd() *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report <studyId>",
		Short: "Print the analytics payload of a study from a fixture",
		Long: "Builds the same payload GET /study/{studyId} serves, reading the study from a YAML " +
			"fixture (or the embedded demo) instead of a running store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "Window start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Window end (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.participant, "participant", "", "Restrict to one participant id")
	cmd.Flags().StringVar(&opts.fixture, "fixture", "", "YAML study fixture (default: embedded demo)")
	cmd.Flags().StringVar(&opts.at, "at", "", "Evaluate as of this RFC 3339 instant instead of now")
	cmd.Flags().IntVar(&opts.windowDays, "window-days", analytics.DefaultWindowDays, "Default window length when --from is omitted")
	return cmd
}

func runReport(cmd *cobra.Command, studyID string, opts *reportOptions) error {
	now := time.Now().UTC()
	if opts.at != "" {
		t, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		now = t
	}

	studies, err := fixtures.LoadOrDemo(opts.fixture)
	if err != nil {
		return err
	}
	if opts.fixture == "" {
		fixtures.Rebase(studies, now)
	}

	idx := -1
	for i := range studies {
		if studies[i].ID == studyID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("study %s was not found", studyID)
	}

	engine := analytics.NewEngine(
		analytics.WithDefaultWindowDays(opts.windowDays),
		analytics.WithClock(func() time.Time { return now }),
	)
	resp, err := engine.Build(&studies[idx], analytics.Query{
		From:          opts.from,
		To:            opts.to,
		ParticipantID: opts.participant,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
