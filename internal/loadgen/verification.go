package loadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/studypulse/pkg/logger"
)

// awaitIngestion polls the study analytics until submissionsCount has grown by
// at least the number of accepted ratings, or SettleWait runs out.
func awaitIngestion(ctx context.Context, client *httpClient, cfg *Config, stats *Stats) error {
	log := logger.Get().Named("loadgen")
	want := stats.BaselineCount + stats.Accepted
	start := time.Now()
	deadline := start.Add(cfg.SettleWait)

	ticker := time.NewTicker(cfg.PollEvery)
	defer ticker.Stop()

	for {
		var p studyPayload
		if err := client.getJSON(ctx, studyURL(cfg.BaseURL, cfg.StudyID), &p); err != nil {
			log.Warn(ctx, "analytics poll failed", logger.Error(err))
		} else {
			stats.FinalCount = p.Summary.SubmissionsCount
			if stats.FinalCount >= want {
				stats.IngestionSettled = true
				stats.SettledAfter = time.Since(start)
				log.Info(ctx, "ingestion verified",
					logger.Int("expected", want),
					logger.Int("observed", stats.FinalCount),
				)
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: expected at least %d submissions, observed %d",
				ErrNotIngested, want, stats.FinalCount)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for ingestion: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
