package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/studypulse/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a complete load run and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("study", cfg.StudyID),
		logger.Int("ratings", cfg.NumRatings),
		logger.Int("workers", cfg.Workers),
	)

	client := newHTTPClient(cfg.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client, cfg.BaseURL); err != nil {
		return stats, err
	}

	// Step 2: Baseline analytics and targets
	var baseline studyPayload
	if err := client.getJSON(ctx, studyURL(cfg.BaseURL, cfg.StudyID), &baseline); err != nil {
		return stats, fmt.Errorf("baseline analytics: %w", err)
	}
	stats.BaselineCount = baseline.Summary.SubmissionsCount
	participants, artifacts := targets(&baseline, cfg.ArtifactIDs)

	// Step 3: Generate ratings
	ratings, err := generateRatings(ctx, cfg.NumRatings, participants, artifacts, time.Now(), stats)
	if err != nil {
		return stats, err
	}

	// Step 4: Submit ratings concurrently
	submitRatings(ctx, cfg, ratings, stats)

	// Step 5: Wait until the analytics reflect every accepted rating
	if err := awaitIngestion(ctx, client, cfg, stats); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveRatings(cfg.OutputFile, ratings); err != nil {
			log.Warn(ctx, "failed to save ratings to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func applyDefaults(cfg *Config) error {
	switch {
	case cfg.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case cfg.StudyID == "":
		return fmt.Errorf("%w: study id is required", ErrInvalidConfig)
	case cfg.NumRatings <= 0:
		return fmt.Errorf("%w: number of ratings must be positive", ErrInvalidConfig)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = DefaultSettleWait
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = DefaultPollEvery
	}
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *httpClient, baseURL string) error {
	resp, err := client.get(ctx, baseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The service answers with Prometheus metrics; any 200 is healthy.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// targets picks the participants and artifacts to rate. Artifacts come from
// the study's artifact averages unless given explicitly.
func targets(p *studyPayload, artifactIDs []string) ([]string, []string) {
	participants := make([]string, 0, len(p.ParticipantOptions))
	for _, o := range p.ParticipantOptions {
		participants = append(participants, o.ID)
	}
	if len(artifactIDs) > 0 {
		return participants, artifactIDs
	}
	artifacts := make([]string, 0, len(p.Charts.ArtifactAverages))
	for _, a := range p.Charts.ArtifactAverages {
		artifacts = append(artifacts, a.ArtifactID)
	}
	return participants, artifacts
}

// saveRatings writes the generated ratings as a JSON array.
func saveRatings(filename string, ratings []Rating) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(ratings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ratings: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, ratingsPerSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		ratingsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("throttled", stats.Throttled),
		logger.Int("failed", stats.Failed),
		logger.Int("baselineCount", stats.BaselineCount),
		logger.Int("finalCount", stats.FinalCount),
		logger.Duration("settledAfter", stats.SettledAfter),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("ratingsPerSecond", ratingsPerSecond),
	)
}
