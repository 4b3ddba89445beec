package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/studypulse/pkg/logger"
)

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *httpClient {
	return &httpClient{client: &http.Client{Timeout: timeout}}
}

func (c *httpClient) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

func (c *httpClient) postJSON(ctx context.Context, target string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON decodes a 200 response into v.
func (c *httpClient) getJSON(ctx context.Context, target string, v any) error {
	resp, err := c.get(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", target, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func studyURL(baseURL, studyID string) string {
	return baseURL + "/study/" + url.PathEscape(studyID)
}

// submitRatings posts ratings concurrently with a fixed worker pool.
func submitRatings(ctx context.Context, cfg *Config, ratings []Rating, stats *Stats) {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "submitting ratings", logger.Int("count", len(ratings)), logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.Timeout)
	target := studyURL(cfg.BaseURL, cfg.StudyID) + "/ratings"

	var submitted, accepted, duplicate, throttled, failed atomic.Int64

	ratingChan := make(chan Rating, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range ratingChan {
				outcome := submitSingleRating(ctx, client, target, r)
				submitted.Add(1)
				switch outcome {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				case outcomeThrottled:
					throttled.Add(1)
				default:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "rating submission failed", logger.String("eventID", r.EventID))
					}
				}
			}
		}()
	}

	go func() {
		defer close(ratingChan)
		for _, r := range ratings {
			select {
			case <-ctx.Done():
				return
			case ratingChan <- r:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Throttled = int(throttled.Load())
	stats.Failed = int(failed.Load())

	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("throttled", stats.Throttled),
		logger.Int("failed", stats.Failed),
	)
}

// submitSingleRating posts one rating and classifies the response.
func submitSingleRating(ctx context.Context, client *httpClient, target string, r Rating) string {
	resp, err := client.postJSON(ctx, target, r)
	if err != nil {
		return outcomeFailed
	}
	defer func() { _ = resp.Body.Close() }()

	var ack AckResponse
	_ = json.NewDecoder(resp.Body).Decode(&ack)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted
	case http.StatusOK:
		if ack.Duplicate {
			return outcomeDuplicate
		}
		return outcomeFailed
	case http.StatusTooManyRequests:
		return outcomeThrottled
	default:
		return outcomeFailed
	}
}
