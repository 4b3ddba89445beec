package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/studypulse/pkg/logger"
)

// randomIndex returns a uniform index in [0, n) using crypto/rand.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generateRatings creates n ratings spread over participants and artifacts.
func generateRatings(ctx context.Context, n int, participants, artifacts []string, now time.Time, stats *Stats) ([]Rating, error) {
	if len(participants) == 0 || len(artifacts) == 0 {
		return nil, ErrNoTargets
	}
	logger.Get().Info(ctx, "generating ratings",
		logger.Int("count", n),
		logger.Int("participants", len(participants)),
		logger.Int("artifacts", len(artifacts)),
	)

	ratings := make([]Rating, n)
	for i := range ratings {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		ratings[i] = Rating{
			EventID:       uuid.NewString(),
			ParticipantID: participants[randomIndex(len(participants))],
			ArtifactID:    artifacts[randomIndex(len(artifacts))],
			Rating:        generateScore(),
			SubmittedAt:   now.UTC().Format(time.RFC3339Nano),
		}
	}

	stats.Generated = len(ratings)
	return ratings, nil
}

// generateScore averages two draws on the rating scale, rounding half up.
func generateScore() float64 {
	span := ratingScaleMax - ratingScaleMin + 1
	a := ratingScaleMin + randomIndex(span)
	b := ratingScaleMin + randomIndex(span)
	return float64((a + b + 1) / 2)
}
