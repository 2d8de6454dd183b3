package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// TokenGracePeriod is how long an expired API token is kept before it is cleared.
const TokenGracePeriod = 24 * time.Hour

// TokenSweeper clears API tokens that expired before cutoff.
type TokenSweeper interface {
	SweepExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepExpiredTokensTask clears API tokens expired for longer than TokenGracePeriod.
type SweepExpiredTokensTask struct{}

func (t SweepExpiredTokensTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sweep_expired_tokens",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
		},
	}
}

// SweepExpiredTokensProcessor creates a processor function for SweepExpiredTokensTask.
func SweepExpiredTokensProcessor(sweeper TokenSweeper, recorder SystemRecorder) backlite.QueueProcessor[SweepExpiredTokensTask] {
	return func(ctx context.Context, _ SweepExpiredTokensTask) error {
		cleared, err := sweeper.SweepExpiredTokens(ctx, time.Now().UTC().Add(-TokenGracePeriod))
		if recorder != nil {
			recorder.LogSystem("sweep_expired_tokens", cleared, err)
		}
		if err != nil {
			return fmt.Errorf("sweep expired tokens: %w", err)
		}
		log.Printf("[TASK] Cleared %d expired API tokens", cleared)
		return nil
	}
}

func NewSweepExpiredTokensQueue(sweeper TokenSweeper, recorder SystemRecorder) backlite.Queue {
	return backlite.NewQueue(SweepExpiredTokensProcessor(sweeper, recorder))
}
