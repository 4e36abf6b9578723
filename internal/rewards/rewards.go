// Package rewards wraps the external reward collaborator. Payout math lives
// elsewhere; the engine only guarantees the dispatch happens once per
// completed session, asynchronously, with retries.
package rewards

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/engine"
)

// Outcome is what a completed session hands to the reward collaborator.
type Outcome struct {
	Winner  engine.Side           `json:"winner"`
	Reason  string                `json:"reason,omitempty"`
	Metrics engine.SessionMetrics `json:"metrics"`
}

type Dispatcher interface {
	Distribute(ctx context.Context, sessionID string, outcome Outcome) error
}

// Nop is the stand-in dispatcher for local runs.
type Nop struct{}

func (Nop) Distribute(context.Context, string, Outcome) error { return nil }

// Retrying dispatches fire-and-forget with exponential backoff. Failures are
// logged and retried; they never roll back the completed session.
type Retrying struct {
	inner    Dispatcher
	logger   *zap.Logger
	maxTries uint
	timeout  time.Duration
}

func NewRetrying(inner Dispatcher, logger *zap.Logger) *Retrying {
	return &Retrying{
		inner:    inner,
		logger:   logger.Named("rewards"),
		maxTries: 5,
		timeout:  time.Minute,
	}
}

// Dispatch returns immediately; delivery happens on its own goroutine so the
// session actor never blocks on the reward collaborator.
func (r *Retrying) Dispatch(sessionID string, outcome Outcome) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		op := func() (struct{}, error) {
			return struct{}{}, r.inner.Distribute(ctx, sessionID, outcome)
		}
		_, err := backoff.Retry(ctx, op,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(r.maxTries),
		)
		if err != nil {
			r.logger.Error("reward dispatch failed",
				zap.String("session_id", sessionID),
				zap.String("winner", string(outcome.Winner)),
				zap.Error(err))
			return
		}
		r.logger.Info("rewards dispatched",
			zap.String("session_id", sessionID),
			zap.String("winner", string(outcome.Winner)))
	}()
}
