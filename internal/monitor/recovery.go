package monitor

import (
	"context"

	"go.uber.org/zap"
)

// Outcome is the result of a recovery attempt.
type Outcome string

const (
	OutcomeDeferred  Outcome = "deferred"
	OutcomeRecovered Outcome = "recovered"
	OutcomeFailed    Outcome = "failed"
)

// RecoveryStrategy is invoked by the health supervisor when a stall is
// detected. The supervisor only flags the condition and delegates here, so
// page-refresh or relaunch behavior can be added without touching its
// scheduling.
type RecoveryStrategy interface {
	AttemptRecovery(ctx context.Context, s State) Outcome
}

// NoopRecovery flags the stall and defers actual recovery to an operator
// issuing check-login or a reconnect.
type NoopRecovery struct {
	Logger *zap.Logger
}

func (n NoopRecovery) AttemptRecovery(_ context.Context, s State) Outcome {
	if n.Logger != nil {
		n.Logger.Warn("connection stalled, deferring recovery to operator",
			zap.String("status", string(s.Status)),
			zap.Time("last_heartbeat", s.Health.LastHeartbeat))
	}
	return OutcomeDeferred
}
