package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/bus"
)

// healthLoop watches the scan heartbeat and flags stalls. It only moves the
// status to Reconnecting and hands off to the recovery strategy; it never
// touches the browser itself.
func (m *Monitor) healthLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Monitor.HealthInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.monitoringActive() {
			return
		}
		m.healthCheck(ctx)
	}
}

func (m *Monitor) healthCheck(ctx context.Context) {
	m.mu.Lock()
	age := m.now().Sub(m.state.Health.LastHeartbeat)
	stalled := m.state.Status == StatusMonitoring && age > m.cfg.Monitor.StallThreshold()
	var snapshot State
	if stalled {
		m.transitionLocked(StatusReconnecting)
		t := m.now()
		m.state.Health.LastRecoveryAttempt = &t
		snapshot = m.state.clone()
	}
	m.mu.Unlock()

	if !stalled {
		return
	}

	m.logger.Warn("heartbeat stalled", zap.Duration("age", age))
	m.publish(bus.KindStallDetected, map[string]any{"heartbeat_age_sec": int(age.Seconds())})

	outcome := m.recovery.AttemptRecovery(ctx, snapshot)
	m.logger.Info("recovery attempt finished", zap.String("outcome", string(outcome)))
}

// gapLoop periodically marks recovery attempts on unresolved message gaps.
// Backfill of the gapped ranges is deliberately out of scope; storage owns
// the retry accounting.
func (m *Monitor) gapLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Monitor.GapInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.monitoringActive() {
			return
		}
		m.gapCheck(ctx)
	}
}

func (m *Monitor) gapCheck(ctx context.Context) {
	gaps, err := m.store.UnrecoveredGaps(ctx)
	if err != nil {
		m.logger.Error("listing gaps failed", zap.Error(err))
		return
	}

	for _, g := range gaps {
		if err := m.store.MarkGapRecoveryAttempted(ctx, g.ID, m.now()); err != nil {
			m.logger.Error("marking gap attempt failed", zap.String("gap_id", g.ID), zap.Error(err))
			continue
		}
		m.publish(bus.KindGapAttempted, g)
	}

	m.mu.Lock()
	m.state.Health.GapCount = len(gaps)
	m.mu.Unlock()
}
