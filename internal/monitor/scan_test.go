package monitor

import (
	"context"
	"errors"
	"testing"
)

func monitoringMonitor(t *testing.T, b *fakeBrowser, st *fakeStore) *Monitor {
	t.Helper()
	m := newTestMonitor(t, b, st)
	m.mu.Lock()
	m.state.Status = StatusMonitoring
	m.state.Health.MonitoringActive = true
	m.browser = b
	m.mu.Unlock()
	return m
}

func TestScanAdvancesWatermarkToMax(t *testing.T) {
	b := &fakeBrowser{
		pageResults: map[string]any{
			collectMessagesScript: []scanCandidate{
				{Text: "first", Timestamp: 1005, Sender: "contact", ChatID: "Alice", CreatedAt: 1005},
				{Text: "second", Timestamp: 1002, Sender: "contact", ChatID: "Alice", CreatedAt: 1002},
			},
		},
	}
	st := newFakeStore()
	m := monitoringMonitor(t, b, st)
	m.mu.Lock()
	m.state.LastMessageTimestamp = 1000
	m.mu.Unlock()

	if stop := m.scanOnce(context.Background()); stop {
		t.Fatal("scanOnce() should not stop the loop")
	}

	state := m.Status()
	if state.LastMessageTimestamp != 1005 {
		t.Errorf("watermark = %d, want max 1005, not last-seen 1002", state.LastMessageTimestamp)
	}
	if state.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", state.MessageCount)
	}
	if st.count() != 2 {
		t.Errorf("stored %d messages, want 2", st.count())
	}
	if len(state.ActiveChats) != 1 || state.ActiveChats[0] != "Alice" {
		t.Errorf("active_chats = %v, want [Alice]", state.ActiveChats)
	}
}

func TestScanZeroMessagesResetsFailures(t *testing.T) {
	b := &fakeBrowser{pageResults: map[string]any{collectMessagesScript: []scanCandidate{}}}
	m := monitoringMonitor(t, b, newFakeStore())
	m.mu.Lock()
	m.state.Health.ConsecutiveFailures = 3
	before := m.state.Health.LastHeartbeat
	m.mu.Unlock()

	if stop := m.scanOnce(context.Background()); stop {
		t.Fatal("empty scan must not stop the loop")
	}

	state := m.Status()
	if state.Health.ConsecutiveFailures != 0 {
		t.Errorf("consecutive_failures = %d, want reset to 0", state.Health.ConsecutiveFailures)
	}
	if !state.Health.LastHeartbeat.After(before) {
		t.Error("heartbeat was not refreshed on an empty scan")
	}
}

func TestScanFailureThresholdTerminates(t *testing.T) {
	b := &fakeBrowser{evalErr: errors.New("script blew up")}
	st := newFakeStore()
	m := monitoringMonitor(t, b, st)

	var stopped bool
	for i := 0; i < 6; i++ {
		stopped = m.scanOnce(context.Background())
	}
	if !stopped {
		t.Fatal("sixth consecutive failure should stop the loop")
	}

	state := m.Status()
	if state.Status != StatusError {
		t.Errorf("status = %s, want %s", state.Status, StatusError)
	}
	if state.LastError != "Connection lost - too many scan failures" {
		t.Errorf("last_error = %q", state.LastError)
	}
	if state.Health.MonitoringActive {
		t.Error("monitoring_active should be false after terminal error")
	}
	if st.count() != 0 {
		t.Errorf("store received %d messages during failures, want 0", st.count())
	}
}

func TestScanFailureDoesNotAdvanceWatermark(t *testing.T) {
	b := &fakeBrowser{evalErr: errors.New("boom")}
	m := monitoringMonitor(t, b, newFakeStore())
	m.mu.Lock()
	m.state.LastMessageTimestamp = 500
	m.mu.Unlock()

	_ = m.scanOnce(context.Background())

	state := m.Status()
	if state.LastMessageTimestamp != 500 {
		t.Errorf("watermark = %d, want unchanged 500", state.LastMessageTimestamp)
	}
	if state.Health.ConsecutiveFailures != 1 {
		t.Errorf("consecutive_failures = %d, want 1", state.Health.ConsecutiveFailures)
	}
}

func TestScanStoreErrorSkipsMessage(t *testing.T) {
	b := &fakeBrowser{
		pageResults: map[string]any{
			collectMessagesScript: []scanCandidate{
				{Text: "msg", Timestamp: 2000, Sender: "contact", ChatID: "c", CreatedAt: 2000},
			},
		},
	}
	st := newFakeStore()
	st.storeErr = errors.New("disk full")
	m := monitoringMonitor(t, b, st)

	if stop := m.scanOnce(context.Background()); stop {
		t.Fatal("a storage error must not stop the loop")
	}

	state := m.Status()
	if state.MessageCount != 0 {
		t.Errorf("message_count = %d, want 0 for a skipped message", state.MessageCount)
	}
	if state.LastMessageTimestamp != 0 {
		t.Errorf("watermark = %d, want 0 for a skipped message", state.LastMessageTimestamp)
	}
	if state.Status != StatusMonitoring {
		t.Errorf("status = %s, want still %s", state.Status, StatusMonitoring)
	}
}

func TestScanDuplicateCandidatesCollapse(t *testing.T) {
	c := scanCandidate{Text: "same", Timestamp: 3000, Sender: "me", ChatID: "c", CreatedAt: 3000}
	b := &fakeBrowser{
		pageResults: map[string]any{collectMessagesScript: []scanCandidate{c, c}},
	}
	st := newFakeStore()
	m := monitoringMonitor(t, b, st)

	_ = m.scanOnce(context.Background())

	if st.count() != 1 {
		t.Errorf("stored %d distinct messages, want dedup to 1", st.count())
	}
	if got := m.Status().MessageCount; got != 1 {
		t.Errorf("message_count = %d, want 1; duplicates must not be counted", got)
	}
}

func TestScanRescanDoesNotRecount(t *testing.T) {
	// The same visible row across two ticks: the watermark must exclude it
	// on the second pass, leaving counts and storage untouched.
	c := scanCandidate{Text: "hello", Timestamp: 1005, Sender: "contact", ChatID: "Alice", CreatedAt: 1005}
	b := &fakeBrowser{
		pageResults: map[string]any{collectMessagesScript: []scanCandidate{c}},
	}
	st := newFakeStore()
	m := monitoringMonitor(t, b, st)
	m.mu.Lock()
	m.state.LastMessageTimestamp = 1000
	m.mu.Unlock()

	_ = m.scanOnce(context.Background())
	_ = m.scanOnce(context.Background())

	state := m.Status()
	if state.MessageCount != 1 {
		t.Errorf("message_count = %d after rescan, want 1", state.MessageCount)
	}
	if st.count() != 1 {
		t.Errorf("stored rows = %d after rescan, want 1", st.count())
	}
	if state.LastMessageTimestamp != 1005 {
		t.Errorf("watermark = %d, want 1005", state.LastMessageTimestamp)
	}
}

func TestScanSuccessWithMessagesResetsFailures(t *testing.T) {
	b := &fakeBrowser{
		pageResults: map[string]any{
			collectMessagesScript: []scanCandidate{
				{Text: "back", Timestamp: 4000, Sender: "contact", ChatID: "c", CreatedAt: 4000},
			},
		},
	}
	m := monitoringMonitor(t, b, newFakeStore())
	m.mu.Lock()
	m.state.Health.ConsecutiveFailures = 4
	m.mu.Unlock()

	_ = m.scanOnce(context.Background())

	if got := m.Status().Health.ConsecutiveFailures; got != 0 {
		t.Errorf("consecutive_failures = %d, want 0 after a successful tick", got)
	}
}
