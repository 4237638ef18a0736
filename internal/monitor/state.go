package monitor

import "time"

// Health tracks the liveness of the background monitoring loops.
type Health struct {
	LastHeartbeat       time.Time  `json:"last_heartbeat"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastRecoveryAttempt *time.Time `json:"last_recovery_attempt,omitempty"`
	GapCount            int        `json:"gap_count"`
	MonitoringActive    bool       `json:"monitoring_active"`
}

// State is a point-in-time snapshot of the session. One instance lives for
// the whole process; it is reset to Disconnected on disconnect, never
// replaced.
type State struct {
	Status               Status     `json:"status"`
	QRCode               string     `json:"qr_code,omitempty"`
	LastError            string     `json:"last_error,omitempty"`
	ConnectedSince       *time.Time `json:"connected_since,omitempty"`
	LastMessageTimestamp int64      `json:"last_message_timestamp"`
	MessageCount         int        `json:"message_count"`
	ActiveChats          []string   `json:"active_chats"`
	Health               Health     `json:"health"`
}

func (s State) clone() State {
	out := s
	out.ActiveChats = append([]string(nil), s.ActiveChats...)
	if s.ConnectedSince != nil {
		t := *s.ConnectedSince
		out.ConnectedSince = &t
	}
	if s.Health.LastRecoveryAttempt != nil {
		t := *s.Health.LastRecoveryAttempt
		out.Health.LastRecoveryAttempt = &t
	}
	return out
}
