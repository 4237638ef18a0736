package bus

import "time"

// Event kinds published by the monitor. Subscribers filter by prefix,
// e.g. "monitor." receives all of them.
const (
	KindStatusChanged = "monitor.status_changed"
	KindMessageStored = "monitor.message_stored"
	KindStallDetected = "monitor.stall_detected"
	KindGapAttempted  = "monitor.gap_attempted"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
