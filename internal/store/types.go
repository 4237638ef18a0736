package store

import "time"

// Message is one captured WhatsApp message. ID is a content hash, so replays
// of the same DOM row across scan cycles collapse into a single record.
type Message struct {
	ID           string  `json:"id"`
	ChatID       string  `json:"chat_id"`
	Sender       string  `json:"sender"`
	Body         string  `json:"body"`
	MessageType  string  `json:"message_type"`
	Processed    bool    `json:"processed"`
	WorkRelated  *bool   `json:"work_related,omitempty"`
	TaskPriority *string `json:"task_priority,omitempty"`
	Timestamp    int64   `json:"timestamp"`
	CreatedAt    int64   `json:"created_at"`
}

// Gap records a window during which message capture may have missed traffic.
type Gap struct {
	ID               string     `json:"id"`
	GapStart         time.Time  `json:"gap_start"`
	GapEnd           time.Time  `json:"gap_end"`
	RecoveryAttempts int        `json:"recovery_attempts"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	Recovered        bool       `json:"recovered"`
}
