package monitor

import "errors"

var (
	// ErrAlreadyConnected is a precondition violation: connect was called
	// while a session is already connected or monitoring.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotConnected is a precondition violation: the operation requires
	// an established browser session.
	ErrNotConnected = errors.New("not connected")
)
