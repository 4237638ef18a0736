package monitor

// Status is the connection lifecycle state of a WhatsApp session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusQRCodeReady  Status = "qr_code_ready"
	StatusConnected    Status = "connected"
	StatusMonitoring   Status = "monitoring"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// validTransitions is the full transition relation. Every state can reach
// Disconnected via disconnect; QRCodeReady loops through Connecting when the
// code expires and detection re-runs. Monitoring and Reconnecting can fall
// back to QRCodeReady: WhatsApp can log the session out server-side, and
// check-login must be able to surface the fresh QR code after a stall.
var validTransitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusQRCodeReady, StatusConnected, StatusDisconnected, StatusError},
	StatusQRCodeReady:  {StatusConnecting, StatusConnected, StatusDisconnected, StatusError},
	StatusConnected:    {StatusMonitoring, StatusDisconnected, StatusError},
	StatusMonitoring:   {StatusReconnecting, StatusQRCodeReady, StatusDisconnected, StatusError},
	StatusReconnecting: {StatusMonitoring, StatusConnecting, StatusQRCodeReady, StatusDisconnected, StatusError},
	StatusError:        {StatusConnecting, StatusDisconnected},
}

// CanTransition reports whether moving from one status to another is legal.
// Self-transitions are always allowed as no-ops.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
