package messages

// Command is the outbound operator message. User and Timestamp are filled in by the
// publisher just before sending.
type Command struct {
	MessageKind string `json:"messageKind"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	User        string `json:"user"`
	Timestamp   string `json:"timestamp"`
	AbortTime   *int   `json:"abortTime,omitempty"`
}

const (
	KindEmergencyStop = "emergency_stop"
	KindSuggestion    = "suggestion"

	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityDanger  = "DANGER"
)

// DefaultAbortTime is the abort window, in seconds, of an emergency stop.
const DefaultAbortTime = 15

func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityDanger:
		return true
	}
	return false
}
