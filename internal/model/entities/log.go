package entities

import "encoding/json"

// LogRecord is a stored broker message returned by GET /logs.
type LogRecord struct {
	ID        string          `json:"id"`
	LiftID    string          `json:"liftId"`
	QueueName string          `json:"queueName"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Time      string          `json:"time"` // ISO-8601 without zone
}
