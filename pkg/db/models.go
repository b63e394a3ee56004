package db

import "time"

// Diagnostic represents a row in the bridge_diagnostics table.
type Diagnostic struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Channel    string    `json:"channel"`
	RequestID  *int64    `json:"request_id,omitempty"`
	Namespace  *string   `json:"namespace,omitempty"`
	Command    *string   `json:"command,omitempty"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
	Created    time.Time `json:"created"`
}
