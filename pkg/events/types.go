// Package events defines bridge diagnostic events and the publishers that carry them to operators.
package events

import "time"

// DiagnosticKind classifies an operator-facing diagnostic.
type DiagnosticKind string

const (
	KindProtocolError       DiagnosticKind = "protocol_error"
	KindInvocationError     DiagnosticKind = "invocation_error"
	KindDuplicateRequest    DiagnosticKind = "duplicate_request"
	KindDuplicateCompletion DiagnosticKind = "duplicate_completion"
	KindDroppedCompletion   DiagnosticKind = "dropped_completion"
)

// DiagnosticEvent describes something that went wrong on a channel and that the
// remote caller either cannot see or should not be the only one to see.
type DiagnosticEvent struct {
	Kind      DiagnosticKind `json:"kind"`
	Channel   string         `json:"channel"`
	RequestID *int64         `json:"requestId,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Command   string         `json:"command,omitempty"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
}

// NewDiagnosticEvent creates an event stamped with the current UTC time.
func NewDiagnosticEvent(kind DiagnosticKind, channel, message string) *DiagnosticEvent {
	return &DiagnosticEvent{
		Kind:      kind,
		Channel:   channel,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// WithRequest attaches the request id and, when known, its target capability.
func (e *DiagnosticEvent) WithRequest(id int64, namespace, command string) *DiagnosticEvent {
	e.RequestID = &id
	e.Namespace = namespace
	e.Command = command
	return e
}
