package events

import (
	"context"
	"fmt"
	"log/slog"
)

const publisherLogPrefix = "events:publisher"

// Publisher is the diagnostics collaborator.
type Publisher interface {
	PublishDiagnostic(ctx context.Context, event *DiagnosticEvent) error
}

// NoOpPublisher is a Publisher that does nothing.
type NoOpPublisher struct{}

// PublishDiagnostic is a no-op.
func (p *NoOpPublisher) PublishDiagnostic(_ context.Context, _ *DiagnosticEvent) error {
	return nil
}

// CallbackPublisher is a Publisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *DiagnosticEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *DiagnosticEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishDiagnostic calls the callback.
func (p *CallbackPublisher) PublishDiagnostic(ctx context.Context, event *DiagnosticEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher fans an event out to every publisher. A failing sink does not stop the others.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a MultiPublisher, ignoring nil entries.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// PublishDiagnostic publishes to all sinks and returns the first error seen.
func (m *MultiPublisher) PublishDiagnostic(ctx context.Context, event *DiagnosticEvent) error {
	var first error
	for _, p := range m.publishers {
		if err := p.PublishDiagnostic(ctx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - diagnostics sink %T failed: %v", publisherLogPrefix, p, err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Len returns the number of sinks.
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}
