package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const asyncPublisherLogPrefix = "events:async_publisher"

const (
	// DefaultQueueSize is the number of events an AsyncPublisher buffers.
	DefaultQueueSize = 256
	// DefaultPublishTimeout bounds each delivery to the wrapped publisher.
	DefaultPublishTimeout = 5 * time.Second
)

var (
	// ErrQueueFull is returned when the buffer has no room for the event.
	ErrQueueFull = errors.New("diagnostics queue full")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("diagnostics publisher closed")
)

// AsyncPublisherOpts configures AsyncPublisher. Zero values use defaults.
type AsyncPublisherOpts struct {
	QueueSize int
	Timeout   time.Duration
}

// AsyncPublisher queues events and delivers them to another Publisher on one
// background goroutine. PublishDiagnostic never blocks.
type AsyncPublisher struct {
	next    Publisher
	timeout time.Duration
	queue   chan *DiagnosticEvent
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewAsyncPublisher starts the delivery goroutine. Pass nil for opts to use defaults.
func NewAsyncPublisher(next Publisher, opts *AsyncPublisherOpts) *AsyncPublisher {
	size, timeout := DefaultQueueSize, DefaultPublishTimeout
	if opts != nil {
		if opts.QueueSize > 0 {
			size = opts.QueueSize
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}
	p := &AsyncPublisher{
		next:    next,
		timeout: timeout,
		queue:   make(chan *DiagnosticEvent, size),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// PublishDiagnostic enqueues the event. The caller's context is not carried over.
func (p *AsyncPublisher) PublishDiagnostic(_ context.Context, event *DiagnosticEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- event:
		return nil
	default:
		p.dropped.Add(1)
		return fmt.Errorf("%s - dropping %s diagnostic: %w", asyncPublisherLogPrefix, event.Kind, ErrQueueFull)
	}
}

// Dropped returns the number of events refused because the queue was full.
func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - %d diagnostic(s) undelivered: %w", asyncPublisherLogPrefix, len(p.queue), ctx.Err())
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.PublishDiagnostic(ctx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to deliver %s diagnostic: %v", asyncPublisherLogPrefix, event.Kind, err))
		}
		cancel()
	}
}
