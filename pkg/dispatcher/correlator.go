package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/native-bridge/pkg/events"
)

const correlatorLogPrefix = "dispatcher:correlator"

var (
	// ErrAlreadyCompleted is returned by a second Complete on the same handle.
	ErrAlreadyCompleted = errors.New("completion handle already invoked")
	// ErrDuplicateRequest is returned by Begin when the id is still outstanding.
	ErrDuplicateRequest = errors.New("request id already outstanding")
	// ErrChannelClosed is returned by Begin after Close.
	ErrChannelClosed = errors.New("channel closed")
)

// Sink delivers responses to the remote caller. Send may be called from any goroutine.
type Sink interface {
	Send(resp *Response) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(resp *Response) error

// Send calls f.
func (f SinkFunc) Send(resp *Response) error {
	return f(resp)
}

// Stats counts completion outcomes on one channel.
type Stats struct {
	Delivered  uint64 `json:"delivered"`
	Duplicates uint64 `json:"duplicates"`
	Dropped    uint64 `json:"dropped"`
}

// Correlator tracks the outstanding request ids of one channel and delivers
// exactly one response per id.
type Correlator struct {
	channel     string
	sink        Sink
	diagnostics events.Publisher

	mu      sync.Mutex
	pending map[int64]struct{}
	closed  bool
	stats   Stats
}

// NewCorrelator creates a Correlator for the named channel. A nil publisher discards diagnostics.
func NewCorrelator(channel string, sink Sink, diagnostics events.Publisher) *Correlator {
	if diagnostics == nil {
		diagnostics = &events.NoOpPublisher{}
	}
	return &Correlator{
		channel:     channel,
		sink:        sink,
		diagnostics: diagnostics,
		pending:     make(map[int64]struct{}),
	}
}

// Channel returns the channel name used in logs and diagnostics.
func (c *Correlator) Channel() string {
	return c.channel
}

// Begin marks id as outstanding and returns its completion handle.
func (c *Correlator) Begin(id int64) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrChannelClosed
	}
	if _, ok := c.pending[id]; ok {
		return nil, ErrDuplicateRequest
	}
	c.pending[id] = struct{}{}
	return &Handle{c: c, id: id}, nil
}

// Close abandons every outstanding id. Completions arriving afterwards are dropped.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	abandoned := len(c.pending)
	c.pending = make(map[int64]struct{})
	c.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - channel %s closed with %d pending request(s)", correlatorLogPrefix, c.channel, abandoned))
}

// Pending returns the number of outstanding ids.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stats returns a snapshot of the completion counters.
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Correlator) complete(h *Handle, result []any) error {
	c.mu.Lock()
	if c.closed {
		c.stats.Dropped++
		c.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - dropping completion for id=%d on closed channel %s", correlatorLogPrefix, h.id, c.channel))
		c.publish(h, events.KindDroppedCompletion, "completion arrived after the channel closed")
		return nil
	}
	delete(c.pending, h.id)
	c.mu.Unlock()

	if result == nil {
		result = []any{}
	}
	if err := c.sink.Send(&Response{ID: h.id, Result: result}); err != nil {
		c.mu.Lock()
		c.stats.Dropped++
		c.mu.Unlock()
		return fmt.Errorf("%s - failed to deliver id=%d on %s: %w", correlatorLogPrefix, h.id, c.channel, err)
	}

	c.mu.Lock()
	c.stats.Delivered++
	c.mu.Unlock()
	return nil
}

func (c *Correlator) duplicate(h *Handle) {
	c.mu.Lock()
	c.stats.Duplicates++
	c.mu.Unlock()

	slog.Error(fmt.Sprintf("%s - completion handle for id=%d (%s) invoked more than once on %s", correlatorLogPrefix, h.id, h.ref(), c.channel))
	c.publish(h, events.KindDuplicateCompletion, "completion handle invoked more than once")
}

func (c *Correlator) publish(h *Handle, kind events.DiagnosticKind, message string) {
	event := events.NewDiagnosticEvent(kind, c.channel, message).WithRequest(h.id, h.namespace, h.command)
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.diagnostics.PublishDiagnostic(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s diagnostic: %v", correlatorLogPrefix, kind, err))
	}
}

// Handle is the one-shot completion handle bound to a request id.
type Handle struct {
	c    *Correlator
	id   int64
	done atomic.Bool

	namespace string
	command   string

	// span is set for async requests and ends with the first completion.
	span trace.Span
}

// ID returns the request id the handle answers.
func (h *Handle) ID() int64 {
	return h.id
}

// Complete sends {id, result} to the channel. Only the first call has any effect.
func (h *Handle) Complete(result ...any) error {
	if !h.done.CompareAndSwap(false, true) {
		h.c.duplicate(h)
		return ErrAlreadyCompleted
	}
	defer finishSpan(h.span, result)
	return h.c.complete(h, result)
}

// Completed reports whether Complete has been called.
func (h *Handle) Completed() bool {
	return h.done.Load()
}

// completeIfPending completes the handle unless it already fired, without counting a duplicate.
func (h *Handle) completeIfPending(result ...any) bool {
	if !h.done.CompareAndSwap(false, true) {
		return false
	}
	defer finishSpan(h.span, result)
	if err := h.c.complete(h, result); err != nil {
		slog.Warn(err.Error())
	}
	return true
}

func (h *Handle) ref() string {
	if h.namespace == "" && h.command == "" {
		return "unresolved"
	}
	return h.namespace + "." + h.command
}
