package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/native-bridge/pkg/events"
	"github.com/morezero/native-bridge/pkg/registry"
)

const (
	logPrefix  = "dispatcher:dispatch"
	tracerName = "github.com/morezero/native-bridge/pkg/dispatcher"
	spanName   = "bridge.dispatch"

	// publishTimeout bounds one diagnostics publish.
	publishTimeout = 5 * time.Second
)

// Options configures a Dispatcher. Nil fields use defaults.
type Options struct {
	Diagnostics events.Publisher
	Tracer      trace.Tracer
}

// Dispatcher invokes registry capabilities for decoded requests.
type Dispatcher struct {
	registry    *registry.Registry
	diagnostics events.Publisher
	tracer      trace.Tracer
}

// NewDispatcher creates a new Dispatcher. Pass nil for opts to use defaults.
func NewDispatcher(reg *registry.Registry, opts *Options) *Dispatcher {
	d := &Dispatcher{registry: reg}
	if opts != nil {
		d.diagnostics = opts.Diagnostics
		d.tracer = opts.Tracer
	}
	if d.diagnostics == nil {
		d.diagnostics = &events.NoOpPublisher{}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d
}

// HandleFrame decodes one inbound frame and dispatches it on c.
// A frame without a recoverable id is reported to diagnostics only.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte, c *Correlator) {
	req, err := DecodeRequest(frame)
	if err == nil {
		if err := d.Dispatch(ctx, req, c); err != nil {
			slog.Warn(err.Error())
		}
		return
	}

	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		decErr = &DecodeError{Message: err.Error()}
	}

	event := events.NewDiagnosticEvent(events.KindProtocolError, c.Channel(), decErr.Message)
	id, ok := decErr.ID()
	if !ok {
		slog.Warn(fmt.Sprintf("%s - discarding undecodable frame on %s: %s", logPrefix, c.Channel(), decErr.Message))
		d.report(ctx, event)
		return
	}

	slog.Warn(fmt.Sprintf("%s - invalid envelope id=%d on %s: %s", logPrefix, id, c.Channel(), decErr.Message))
	h, err := c.Begin(id)
	if err != nil {
		d.report(ctx, event.WithRequest(id, "", ""))
		d.rejected(ctx, c, id, "", "", err)
		return
	}
	if err := h.Complete(CodeProtocolError, decErr.Message); err != nil {
		slog.Warn(err.Error())
	}
	d.report(ctx, event.WithRequest(id, "", ""))
}

// Dispatch resolves and invokes the capability named by req. It never waits for
// an asynchronous capability. The returned error reports a request that could not
// be accepted or a response that could not be delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, c *Correlator) error {
	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.Int64("bridge.request.id", req.ID),
		attribute.String("bridge.namespace", req.Namespace),
		attribute.String("bridge.command", req.Command),
		attribute.Bool("bridge.async", req.IsAsync),
		attribute.String("bridge.channel", c.Channel()),
	))
	handedOff := false
	defer func() {
		if !handedOff {
			span.End()
		}
	}()

	slog.Debug(fmt.Sprintf("%s - id=%d %s async=%t on %s", logPrefix, req.ID, req.Ref(), req.IsAsync, c.Channel()))

	h, err := c.Begin(req.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.rejected(ctx, c, req.ID, req.Namespace, req.Command, err)
		return fmt.Errorf("%s - id=%d not dispatched: %w", logPrefix, req.ID, err)
	}
	h.namespace, h.command = req.Namespace, req.Command

	entry, err := d.registry.Lookup(req.Namespace, req.Command)
	if err != nil {
		span.SetStatus(codes.Error, registry.CodeLookup)
		slog.Debug(fmt.Sprintf("%s - %v", logPrefix, err))
		return h.Complete(CodeLookupError)
	}

	if entry.IsAsync() != req.IsAsync {
		msg := fmt.Sprintf("%s is registered %s but was called %s", entry.Ref(), entry.Variant, callingConvention(req.IsAsync))
		return d.fail(ctx, span, c, h, msg)
	}

	args := registry.Args(req.Args)
	switch fn := entry.Capability.(type) {
	case registry.SyncFunc:
		value, err := invokeSync(ctx, fn, args)
		if err != nil {
			return d.fail(ctx, span, c, h, err.Error())
		}
		return h.Complete(value)
	case registry.AsyncFunc:
		h.span, handedOff = span, true
		d.invokeAsync(ctx, span, c, h, fn, args)
		return nil
	default:
		return d.fail(ctx, span, c, h, fmt.Sprintf("%s has unsupported capability type %T", entry.Ref(), entry.Capability))
	}
}

func invokeSync(ctx context.Context, fn registry.SyncFunc, args registry.Args) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args)
}

// invokeAsync runs fn on the dispatch goroutine; fn is expected to hand its work off
// and return. A panic before the handle fires completes it with an invocation error.
func (d *Dispatcher) invokeAsync(ctx context.Context, span trace.Span, c *Correlator, h *Handle, fn registry.AsyncFunc, args registry.Args) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		msg := fmt.Sprintf("panic: %v", r)
		span.SetStatus(codes.Error, msg)
		slog.Error(fmt.Sprintf("%s - %s.%s id=%d on %s: %s", logPrefix, h.namespace, h.command, h.id, c.Channel(), msg))
		h.completeIfPending(CodeInvocationError, msg)
		d.report(ctx, events.NewDiagnosticEvent(events.KindInvocationError, c.Channel(), msg).WithRequest(h.id, h.namespace, h.command))
	}()
	fn(context.WithoutCancel(ctx), args, h)
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, c *Correlator, h *Handle, msg string) error {
	span.SetStatus(codes.Error, msg)
	slog.Warn(fmt.Sprintf("%s - %s.%s id=%d on %s failed: %s", logPrefix, h.namespace, h.command, h.id, c.Channel(), msg))
	err := h.Complete(CodeInvocationError, msg)
	d.report(ctx, events.NewDiagnosticEvent(events.KindInvocationError, c.Channel(), msg).WithRequest(h.id, h.namespace, h.command))
	return err
}

func (d *Dispatcher) rejected(ctx context.Context, c *Correlator, id int64, namespace, command string, err error) {
	if !errors.Is(err, ErrDuplicateRequest) {
		slog.Debug(fmt.Sprintf("%s - id=%d ignored on %s: %v", logPrefix, id, c.Channel(), err))
		return
	}
	slog.Error(fmt.Sprintf("%s - id=%d is already outstanding on %s; request dropped", logPrefix, id, c.Channel()))
	d.report(ctx, events.NewDiagnosticEvent(events.KindDuplicateRequest, c.Channel(), err.Error()).WithRequest(id, namespace, command))
}

// report runs after any response has been sent, so a slow sink delays only the next frame.
func (d *Dispatcher) report(ctx context.Context, event *events.DiagnosticEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.diagnostics.PublishDiagnostic(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s diagnostic: %v", logPrefix, event.Kind, err))
	}
}

// finishSpan ends an async dispatch span with the completion's leading error code, if any.
func finishSpan(span trace.Span, result []any) {
	if span == nil {
		return
	}
	if len(result) > 0 {
		if code, ok := result[0].(int); ok {
			span.SetAttributes(attribute.Int("bridge.result.code", code))
			if code != 0 {
				span.SetStatus(codes.Error, fmt.Sprintf("completed with code %d", code))
			}
		}
	}
	span.End()
}

func callingConvention(isAsync bool) string {
	if isAsync {
		return registry.VariantAsync.String()
	}
	return registry.VariantSync.String()
}
