package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/id"
	"go.uber.org/zap"
)

// Keys under which the ids travel in a carrier.
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

const bufferSize = 1000

// TraceID identifies every span of one command.
type TraceID string

// SpanID identifies one operation.
type SpanID string

// Span is a single timed operation.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Service   string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Err       error
}

// SetTag adds a tag. Safe on a nil span.
func (s *Span) SetTag(key, value string) {
	if s == nil {
		return
	}
	s.Tags[key] = value
}

// Tracer starts spans and collects the finished ones.
type Tracer struct {
	service string
	logger  *logging.Logger
	spans   chan *Span

	closeOnce sync.Once
	done      chan struct{}
	drained   chan struct{}
}

// New creates a tracer for service and starts its collector.
func New(service string, logger *logging.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger.Named("tracing"),
		spans:   make(chan *Span, bufferSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan begins a span. It joins the trace found in ctx, or starts a new one.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	if t == nil {
		return nil, ctx
	}
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(id.Default().WithPrefix(id.TracePrefix))
	}
	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.Default().WithPrefix(id.SpanPrefix)),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}
	return span, ContextWith(ctx, span.TraceID, span.SpanID)
}

// End finishes span with the outcome err and submits it.
func (t *Tracer) End(span *Span, err error) {
	if t == nil || span == nil {
		return
	}
	span.Duration = time.Since(span.StartTime)
	span.Err = err
	t.Submit(span)
}

// Submit queues a finished span. Spans are dropped when the buffer is full
// or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	if t == nil || span == nil {
		return
	}
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)))
	}
}

// Close stops the collector after writing the queued spans.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() { close(t.done) })
	<-t.drained
}

func (t *Tracer) collect() {
	defer close(t.drained)
	for {
		select {
		case span := <-t.spans:
			t.write(span)
		case <-t.done:
			for {
				select {
				case span := <-t.spans:
					t.write(span)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracer) write(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.String("service", span.Service),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}
	if span.Err != nil {
		t.logger.Debug("Span failed", append(fields, zap.Error(span.Err))...)
		return
	}
	t.logger.Debug("Span completed", fields...)
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// ContextWith returns ctx carrying the trace and parent span ids.
func ContextWith(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// GetTraceID returns the trace id in ctx, or "".
func GetTraceID(ctx context.Context) TraceID {
	v, _ := ctx.Value(traceIDKey).(TraceID)
	return v
}

// GetSpanID returns the current span id in ctx, or "".
func GetSpanID(ctx context.Context) SpanID {
	v, _ := ctx.Value(spanIDKey).(SpanID)
	return v
}

// Inject returns a carrier with the ids in ctx, nil when ctx has no trace.
func Inject(ctx context.Context) map[string]string {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		return nil
	}
	carrier := map[string]string{TraceHeader: string(traceID)}
	if spanID := GetSpanID(ctx); spanID != "" {
		carrier[SpanHeader] = string(spanID)
	}
	return carrier
}

// Extract returns ctx joined to the trace in carrier.
func Extract(ctx context.Context, carrier map[string]string) context.Context {
	return ContextWith(ctx, TraceID(carrier[TraceHeader]), SpanID(carrier[SpanHeader]))
}

// Fields returns the ids in ctx as log fields.
func Fields(ctx context.Context) []zap.Field {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		return nil
	}
	return []zap.Field{zap.String("trace_id", string(traceID)), zap.String("span_id", string(GetSpanID(ctx)))}
}
