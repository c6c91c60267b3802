package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return New("test", &logging.Logger{Logger: zap.New(core)}), logs
}

func TestChildSpanJoinsTrace(t *testing.T) {
	tracer, _ := newObserved()
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, root.TraceID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
}

func TestInjectExtract(t *testing.T) {
	tracer, _ := newObserved()
	defer tracer.Close()

	assert.Nil(t, Inject(context.Background()))

	span, ctx := tracer.StartSpan(context.Background(), "send")
	carrier := Inject(ctx)
	require.Len(t, carrier, 2)

	remote := Extract(context.Background(), carrier)
	assert.Equal(t, span.TraceID, GetTraceID(remote))
	assert.Equal(t, span.SpanID, GetSpanID(remote))

	assert.Equal(t, context.Background(), Extract(context.Background(), nil))
}

func TestCloseWritesQueuedSpans(t *testing.T) {
	tracer, logs := newObserved()

	ok, _ := tracer.StartSpan(context.Background(), "ok")
	failed, _ := tracer.StartSpan(context.Background(), "failed")
	tracer.End(ok, nil)
	tracer.End(failed, errors.New("boom"))
	tracer.Close()

	assert.Equal(t, 1, logs.FilterMessage("Span completed").Len())
	entries := logs.FilterMessage("Span failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].ContextMap()["operation"])

	// spans after Close are ignored
	late, _ := tracer.StartSpan(context.Background(), "late")
	tracer.End(late, nil)
	tracer.Close()
	assert.Equal(t, 2, logs.Len())
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	span, ctx := tracer.StartSpan(context.Background(), "x")
	assert.Nil(t, span)
	span.SetTag("k", "v")
	tracer.End(span, nil)
	tracer.Close()
	assert.Empty(t, GetTraceID(ctx))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObserved()

	var seen TraceID
	router := gin.New()
	router.GET("/dist/*path", HTTPMiddleware(tracer), func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/dist/app.js", nil)
	req.Header.Set(TraceHeader, "trace_caller")
	req.Header.Set(SpanHeader, "span_caller")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, TraceID("trace_caller"), seen)
	assert.Equal(t, "trace_caller", rec.Header().Get(TraceHeader))
	assert.NotEmpty(t, rec.Header().Get(SpanHeader))

	tracer.Close()
	entries := logs.FilterMessage("Span completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /dist/*path", fields["operation"])
	assert.Equal(t, "span_caller", fields["parent_id"])
	assert.Equal(t, "204", fields["http.status"])
}
