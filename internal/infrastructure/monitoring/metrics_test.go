package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserversFeedSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordWorkerCall("handleHttpSend", "ok", 10*time.Millisecond)
	m.RecordWorkerCall("handleHttpSend", "timeout", time.Second)
	m.SetWorkerPending(3)
	m.RecordInvocation("config-bindings", "ok", time.Millisecond)
	m.RecordBroadcast("local.set", "relay")
	m.RecordBroadcast("local.set", "local")
	m.SetWindowsOpen(2)

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.WorkerCalls)
	assert.Equal(t, int64(1), s.WorkerFailed)
	assert.Equal(t, int64(3), s.WorkerPending)
	assert.Equal(t, int64(1), s.Invocations)
	assert.Equal(t, int64(2), s.Broadcasts)
	assert.Equal(t, int64(2), s.WindowsOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerCalls.WithLabelValues("handleHttpSend", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WorkerPending))
}

func TestIndependentRegistries(t *testing.T) {
	// each collector owns its registry, so two can coexist
	a, b := NewMetrics(), NewMetrics()
	a.SetWindowsOpen(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.WindowsOpen))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/dist/*path", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, p := range []string{"/dist/a.js", "/dist/b.js", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/dist/*path", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, int64(3), m.Snapshot().HTTPErrors)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "shell_http_requests_total"))
	assert.True(t, strings.Contains(body, "shell_uptime_seconds"))
}
