package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/protocol"
	"github.com/GriffinCanCode/apiclient-shell/internal/proxy"
	"github.com/GriffinCanCode/apiclient-shell/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"settings-file", "dev", "debug-level", "port", "app-data-dir", "proxy", "proxy-all"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, version, cmd.Version)

	sub, _, err := cmd.Find([]string{"worker"})
	require.NoError(t, err)
	assert.Equal(t, "worker", sub.Name())
	assert.True(t, sub.Hidden)
}

func TestWorkerServesOverPipe(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("hello " + r.Method))
	}))
	t.Cleanup(upstream.Close)

	controller, workerConn := protocol.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWorker(ctx, config.Default(), workerConn) }()

	s := worker.NewSupervisor(worker.Options{}, logging.NewNop(), nil)
	attachCtx, attachCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer attachCancel()
	require.NoError(t, s.Attach(attachCtx, controller))
	assert.True(t, s.Ready())

	v, err := s.Invoke(attachCtx, string(worker.MethodHTTPSend),
		proxy.HTTPRequest{URL: upstream.URL, Method: "POST"}, proxy.RequestConfig{})
	require.NoError(t, err)
	resp, ok := v.(map[string]any)
	require.True(t, ok, "unexpected result %T", v)
	assert.Equal(t, float64(http.StatusAccepted), resp["status"])
	assert.Equal(t, "hello POST", resp["payload"])

	_, err = s.Invoke(attachCtx, "handleUnknown")
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	_ = s.Close()
}
