package bridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/api/ws"
	"github.com/GriffinCanCode/apiclient-shell/internal/bindings"
	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/proxy"
	"github.com/GriffinCanCode/apiclient-shell/internal/store"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWorker struct {
	mu    sync.Mutex
	calls []string
	reply any
}

func (f *fakeWorker) Invoke(_ context.Context, fn string, _ ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fn)
	return f.reply, nil
}

func (f *fakeWorker) Ready() bool { return true }

type fixture struct {
	hub      *ws.Hub
	registry *windows.Registry
	server   *httptest.Server
	worker   *fakeWorker
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.DebugLevel)
	logger := &logging.Logger{Logger: zap.New(core)}

	db, err := store.Open(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		registry: windows.NewRegistry(logging.NewNop(), nil),
		worker:   &fakeWorker{},
		logs:     logs,
	}
	bus := broadcast.NewBus(broadcast.Channel, f.registry, logging.NewNop(), nil)
	t.Cleanup(bus.Close)

	router := bindings.NewRouter(logging.NewNop(), nil)
	f.hub = ws.NewHub(ws.DefaultOptions(), router, f.registry, logging.NewNop())

	engine := gin.New()
	engine.GET("/ws", f.hub.HandleConnection)
	f.server = httptest.NewServer(engine)
	t.Cleanup(func() {
		f.hub.Close()
		f.server.Close()
	})

	envs := store.NewEnvironments(db.Bucket(store.EnvironmentsBucket))
	for _, h := range []bindings.Handler{
		bindings.NewConfiguration(db.Bucket(store.LocalBucket), store.NewSession(), envs, bus),
		bindings.NewFiles(logging.NewNop()),
		bindings.NewNavigation(f.server.URL, f.hub, f.registry, logging.NewNop()),
		bindings.NewProxy(f.worker),
		bindings.NewLogger(logger),
	} {
		require.NoError(t, router.Register(h))
	}
	return f
}

func (f *fixture) open(t *testing.T, title string, opts Options) (*Client, windows.Window) {
	t.Helper()
	w, err := f.hub.Open(context.Background(), windows.Options{Title: title, URL: f.server.URL + "/page.html", Hidden: true})
	require.NoError(t, err)
	f.registry.Register(w, title == broadcast.RelayTitle)

	opts.URL = "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?window=" + w.ID().String()
	if opts.Environ == nil {
		opts.Environ = []string{}
	}
	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, w
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLocalRoundTrip(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})
	ctx := testContext(t)

	local := c.Config().Local
	require.NoError(t, local.Set(ctx, "k", "v"))
	v, err := local.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, local.Delete(ctx, "k"))
	v, err = local.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSessionStoreIsSeparate(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})
	ctx := testContext(t)

	require.NoError(t, c.Config().Session.Set(ctx, "k", 1.0))
	v, err := c.Config().Local.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = c.Config().Session.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestInvokeOutsideCapabilitySet(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})

	_, err := c.Invoke(testContext(t), "shell-exec", "rm")
	assert.ErrorIs(t, err, bindings.ErrUnknownChannel)
}

func TestValidationErrorReachesCaller(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})

	_, err := c.Config().Local.Get(testContext(t), "")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "Expected a key when reading local config.", remote.Message)
}

func TestEnvironmentSurface(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})
	ctx := testContext(t)
	envs := c.Config().Environment

	_, err := envs.Read(ctx, "")
	assert.ErrorContains(t, err, "No default environment.")

	e1 := store.Environment{Key: "e1", Name: "Local", Source: "local-store"}
	require.NoError(t, envs.Add(ctx, e1, bindings.AddEnvironmentInit{AsDefault: true}))
	require.NoError(t, envs.Add(ctx, store.Environment{Key: "e2", Source: "network-store"}, bindings.AddEnvironmentInit{}))

	got, err := envs.Read(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, e1, got)

	require.NoError(t, envs.SetDefault(ctx, "e2"))
	set, err := envs.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e2", set.Current)
	assert.Len(t, set.Environments, 2)

	err = envs.Update(ctx, store.Environment{Key: "missing"})
	assert.ErrorContains(t, err, "does not exist")

	require.NoError(t, envs.Remove(ctx, "e2"))
	_, err = envs.Read(ctx, "")
	assert.Error(t, err)
}

func TestTelemetrySurface(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})
	ctx := testContext(t)

	got, err := c.Config().Telemetry.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultTelemetry, got)

	require.NoError(t, c.Config().Telemetry.Set(ctx, store.Telemetry{Level: "crash"}))
	got, err = c.Config().Telemetry.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "crash", got.Level)
}

func TestRelayReceivesBroadcasts(t *testing.T) {
	f := newFixture(t)
	relay, _ := f.open(t, broadcast.RelayTitle, Options{})
	received := make(chan broadcast.Message, 4)
	relay.HandleConfig(broadcast.Channel, func(m broadcast.Message) { received <- m })

	ui, _ := f.open(t, windows.TitleUI, Options{})
	require.NoError(t, ui.Config().Local.Set(testContext(t), "theme", "dark"))

	select {
	case m := <-received:
		assert.Equal(t, "local.set", m.Path())
		assert.Equal(t, "theme", m["key"])
		assert.Equal(t, "dark", m["value"])
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not receive the broadcast")
	}
}

func TestDialogAnsweredByWindow(t *testing.T) {
	f := newFixture(t)
	kinds := make(chan string, 1)
	c, _ := f.open(t, windows.TitleUI, Options{
		OnRequest: func(_ context.Context, kind string, payload any) (any, error) {
			kinds <- kind
			assert.Equal(t, "Save", payload.(map[string]any)["title"])
			return "/tmp/out.json", nil
		},
	})

	v, err := c.Invoke(testContext(t), bindings.ChannelFiles, "dialog", "save", map[string]any{"title": "Save"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.json", v)
	assert.Equal(t, bindings.DialogSave, <-kinds)
}

func TestDialogFailureWithEmptyMessage(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{
		OnRequest: func(context.Context, string, any) (any, error) {
			return nil, errors.New("")
		},
	})

	v, err := c.Invoke(testContext(t), bindings.ChannelFiles, "dialog", "open", map[string]any{})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "request failed", remote.Message)
	assert.Nil(t, v)
}

func TestDialogWithoutHandler(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})

	_, err := c.Invoke(testContext(t), bindings.ChannelFiles, "dialog", "open", map[string]any{})
	assert.ErrorContains(t, err, "Unsupported request: dialog.open")
}

func TestFileRoundTrip(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})
	ctx := testContext(t)
	dir := t.TempDir()

	bin := filepath.Join(dir, "data.bin")
	raw := []byte{0, 1, 2, 254, 255}
	require.NoError(t, c.File().WriteFile(ctx, bin, raw, nil))
	onDisk, err := os.ReadFile(bin)
	require.NoError(t, err)
	assert.Equal(t, raw, onDisk)

	got, err := c.File().ReadFile(ctx, bin, &bindings.FileReadOptions{ReturnType: "buffer"})
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, c.File().WriteFile(ctx, txt, "hello", nil))
	got, err = c.File().ReadFile(ctx, txt, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestProxySurface(t *testing.T) {
	f := newFixture(t)
	f.worker.reply = proxy.Response{Status: 201, StatusText: "Created"}
	c, _ := f.open(t, windows.TitleUI, Options{})

	resp, err := c.Proxy().HTTPSend(testContext(t), proxy.HTTPRequest{URL: "https://example.test"}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)

	_, err = c.Proxy().CoreHTTPProject(testContext(t), proxy.ProjectInit{PID: "p1"}, "", "https://store.test")
	assert.ErrorContains(t, err, "Store token is not set.")

	f.worker.mu.Lock()
	defer f.worker.mu.Unlock()
	assert.Len(t, f.worker.calls, 1)
}

func TestNavigateOpensWindow(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})

	require.NoError(t, c.Navigate().Page(testContext(t), "api-client/Main.html", map[string]string{"a": "1"}))
	uis := f.registry.ByTitle(windows.TitleUI)
	require.Len(t, uis, 2)

	var urls []string
	for _, w := range uis {
		urls = append(urls, w.URL())
	}
	assert.Contains(t, strings.Join(urls, " "), "/dist/src/renderer/global/api-client/Main.html?a=1")
}

func TestNavigateFrame(t *testing.T) {
	f := newFixture(t)
	navigated := make(chan string, 1)
	_, w := f.open(t, windows.TitleUI, Options{OnNavigate: func(u string) { navigated <- u }})

	require.NoError(t, w.Load("http://127.0.0.1/next.html"))
	select {
	case u := <-navigated:
		assert.Equal(t, "http://127.0.0.1/next.html", u)
	case <-time.After(2 * time.Second):
		t.Fatal("navigate frame not delivered")
	}
}

func TestLogIsForwarded(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{})

	c.Log().Warn("disk", "almost", 1)
	require.Eventually(t, func() bool {
		return f.logs.FilterMessage("disk almost 1").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, zap.WarnLevel, f.logs.FilterMessage("disk almost 1").All()[0].Level)
}

func TestWindowCloseEndsClient(t *testing.T) {
	f := newFixture(t)
	c, w := f.open(t, windows.TitleUI, Options{})

	require.NoError(t, w.Close())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client still connected")
	}
	_, err := c.Config().Local.Get(testContext(t), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientCloseEndsWindow(t *testing.T) {
	f := newFixture(t)
	c, w := f.open(t, windows.TitleUI, Options{})

	require.NoError(t, c.Close())
	select {
	case <-w.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("window still open")
	}
}

func TestVersionAndEnv(t *testing.T) {
	f := newFixture(t)
	c, _ := f.open(t, windows.TitleUI, Options{
		Version: "0.9.0",
		Environ: []string{"HOME=/home/u", "npm_config_cache=/x", "APP_HOME=/y", "PATH=/bin", "broken"},
	})

	assert.Equal(t, "0.9.0", c.Version())
	assert.Equal(t, map[string]string{"HOME": "/home/u", "PATH": "/bin"}, c.Env())

	env := c.Env()
	env["HOME"] = "changed"
	assert.Equal(t, "/home/u", c.Env()["HOME"])
}
