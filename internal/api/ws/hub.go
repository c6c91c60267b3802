package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/bindings"
	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/id"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dispatcher runs invoke frames. bindings.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, call *bindings.Call) (any, error)
}

// Opener shows a page to the user, typically by launching a browser.
type Opener func(ctx context.Context, url string) error

// Options configures the hub.
type Options struct {
	// Opener is called for every window that is not hidden. Nil leaves opening
	// to whoever loads the URL.
	Opener         Opener
	ReconnectGrace time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendQueue      int
	// AllowedOrigins restricts the Origin header. Empty allows any origin.
	AllowedOrigins []string
}

// DefaultOptions returns the hub defaults.
func DefaultOptions() Options {
	return Options{
		ReconnectGrace: 3 * time.Second,
		PingPeriod:     30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 32 << 20,
		SendQueue:      256,
	}
}

// Hub owns every window session.
type Hub struct {
	opts     Options
	router   Dispatcher
	registry *windows.Registry
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[id.WindowID]*Session
}

// NewHub creates a hub. registry receives windows that connect without having
// been opened by the controller.
func NewHub(opts Options, router Dispatcher, registry *windows.Registry, logger *logging.Logger) *Hub {
	defaults := DefaultOptions()
	if opts.ReconnectGrace <= 0 {
		opts.ReconnectGrace = defaults.ReconnectGrace
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaults.PingPeriod
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaults.PongWait
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaults.WriteWait
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = defaults.SendQueue
	}

	h := &Hub{
		opts:     opts,
		router:   router,
		registry: registry,
		logger:   logger.Named("ws"),
		sessions: make(map[id.WindowID]*Session),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Open creates a window session for opts and shows it. The returned window is
// usable at once; frames sent before the page connects are queued.
func (h *Hub) Open(ctx context.Context, opts windows.Options) (windows.Window, error) {
	wid := id.NewWindowID()
	target, err := withWindowID(opts.URL, wid)
	if err != nil {
		return nil, fmt.Errorf("window url: %w", err)
	}

	s := h.add(wid, opts.Title, target)
	h.logger.Debug("Window opened",
		zap.String("window", wid.String()),
		zap.String("title", opts.Title),
		zap.String("url", target),
		zap.Bool("hidden", opts.Hidden))

	if !opts.Hidden && h.opts.Opener != nil {
		if err := h.opts.Opener(ctx, target); err != nil {
			s.shutdown()
			return nil, fmt.Errorf("open %s: %w", opts.Title, err)
		}
	}
	return s, nil
}

// Session returns the session for wid.
func (h *Hub) Session(wid id.WindowID) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[wid]
	return s, ok
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleConnection upgrades a window's socket and serves it until it drops.
func (h *Hub) HandleConnection(c *gin.Context) {
	wid := id.WindowID(c.Query("window"))
	s, ok := h.Session(wid)
	if !ok {
		s = h.adopt(c)
		if s == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown window"})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	s.serve(c.Request.Context(), conn, id.NewConnID())
}

// adopt finds a session for a page that was loaded outside the controller,
// such as a relay page embedded by another page. The page names itself with
// ?title=. A hidden window of that title still waiting for its page is
// claimed first so its queued frames are not lost.
func (h *Hub) adopt(c *gin.Context) *Session {
	title := c.Query("title")
	if title == "" {
		return nil
	}
	if s := h.unclaimed(title); s != nil {
		h.logger.Debug("Page claimed waiting window", zap.String("window", s.id.String()), zap.String("title", title))
		return s
	}
	wid := id.WindowID(c.Query("window"))
	if !wid.Valid() {
		wid = id.NewWindowID()
	}
	s := h.add(wid, title, c.Request.Referer())
	h.registry.Register(s, title == broadcast.RelayTitle)
	h.logger.Info("Adopted window", zap.String("window", wid.String()), zap.String("title", title))
	return s
}

func (h *Hub) unclaimed(title string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.title == title && s.waiting() {
			return s
		}
	}
	return nil
}

func (h *Hub) add(wid id.WindowID, title, target string) *Session {
	s := newSession(wid, title, target, h)
	h.mu.Lock()
	h.sessions[wid] = s
	h.mu.Unlock()

	go func() {
		<-s.Closed()
		h.mu.Lock()
		delete(h.sessions, wid)
		h.mu.Unlock()
	}()
	return s
}

// Close ends every session.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		_ = s.Close()
	}
}

func withWindowID(raw string, wid id.WindowID) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("window", wid.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
