package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/api/ws"
	"github.com/GriffinCanCode/apiclient-shell/internal/bindings"
	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/correlation"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned once the socket is gone.
var ErrClosed = errors.New("bridge is closed")

// RemoteError is a failure reported by the controller.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Bridge is everything a rendering context may do.
type Bridge interface {
	Invoke(ctx context.Context, channel string, args ...any) (any, error)
	Config() *Config
	File() *File
	Proxy() *Proxy
	Navigate() *Navigate
	Log() *Log
	Version() string
	Env() map[string]string
	HandleConfig(channel string, callback func(broadcast.Message))
}

var _ Bridge = (*Client)(nil)

// RequestHandler answers a request the controller sends to the window.
type RequestHandler func(ctx context.Context, kind string, payload any) (any, error)

// Options configures a bridge connection.
type Options struct {
	// URL is the window socket, ws://host/ws?window=<id>.
	URL    string
	Header http.Header
	// Version is the application version exposed to the page.
	Version string
	// Environ defaults to the process environment.
	Environ    []string
	OnRequest  RequestHandler
	OnNavigate func(url string)
	Logger     *logging.Logger
	WriteWait  time.Duration
}

// Client is a connected bridge.
type Client struct {
	opts   Options
	conn   *websocket.Conn
	calls  *correlation.Queue
	logger *logging.Logger
	env    map[string]string

	config   *Config
	file     *File
	proxy    *Proxy
	navigate *Navigate
	log      *Log

	wmu sync.Mutex

	hmu      sync.RWMutex
	handlers map[string][]func(broadcast.Message)

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Dial connects to the controller.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}

	c := &Client{
		opts:     opts,
		conn:     conn,
		calls:    correlation.New(),
		logger:   opts.Logger.Named("bridge"),
		env:      FilterEnv(opts.Environ),
		handlers: make(map[string][]func(broadcast.Message)),
		done:     make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.config = &Config{
		Local:       &Store{c: c, name: "local"},
		Session:     &Store{c: c, name: "session"},
		Telemetry:   &Telemetry{c: c},
		Environment: &Environment{c: c},
	}
	c.file = &File{c: c}
	c.proxy = &Proxy{c: c}
	c.navigate = &Navigate{c: c}
	c.log = &Log{c: c}

	go c.readLoop()
	return c, nil
}

// Invoke calls a router channel. Channels outside the capability set fail
// without touching the socket.
func (c *Client) Invoke(ctx context.Context, channel string, args ...any) (any, error) {
	if !bindings.Allowed(channel) {
		return nil, fmt.Errorf("%w: %s", bindings.ErrUnknownChannel, channel)
	}
	call := c.calls.Add(channel, args)
	if err := c.send(ws.Frame{Type: ws.FrameInvoke, ID: call.ID, Channel: channel, Args: args}); err != nil {
		c.calls.Forget(call.ID)
		return nil, err
	}

	select {
	case res := <-call.Done():
		return res.Value, res.Err
	case <-ctx.Done():
		c.calls.Forget(call.ID)
		return nil, ctx.Err()
	}
}

// notify sends an invoke without waiting for its result.
func (c *Client) notify(channel string, args ...any) error {
	return c.send(ws.Frame{Type: ws.FrameInvoke, ID: c.calls.NextID(), Channel: channel, Args: args})
}

func (c *Client) Config() *Config     { return c.config }
func (c *Client) File() *File         { return c.file }
func (c *Client) Proxy() *Proxy       { return c.proxy }
func (c *Client) Navigate() *Navigate { return c.navigate }
func (c *Client) Log() *Log           { return c.log }

// Version is the application version.
func (c *Client) Version() string { return c.opts.Version }

// Env returns a copy of the filtered environment.
func (c *Client) Env() map[string]string {
	out := make(map[string]string, len(c.env))
	for k, v := range c.env {
		out[k] = v
	}
	return out
}

// HandleConfig registers callback for broadcasts pushed on channel.
func (c *Client) HandleConfig(channel string, callback func(broadcast.Message)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[channel] = append(c.handlers[channel], callback)
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close tells the controller the window is closing and drops the socket.
func (c *Client) Close() error {
	_ = c.send(ws.Frame{Type: ws.FrameClose})
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
		c.calls.RejectAll(ErrClosed)
		_ = c.conn.Close()
	})
}

func (c *Client) send(f ws.Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	data, err := sonic.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Bridge read error", zap.Error(err))
			}
			return
		}
		var f ws.Frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			c.logger.Warn("Invalid frame from controller", zap.Error(err))
			continue
		}
		if !c.handle(f) {
			return
		}
	}
}

// handle processes one frame and reports whether to keep reading.
func (c *Client) handle(f ws.Frame) bool {
	switch f.Type {
	case ws.FrameResult:
		c.calls.Resolve(f.ID, f.Result)
	case ws.FrameError:
		if !c.calls.Reject(f.ID, &RemoteError{Message: f.Message}) {
			c.logger.Debug("Controller error", zap.Uint64("id", f.ID), zap.String("message", f.Message))
		}
	case ws.FramePush:
		c.dispatch(f.Channel, f.Payload)
	case ws.FrameRequest:
		go c.answer(f)
	case ws.FrameNavigate:
		if c.opts.OnNavigate != nil {
			c.opts.OnNavigate(f.URL)
		}
	case ws.FramePing:
		_ = c.send(ws.Frame{Type: ws.FramePong})
	case ws.FramePong:
	case ws.FrameClose:
		return false
	default:
		c.logger.Debug("Unknown frame type", zap.String("type", f.Type))
	}
	return true
}

func (c *Client) dispatch(channel string, payload any) {
	fields, ok := payload.(map[string]any)
	if !ok {
		c.logger.Warn("Broadcast without fields", zap.String("channel", channel))
		return
	}
	msg := broadcast.Message(fields)

	c.hmu.RLock()
	callbacks := append([]func(broadcast.Message){}, c.handlers[channel]...)
	c.hmu.RUnlock()
	for _, cb := range callbacks {
		cb(msg)
	}
}

func (c *Client) answer(f ws.Frame) {
	reply := ws.Frame{Type: ws.FrameResponse, ID: f.ID}
	if c.opts.OnRequest == nil {
		reply.Failed, reply.Message = true, "Unsupported request: "+f.Kind
	} else if result, err := c.opts.OnRequest(c.ctx, f.Kind, f.Payload); err != nil {
		reply.Failed, reply.Message = true, err.Error()
	} else {
		reply.Result = result
	}
	if err := c.send(reply); err != nil {
		c.logger.Debug("Unable to answer request", zap.Uint64("id", f.ID), zap.Error(err))
	}
}

// FilterEnv drops package-manager and application internal variables.
func FilterEnv(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if strings.HasPrefix(key, "npm_") || strings.HasPrefix(key, "APP_") {
			continue
		}
		out[key] = value
	}
	return out
}
