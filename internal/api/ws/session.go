package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/bindings"
	"github.com/GriffinCanCode/apiclient-shell/internal/correlation"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/id"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errQueueFull = errors.New("window send queue is full")

// RemoteError is a failure reported by the page.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Session is one window. It outlives individual sockets: a page that reloads
// reconnects to the same session.
type Session struct {
	id       id.WindowID
	title    string
	hub      *Hub
	requests *correlation.Queue
	out      chan Frame

	mu    sync.Mutex
	url   string
	conn  *websocket.Conn // Protected by mu
	gen   int             // Protected by mu
	carry []Frame         // Protected by mu, frames a dropped socket did not deliver

	once   sync.Once
	closed chan struct{}
}

func newSession(wid id.WindowID, title, url string, hub *Hub) *Session {
	return &Session{
		id:       wid,
		title:    title,
		hub:      hub,
		requests: correlation.New(),
		out:      make(chan Frame, hub.opts.SendQueue),
		url:      url,
		closed:   make(chan struct{}),
	}
}

func (s *Session) ID() id.WindowID { return s.id }
func (s *Session) Title() string   { return s.title }

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Connected reports whether a socket is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// waiting reports whether no page ever attached to the session.
func (s *Session) waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == 0 && !s.isClosed()
}

// Load tells the page to navigate.
func (s *Session) Load(url string) error {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return s.send(Frame{Type: FrameNavigate, URL: url})
}

// Push sends a one-way message on channel.
func (s *Session) Push(channel string, payload any) error {
	return s.send(Frame{Type: FramePush, Channel: channel, Payload: payload})
}

// Request asks the page to perform kind and waits for its response.
func (s *Session) Request(ctx context.Context, kind string, payload any) (any, error) {
	call := s.requests.Add(kind, []any{payload})
	if err := s.send(Frame{Type: FrameRequest, ID: call.ID, Kind: kind, Payload: payload}); err != nil {
		s.requests.Forget(call.ID)
		return nil, err
	}

	select {
	case res := <-call.Done():
		return res.Value, res.Err
	case <-ctx.Done():
		s.requests.Forget(call.ID)
		return nil, ctx.Err()
	}
}

// Close asks the page to close and ends the session.
func (s *Session) Close() error {
	_ = s.send(Frame{Type: FrameClose})
	s.shutdown()
	return nil
}

func (s *Session) Closed() <-chan struct{} { return s.closed }

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) send(f Frame) error {
	if s.isClosed() {
		return windows.ErrWindowClosed
	}
	select {
	case s.out <- f:
		return nil
	default:
		return errQueueFull
	}
}

func (s *Session) shutdown() {
	s.once.Do(func() {
		close(s.closed)
		if n := s.requests.RejectAll(windows.ErrWindowClosed); n > 0 {
			s.hub.logger.Debug("Rejected pending window requests",
				zap.String("window", s.id.String()),
				zap.Int("count", n))
		}
	})
}

// serve runs one socket until it drops. It blocks in the caller's goroutine.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn, cid id.ConnID) {
	s.mu.Lock()
	if old := s.conn; old != nil {
		_ = old.Close()
	}
	s.conn = conn
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	logger := s.hub.logger.With(zap.String("window", s.id.String()), zap.String("conn", cid.String()))
	logger.Debug("Window connected", zap.String("title", s.title))

	done := make(chan struct{})
	go s.writeLoop(conn, done)
	s.readLoop(ctx, conn)
	close(done)

	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.conn = nil
	}
	s.mu.Unlock()

	if !current || s.isClosed() {
		return
	}
	logger.Debug("Window disconnected, waiting for reconnect", zap.Duration("grace", s.hub.opts.ReconnectGrace))
	time.AfterFunc(s.hub.opts.ReconnectGrace, func() {
		s.mu.Lock()
		reattached := s.gen != gen
		s.mu.Unlock()
		if !reattached {
			logger.Debug("Window closed")
			s.shutdown()
		}
	})
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	opts := s.hub.opts
	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Debug("WebSocket read error", zap.String("window", s.id.String()), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		var f Frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			s.hub.logger.Warn("Invalid frame from window", zap.String("window", s.id.String()), zap.Error(err))
			continue
		}
		s.handle(ctx, f)
	}
}

func (s *Session) handle(ctx context.Context, f Frame) {
	switch f.Type {
	case FrameInvoke:
		go s.invoke(ctx, f)
	case FrameResponse:
		if f.Failed || f.Message != "" {
			msg := f.Message
			if msg == "" {
				msg = "request failed"
			}
			s.requests.Reject(f.ID, &RemoteError{Message: msg})
		} else {
			s.requests.Resolve(f.ID, f.Result)
		}
	case FramePing:
		_ = s.send(Frame{Type: FramePong})
	case FrameClose:
		s.shutdown()
	default:
		_ = s.send(Frame{Type: FrameError, ID: f.ID, Message: "unknown frame type: " + f.Type})
	}
}

func (s *Session) invoke(ctx context.Context, f Frame) {
	result, err := s.hub.router.Dispatch(ctx, &bindings.Call{Channel: f.Channel, Args: f.Args, Window: s})
	reply := Frame{Type: FrameResult, ID: f.ID, Result: result}
	if err != nil {
		reply = Frame{Type: FrameError, ID: f.ID, Message: err.Error()}
	}
	if err := s.send(reply); err != nil {
		s.hub.logger.Debug("Unable to deliver invoke result",
			zap.String("window", s.id.String()),
			zap.Uint64("id", f.ID),
			zap.Error(err))
	}
}

func (s *Session) writeLoop(conn *websocket.Conn, done <-chan struct{}) {
	opts := s.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for _, f := range s.takeCarry() {
		if err := s.write(conn, f); err != nil {
			s.carryOver(f)
			return
		}
	}

	for {
		select {
		case f := <-s.out:
			select {
			case <-done:
				s.carryOver(f)
				return
			default:
			}
			if err := s.write(conn, f); err != nil {
				s.carryOver(f)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			if err := s.flush(conn); err != nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "window closed"))
			return
		case <-done:
			return
		}
	}
}

func (s *Session) carryOver(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carry = append(s.carry, f)
}

func (s *Session) takeCarry() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.carry
	s.carry = nil
	return out
}

// flush writes whatever is still queued.
func (s *Session) flush(conn *websocket.Conn) error {
	for {
		select {
		case f := <-s.out:
			if err := s.write(conn, f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Session) write(conn *websocket.Conn, f Frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		s.hub.logger.Error("Unable to encode frame", zap.String("type", f.Type), zap.Error(err))
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
