// Package windowstest provides an in-memory Window and Launcher for tests.
package windowstest

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/apiclient-shell/internal/shared/id"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
)

// Pushed is one message delivered through Push.
type Pushed struct {
	Channel string
	Payload any
}

// RequestFunc answers Window.Request calls.
type RequestFunc func(kind string, payload any) (any, error)

// Window records everything sent to it.
type Window struct {
	id    id.WindowID
	title string

	mu      sync.Mutex
	url     string
	loads   []string
	pushed  []Pushed
	respond RequestFunc
	loadErr error

	once   sync.Once
	closed chan struct{}
}

// NewWindow creates an open fake window.
func NewWindow(title, url string) *Window {
	return &Window{id: id.NewWindowID(), title: title, url: url, closed: make(chan struct{})}
}

func (w *Window) ID() id.WindowID { return w.id }
func (w *Window) Title() string   { return w.title }

func (w *Window) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

func (w *Window) Load(url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loads = append(w.loads, url)
	if w.loadErr != nil {
		return w.loadErr
	}
	w.url = url
	return nil
}

// FailLoad makes every later Load return err. The URL is left unchanged.
func (w *Window) FailLoad(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadErr = err
}

func (w *Window) Push(channel string, payload any) error {
	select {
	case <-w.closed:
		return windows.ErrWindowClosed
	default:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushed = append(w.pushed, Pushed{Channel: channel, Payload: payload})
	return nil
}

// OnRequest installs the answer for Request calls.
func (w *Window) OnRequest(fn RequestFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.respond = fn
}

func (w *Window) Request(_ context.Context, kind string, payload any) (any, error) {
	w.mu.Lock()
	fn := w.respond
	w.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no request handler")
	}
	return fn(kind, payload)
}

func (w *Window) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}

func (w *Window) Closed() <-chan struct{} { return w.closed }

// IsClosed reports whether Close was called.
func (w *Window) IsClosed() bool {
	select {
	case <-w.closed:
		return true
	default:
		return false
	}
}

// Pushed returns a copy of the pushed messages.
func (w *Window) Pushed() []Pushed {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Pushed(nil), w.pushed...)
}

// Loads returns the URLs passed to Load, failed ones included.
func (w *Window) Loads() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.loads...)
}

// Launcher creates fake windows and remembers them.
type Launcher struct {
	mu      sync.Mutex
	opened  []*Window
	options []windows.Options
	// Opened, when set, receives every new window.
	Opened chan *Window
}

func (l *Launcher) Open(_ context.Context, opts windows.Options) (windows.Window, error) {
	w := NewWindow(opts.Title, opts.URL)
	l.mu.Lock()
	l.opened = append(l.opened, w)
	l.options = append(l.options, opts)
	ch := l.Opened
	l.mu.Unlock()
	if ch != nil {
		ch <- w
	}
	return w, nil
}

// Windows returns every window opened so far.
func (l *Launcher) Windows() []*Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Window(nil), l.opened...)
}

// Options returns the options of every Open call.
func (l *Launcher) Options() []windows.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]windows.Options(nil), l.options...)
}
