package windows

import (
	"sync"

	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/id"
	"go.uber.org/zap"
)

// Entry is a registered window.
type Entry struct {
	Window     Window
	Background bool
}

// Observer tracks the number of open windows. monitoring.Metrics satisfies it.
type Observer interface {
	SetWindowsOpen(n int)
}

// Registry holds the open windows.
type Registry struct {
	mu         sync.RWMutex
	entries    map[id.WindowID]*Entry // Protected by mu
	order      []id.WindowID          // Protected by mu
	ignoreQuit bool                   // Protected by mu
	quitting   bool                   // Protected by mu

	quit     func()
	logger   *logging.Logger
	observer Observer
}

// NewRegistry creates a registry. quit is called once no foreground window remains.
func NewRegistry(logger *logging.Logger, quit func()) *Registry {
	if quit == nil {
		quit = func() {}
	}
	return &Registry{
		entries: make(map[id.WindowID]*Entry),
		quit:    quit,
		logger:  logger.Named("windows"),
	}
}

// WithObserver adds open-window tracking.
func (r *Registry) WithObserver(o Observer) *Registry {
	r.observer = o
	return r
}

// Register tracks w until it closes. Background windows do not keep the app alive.
func (r *Registry) Register(w Window, background bool) {
	r.mu.Lock()
	if _, ok := r.entries[w.ID()]; ok {
		r.entries[w.ID()].Background = background
		r.mu.Unlock()
		return
	}
	r.entries[w.ID()] = &Entry{Window: w, Background: background}
	r.order = append(r.order, w.ID())
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("Window registered",
		zap.String("id", w.ID().String()),
		zap.String("title", w.Title()),
		zap.Bool("background", background))
	r.observe(n)

	go func() {
		<-w.Closed()
		r.handleClose(w.ID())
	}()
}

func (r *Registry) handleClose(wid id.WindowID) {
	if !r.Unregister(wid) {
		return
	}
	r.QuitIfNeeded()
}

// Unregister forgets a window. It reports false when the window was unknown.
func (r *Registry) Unregister(wid id.WindowID) bool {
	r.mu.Lock()
	if _, ok := r.entries[wid]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, wid)
	for i, o := range r.order {
		if o == wid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("Window unregistered", zap.String("id", wid.String()))
	r.observe(n)
	return true
}

// Get returns a registered window.
func (r *Registry) Get(wid id.WindowID) (Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[wid]
	if !ok {
		return nil, false
	}
	return e.Window, true
}

// List returns copies of the entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, wid := range r.order {
		out = append(out, *r.entries[wid])
	}
	return out
}

// ByTitle returns the windows with the given title in registration order.
func (r *Registry) ByTitle(title string) []Window {
	var out []Window
	for _, e := range r.List() {
		if e.Window.Title() == title {
			out = append(out, e.Window)
		}
	}
	return out
}

// Relays returns the broadcast relay windows.
func (r *Registry) Relays() []broadcast.Relay {
	wins := r.ByTitle(broadcast.RelayTitle)
	out := make([]broadcast.Relay, len(wins))
	for i, w := range wins {
		out[i] = w
	}
	return out
}

// HasActive reports whether any foreground window other than the excluded ones is open.
func (r *Registry) HasActive(exclude ...id.WindowID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
outer:
	for wid, e := range r.entries {
		if e.Background {
			continue
		}
		for _, x := range exclude {
			if x == wid {
				continue outer
			}
		}
		return true
	}
	return false
}

// SetIgnoreQuit suspends (or resumes) automatic quitting, for example while the
// first-run flow swaps windows.
func (r *Registry) SetIgnoreQuit(ignore bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignoreQuit = ignore
}

// QuitIfNeeded calls the quit hook when no foreground window remains.
// The hook runs at most once.
func (r *Registry) QuitIfNeeded() {
	r.mu.Lock()
	if r.ignoreQuit || r.quitting {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if r.HasActive() {
		return
	}

	r.mu.Lock()
	if r.quitting {
		r.mu.Unlock()
		return
	}
	r.quitting = true
	r.mu.Unlock()

	r.logger.Info("No active windows left, quitting")
	r.quit()
}

// CloseAll closes every window.
func (r *Registry) CloseAll() {
	for _, e := range r.List() {
		if err := e.Window.Close(); err != nil {
			r.logger.Debug("Window close failed", zap.String("id", e.Window.ID().String()), zap.Error(err))
		}
	}
}

func (r *Registry) observe(n int) {
	if r.observer != nil {
		r.observer.SetWindowsOpen(n)
	}
}
