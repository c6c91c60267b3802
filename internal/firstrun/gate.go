package firstrun

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/store"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Pages opened by the gate, relative to the renderer root.
const (
	PageConfig       = "api-client/Config.html"
	PageAuthenticate = "api-client/Authenticate.html"
	PageTelemetry    = "api-client/TelemetryConsent.html"
	PageMain         = "api-client/Main.html"
)

const lockContents = "Do not remove this file. It prohibits showing the telemetry dialog."

// ErrInvalidState aborts startup when the screens did not leave a usable environment.
var ErrInvalidState = errors.New("Invalid state. The application should have environment set.")

// Subscriber delivers broadcast messages. broadcast.Bus satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan broadcast.Message
}

// Options configures the gate.
type Options struct {
	// Base is the origin renderer pages are served from.
	Base string
	// SkipTelemetry disables the consent screen.
	SkipTelemetry bool
	// LockFile marks that consent was already given.
	LockFile string
	// MainQuery is appended to the main page URL.
	MainQuery map[string]string
}

// Gate runs the first-run screens.
type Gate struct {
	opts     Options
	launcher windows.Launcher
	registry *windows.Registry
	bus      Subscriber
	envs     *store.Environments
	logger   *logging.Logger
}

// NewGate creates a gate.
func NewGate(opts Options, launcher windows.Launcher, registry *windows.Registry, bus Subscriber, envs *store.Environments, logger *logging.Logger) *Gate {
	return &Gate{
		opts:     opts,
		launcher: launcher,
		registry: registry,
		bus:      bus,
		envs:     envs,
		logger:   logger.Named("firstrun"),
	}
}

// State computes the current state from the store.
func (g *Gate) State() (State, error) {
	set, err := g.envs.List()
	if err != nil {
		return NeedsInit, err
	}
	return Compute(set), nil
}

// Run walks through consent, configuration and authentication, then opens the
// main window. Closing the last screen does not quit the application.
func (g *Gate) Run(ctx context.Context) (windows.Window, error) {
	g.registry.SetIgnoreQuit(true)
	// the main window is registered before quitting is re-enabled
	defer g.registry.SetIgnoreQuit(false)

	if err := g.runScreens(ctx); err != nil {
		return nil, err
	}
	return g.openMain(ctx)
}

func (g *Gate) runScreens(ctx context.Context) error {
	if err := g.Telemetry(ctx); err != nil {
		return err
	}

	state, err := g.State()
	if err != nil {
		return err
	}
	g.logger.Debug("Store state computed", zap.Stringer("state", state))

	if state == NeedsInit {
		if err := g.Configure(ctx); err != nil {
			return err
		}
		if state, err = g.State(); err != nil {
			return err
		}
	}
	if state == NeedsAuth {
		if err := g.Authenticate(ctx); err != nil {
			return err
		}
		if state, err = g.State(); err != nil {
			return err
		}
	}
	if state != Ready {
		return ErrInvalidState
	}
	return nil
}

// Telemetry shows the consent screen unless skipped or already answered.
// Answering writes the lock file; closing the screen only completes it.
func (g *Gate) Telemetry(ctx context.Context) error {
	if g.opts.SkipTelemetry {
		g.logger.Debug("Telemetry consent skipped")
		return nil
	}
	if g.opts.LockFile != "" {
		if _, err := os.Stat(g.opts.LockFile); err == nil {
			g.logger.Debug("Telemetry lock file exists. Skipping telemetry dialog.")
			return nil
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	messages := g.bus.Subscribe(ctx)

	w, err := g.open(ctx, windows.TitleTelemetry, PageTelemetry, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			if msg.Path() != "telemetry.set" {
				continue
			}
			if g.opts.LockFile != "" {
				if err := os.WriteFile(g.opts.LockFile, []byte(lockContents), 0o644); err != nil {
					g.logger.Warn("Unable to write the telemetry lock file", zap.Error(err))
				}
			}
			_ = w.Close()
			return nil
		case <-w.Closed():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Configure runs the store configuration screen. A network store that is not
// authenticated moves the same window to the authentication page.
func (g *Gate) Configure(ctx context.Context) error {
	g.logger.Debug("Opening store configuration screen")
	return g.storeScreen(ctx, PageConfig, map[string]string{"init-reason": "add"})
}

// Authenticate runs the store authentication screen.
func (g *Gate) Authenticate(ctx context.Context) error {
	g.logger.Debug("Opening authentication page")
	return g.storeScreen(ctx, PageAuthenticate, nil)
}

func (g *Gate) storeScreen(ctx context.Context, page string, query map[string]string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	messages := g.bus.Subscribe(ctx)

	w, err := g.open(ctx, windows.TitleStoreConfig, page, query)
	if err != nil {
		return err
	}

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			done, err := g.handleStoreMessage(w, msg)
			if err != nil {
				return err
			}
			if done {
				_ = w.Close()
				return nil
			}
		case <-w.Closed():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *Gate) handleStoreMessage(w windows.Window, msg broadcast.Message) (bool, error) {
	switch msg.Path() {
	case "environment.add", "environment.setDefault":
		env, ok := environmentOf(msg)
		if !ok {
			return false, nil
		}
		if finishes(env) {
			return true, nil
		}
		target, err := windows.PageURL(g.opts.Base, PageAuthenticate, nil)
		if err != nil {
			return false, err
		}
		g.logger.Debug("Opening store authentication", zap.String("url", target))
		if err := w.Load(target); err != nil {
			g.logger.Warn("Unable to open the authentication page", zap.String("url", target), zap.Error(err))
		}
		return false, nil
	case "environment.update":
		env, ok := environmentOf(msg)
		return ok && finishes(env), nil
	default:
		return false, nil
	}
}

func (g *Gate) openMain(ctx context.Context) (windows.Window, error) {
	w, err := g.open(ctx, windows.TitleUI, PageMain, g.opts.MainQuery)
	if err != nil {
		return nil, err
	}
	g.logger.Info("Main window opened", zap.String("url", w.URL()))
	return w, nil
}

func (g *Gate) open(ctx context.Context, title, page string, query map[string]string) (windows.Window, error) {
	target, err := windows.PageURL(g.opts.Base, page, query)
	if err != nil {
		return nil, err
	}
	w, err := g.launcher.Open(ctx, windows.Options{Title: title, URL: target})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", title, err)
	}
	g.registry.Register(w, false)
	return w, nil
}

// environmentOf reads the env field of a message. Messages published in this
// process carry a store.Environment; relayed ones carry decoded JSON.
func environmentOf(msg broadcast.Message) (store.Environment, bool) {
	switch v := msg["env"].(type) {
	case store.Environment:
		return v, true
	case *store.Environment:
		if v == nil {
			return store.Environment{}, false
		}
		return *v, true
	case nil:
		return store.Environment{}, false
	default:
		raw, err := sonic.Marshal(v)
		if err != nil {
			return store.Environment{}, false
		}
		var env store.Environment
		if err := sonic.Unmarshal(raw, &env); err != nil {
			return store.Environment{}, false
		}
		return env, true
	}
}
