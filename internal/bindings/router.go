// Package bindings routes commands from rendering windows to the controller's
// privileged operations.
//
// Each ingress channel has exactly one Handler. The set of channels is fixed:
// the router refuses to register or dispatch anything outside it, so a window
// can reach nothing beyond configuration, files, navigation, the worker proxy
// and log forwarding.
package bindings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"go.uber.org/zap"
)

// Ingress channels.
const (
	ChannelConfig     = "config-bindings"
	ChannelFiles      = "file-bindings"
	ChannelNavigation = "navigation-bindings"
	ChannelProxy      = "project-proxy"
	ChannelLogger     = "logger"
)

// Channels is the complete capability set.
var Channels = []string{ChannelConfig, ChannelFiles, ChannelNavigation, ChannelProxy, ChannelLogger}

// Allowed reports whether channel belongs to the capability set.
func Allowed(channel string) bool {
	return slices.Contains(Channels, channel)
}

// Call is one invocation received from a window.
type Call struct {
	Channel string
	Args    []any
	// Window is the requesting window; nil when it cannot be resolved.
	Window windows.Window
}

// Handler serves one channel.
type Handler interface {
	Channel() string
	Handle(ctx context.Context, call *Call) (any, error)
}

// Observer records dispatch outcomes. monitoring.Metrics satisfies it.
type Observer interface {
	RecordInvocation(channel, outcome string, duration time.Duration)
}

// Router dispatches calls to channel handlers.
type Router struct {
	handlers sync.Map // channel -> Handler
	logger   *logging.Logger
	observer Observer
	tracer   *tracing.Tracer
}

// NewRouter creates an empty router. observer may be nil.
func NewRouter(logger *logging.Logger, observer Observer) *Router {
	return &Router{logger: logger.Named("bindings"), observer: observer}
}

// WithTracer starts a span for every dispatched call.
func (r *Router) WithTracer(t *tracing.Tracer) *Router {
	r.tracer = t
	return r
}

// Register installs a handler for its channel.
func (r *Router) Register(h Handler) error {
	channel := h.Channel()
	if !Allowed(channel) {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	if _, loaded := r.handlers.LoadOrStore(channel, h); loaded {
		return fmt.Errorf("channel %s already registered", channel)
	}
	return nil
}

// Dispatch runs a call on its channel's handler.
func (r *Router) Dispatch(ctx context.Context, call *Call) (any, error) {
	span, ctx := r.tracer.StartSpan(ctx, "invoke "+call.Channel)
	if call.Window != nil {
		span.SetTag("window", call.Window.ID().String())
	}
	start := time.Now()
	result, err := r.dispatch(ctx, call)
	r.tracer.End(span, err)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownChannel):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	if r.observer != nil {
		r.observer.RecordInvocation(call.Channel, outcome, time.Since(start))
	}
	if err != nil {
		r.logger.Debug("Command failed",
			append(tracing.Fields(ctx),
				zap.String("channel", call.Channel),
				zap.String("outcome", outcome),
				zap.Error(err))...)
	}
	return result, err
}

func (r *Router) dispatch(ctx context.Context, call *Call) (any, error) {
	if !Allowed(call.Channel) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, call.Channel)
	}
	h, ok := r.handlers.Load(call.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not available", ErrUnknownChannel, call.Channel)
	}
	return h.(Handler).Handle(ctx, call)
}
