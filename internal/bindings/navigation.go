package bindings

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"go.uber.org/zap"
)

// Navigation serves the navigation-bindings channel by opening application pages
// in new windows.
type Navigation struct {
	base     string
	launcher windows.Launcher
	registry *windows.Registry
	logger   *logging.Logger
}

// NewNavigation creates the navigation handler. base is the origin pages are served from.
func NewNavigation(base string, launcher windows.Launcher, registry *windows.Registry, logger *logging.Logger) *Navigation {
	return &Navigation{base: base, launcher: launcher, registry: registry, logger: logger.Named("navigation")}
}

func (n *Navigation) Channel() string { return ChannelNavigation }

// Handle opens the page named by the first argument with the optional query.
func (n *Navigation) Handle(ctx context.Context, call *Call) (any, error) {
	page, ok := keyArg(call.Args, 0)
	if !ok {
		return nil, invalid("Expected a page to navigate to.")
	}
	query := map[string]string{}
	if _, err := decodeArg(call.Args, 1, &query); err != nil {
		return nil, err
	}
	return nil, n.Open(ctx, page, query)
}

// Open opens page in a new foreground window.
func (n *Navigation) Open(ctx context.Context, page string, query map[string]string) error {
	target, err := windows.PageURL(n.base, page, query)
	if err != nil {
		return invalid("Invalid page: %s", page)
	}
	n.logger.Debug("Opening window", zap.String("url", target))

	w, err := n.launcher.Open(ctx, windows.Options{Title: windows.TitleUI, URL: target})
	if err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	n.registry.Register(w, false)
	return nil
}
