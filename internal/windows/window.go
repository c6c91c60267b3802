// Package windows tracks the rendering windows opened by the controller and
// decides when the application should quit.
package windows

import (
	"context"
	"errors"
	"net/url"

	"github.com/GriffinCanCode/apiclient-shell/internal/shared/id"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/paths"
)

// Titles used by the controller's own windows.
const (
	TitleUI          = "API Client UI"
	TitleStoreConfig = "Store configuration"
	TitleTelemetry   = "Telemetry consent"
)

// ErrWindowClosed is returned by operations on a closed window.
var ErrWindowClosed = errors.New("window is closed")

// Window is a rendering context the controller can talk to.
type Window interface {
	ID() id.WindowID
	Title() string
	URL() string
	// Load navigates the window to another page.
	Load(url string) error
	// Push sends a one-way message on a named channel.
	Push(channel string, payload any) error
	// Request asks the page to perform an operation (a native dialog for
	// example) and waits for its answer.
	Request(ctx context.Context, kind string, payload any) (any, error)
	Close() error
	// Closed is closed once the window is gone.
	Closed() <-chan struct{}
}

// Options describe a window to open.
type Options struct {
	Title      string
	URL        string
	Background bool
	Hidden     bool
}

// Launcher opens windows.
type Launcher interface {
	Open(ctx context.Context, opts Options) (Window, error)
}

// PageURL builds the absolute URL of a renderer page on base, adding a missing
// leading slash and appending query parameters.
func PageURL(base, page string, query map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(paths.Page(page))
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
