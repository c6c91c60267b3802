package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ErrAppHomeNotSet is the fatal startup error raised when no data directory can be resolved.
var ErrAppHomeNotSet = errors.New("APP_HOME variable is not set")

// Names of files kept in the application home.
const (
	PortableDir       = ".apic"
	SettingsFile      = "settings.json"
	DatabaseFile      = "config.db"
	TelemetryLockFile = ".telemetry-consent.lock"
	LogsDir           = "logs"
)

// RendererRoot is the asset path under which renderer pages are served.
const RendererRoot = "/dist/src/renderer/global"

// Home is the resolved application data directory.
type Home string

// ResolveHome picks the application home: an explicit dir wins, then a portable
// ".apic" directory next to the executable, then the per-user config dir.
func ResolveHome(explicit, executable string) (Home, error) {
	if explicit != "" {
		dir, err := Expand(explicit)
		if err != nil {
			return "", err
		}
		return Home(dir), nil
	}

	if executable != "" {
		portable := filepath.Join(filepath.Dir(executable), PortableDir)
		if fi, err := os.Stat(portable); err == nil && fi.IsDir() {
			return Home(portable), nil
		}
	}

	cfg, err := os.UserConfigDir()
	if err != nil || cfg == "" {
		return "", ErrAppHomeNotSet
	}
	return Home(filepath.Join(cfg, "api-client")), nil
}

// Ensure creates the home directory if needed.
func (h Home) Ensure() error {
	if h == "" {
		return ErrAppHomeNotSet
	}
	if err := os.MkdirAll(string(h), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", h, err)
	}
	return nil
}

func (h Home) String() string { return string(h) }

// Join resolves elem relative to the home.
func (h Home) Join(elem ...string) string {
	return filepath.Join(append([]string{string(h)}, elem...)...)
}

// Settings returns the settings file path, honoring an override which may be
// relative to the home or start with "~".
func (h Home) Settings(override string) (string, error) {
	if override == "" {
		return h.Join(SettingsFile), nil
	}
	p, err := Expand(override)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = h.Join(p)
	}
	return p, nil
}

// Database returns the configuration database path.
func (h Home) Database() string {
	return h.Join(DatabaseFile)
}

// TelemetryLock returns the path of the consent lock file.
func (h Home) TelemetryLock() string {
	return h.Join(TelemetryLockFile)
}

// Expand resolves a leading "~" to the user's home directory.
func Expand(p string) (string, error) {
	out, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return out, nil
}

// Page returns the renderer asset path for a page, adding a missing leading slash.
func Page(page string) string {
	if !strings.HasPrefix(page, "/") {
		page = "/" + page
	}
	return RendererRoot + page
}
