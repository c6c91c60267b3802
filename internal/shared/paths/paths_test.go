package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHomeExplicit(t *testing.T) {
	dir := t.TempDir()
	h, err := ResolveHome(dir, "")
	require.NoError(t, err)
	assert.Equal(t, Home(dir), h)
}

func TestResolveHomeTilde(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	h, err := ResolveHome("~/apic-data", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "apic-data"), h.String())
}

func TestResolveHomePortable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, PortableDir), 0o700))

	h, err := ResolveHome("", filepath.Join(dir, "shell"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, PortableDir), h.String())
}

func TestHomeFiles(t *testing.T) {
	h := Home("/data")

	assert.Equal(t, "/data/config.db", h.Database())
	assert.Equal(t, "/data/.telemetry-consent.lock", h.TelemetryLock())

	p, err := h.Settings("")
	require.NoError(t, err)
	assert.Equal(t, "/data/settings.json", p)

	p, err = h.Settings("custom.toml")
	require.NoError(t, err)
	assert.Equal(t, "/data/custom.toml", p)

	p, err = h.Settings("/etc/app.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/app.yaml", p)
}

func TestEnsureRequiresHome(t *testing.T) {
	assert.ErrorIs(t, Home("").Ensure(), ErrAppHomeNotSet)
	assert.EqualError(t, ErrAppHomeNotSet, "APP_HOME variable is not set")
}

func TestPage(t *testing.T) {
	assert.Equal(t, "/dist/src/renderer/global/api-client/Main.html", Page("api-client/Main.html"))
	assert.Equal(t, "/dist/src/renderer/global/api-client/Main.html", Page("/api-client/Main.html"))
	assert.True(t, strings.HasPrefix(Page("x"), RendererRoot))
}
