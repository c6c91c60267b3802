package bindings

import (
	"context"
	"testing"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows/windowstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNavigationOpensRegisteredWindow(t *testing.T) {
	launcher := &windowstest.Launcher{}
	registry := windows.NewRegistry(logging.NewNop(), nil)
	nav := NewNavigation("http://127.0.0.1:8080", launcher, registry, logging.NewNop())

	_, err := nav.Handle(context.Background(), &Call{
		Channel: ChannelNavigation,
		Args:    []any{"api-client/Main.html", map[string]any{"project": "p1"}},
	})
	require.NoError(t, err)

	opts := launcher.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, windows.TitleUI, opts[0].Title)
	assert.Equal(t, "http://127.0.0.1:8080/dist/src/renderer/global/api-client/Main.html?project=p1", opts[0].URL)

	entries := registry.List()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Background)
}

func TestNavigationRequiresPage(t *testing.T) {
	nav := NewNavigation("http://localhost", &windowstest.Launcher{}, windows.NewRegistry(logging.NewNop(), nil), logging.NewNop())
	_, err := nav.Handle(context.Background(), &Call{Channel: ChannelNavigation})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoggerForwards(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewLogger(&logging.Logger{Logger: zap.New(core)})

	_, err := h.Handle(context.Background(), &Call{Channel: ChannelLogger, Args: []any{"warn", "disk", "low"}})
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), &Call{Channel: ChannelLogger, Args: []any{"shout", "x"}})
	assert.ErrorIs(t, err, ErrValidation)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk low", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
}
