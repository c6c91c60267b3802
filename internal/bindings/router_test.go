package bindings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{ channel string }

func (e echoHandler) Channel() string { return e.channel }

func (e echoHandler) Handle(_ context.Context, call *Call) (any, error) {
	return call.Args, nil
}

type invocations struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (o *invocations) RecordInvocation(channel, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string][]string{}
	}
	o.outcomes[channel] = append(o.outcomes[channel], outcome)
}

func TestRouterDispatch(t *testing.T) {
	obs := &invocations{}
	r := NewRouter(logging.NewNop(), obs)
	require.NoError(t, r.Register(echoHandler{ChannelLogger}))

	out, err := r.Dispatch(context.Background(), &Call{Channel: ChannelLogger, Args: []any{"info", "x"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"info", "x"}, out)
	assert.Equal(t, []string{"ok"}, obs.outcomes[ChannelLogger])
}

func TestRouterRejectsChannelsOutsideCapabilitySet(t *testing.T) {
	r := NewRouter(logging.NewNop(), nil)

	err := r.Register(echoHandler{"shell-exec"})
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = r.Dispatch(context.Background(), &Call{Channel: "shell-exec"})
	assert.ErrorIs(t, err, ErrUnknownChannel)

	// allowed but not registered
	_, err = r.Dispatch(context.Background(), &Call{Channel: ChannelFiles})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestRouterRejectsDuplicateRegistration(t *testing.T) {
	r := NewRouter(logging.NewNop(), nil)
	require.NoError(t, r.Register(echoHandler{ChannelFiles}))
	assert.Error(t, r.Register(echoHandler{ChannelFiles}))
}

func TestAllowed(t *testing.T) {
	for _, c := range Channels {
		assert.True(t, Allowed(c), c)
	}
	assert.False(t, Allowed(""))
	assert.False(t, Allowed("app-config-channel"))
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := invalid("Expected %s.", "a key")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Expected a key.", err.Error())
	assert.EqualError(t, unknownCommand("nope"), "Unknown command: nope")
}
