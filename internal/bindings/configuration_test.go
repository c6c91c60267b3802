package bindings

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (r *recorder) Publish(msg broadcast.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Path())
	}
	return out
}

func (r *recorder) last() broadcast.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

type configFixture struct {
	cfg  *Configuration
	envs *store.Environments
	bus  *recorder
}

func newConfigFixture(t *testing.T) *configFixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	envs := store.NewEnvironments(db.Bucket(store.EnvironmentsBucket))
	bus := &recorder{}
	return &configFixture{
		cfg:  NewConfiguration(db.Bucket(store.LocalBucket), store.NewSession(), envs, bus),
		envs: envs,
		bus:  bus,
	}
}

func (f *configFixture) call(args ...any) (any, error) {
	return f.cfg.Handle(context.Background(), &Call{Channel: ChannelConfig, Args: args})
}

func TestLocalRoundTrip(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.call("local", "set", "k", "v")
	require.NoError(t, err)
	v, err := f.call("local", "get", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = f.call("local", "delete", "k")
	require.NoError(t, err)
	v, err = f.call("local", "get", "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Equal(t, []string{"local.set", "local.delete"}, f.bus.paths())
	assert.Equal(t, "k", f.bus.last()["key"])
}

func TestSessionRoundTrip(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.call("session", "set", "tab", 3)
	require.NoError(t, err)
	v, err := f.call("session", "get", "tab")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = f.call("session", "delete", "tab")
	require.NoError(t, err)
	v, err = f.call("session", "get", "tab")
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Equal(t, []string{"session.set", "session.delete"}, f.bus.paths())
}

func TestKeyValidation(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.call("local", "get")
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "Expected a key when reading local config.")

	_, err = f.call("session", "set", "", "v")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.call("local", "delete", 42)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, f.bus.paths())
}

func TestUnknownGroupAndCommand(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.call("global", "get", "k")
	assert.EqualError(t, err, "Unknown command: global")

	_, err = f.call("local", "purge")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.call()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTelemetry(t *testing.T) {
	f := newConfigFixture(t)

	v, err := f.call("telemetry", "read")
	require.NoError(t, err)
	assert.Equal(t, store.Telemetry{Level: "noting"}, v)

	_, err = f.call("telemetry", "set")
	assert.EqualError(t, err, "Expected telemetry settings. None given.")

	_, err = f.call("telemetry", "set", map[string]any{"level": "crash"})
	require.NoError(t, err)
	v, err = f.call("telemetry", "read")
	require.NoError(t, err)
	assert.Equal(t, store.Telemetry{Level: "crash"}, v)

	assert.Equal(t, []string{"telemetry.set"}, f.bus.paths())
	assert.Equal(t, store.Telemetry{Level: "crash"}, f.bus.last()["value"])
}

func env(key string) map[string]any {
	return map[string]any{"key": key, "name": key, "source": store.SourceNetwork}
}

func TestEnvironmentMutationsBroadcastOnce(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.call("environment", "add", env("a"), map[string]any{"asDefault": true})
	require.NoError(t, err)
	_, err = f.call("environment", "add", env("b"))
	require.NoError(t, err)
	_, err = f.call("environment", "update", map[string]any{"key": "b", "name": "Bee"})
	require.NoError(t, err)
	_, err = f.call("environment", "set-default", "b")
	require.NoError(t, err)
	_, err = f.call("environment", "remove", "a")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"environment.add",
		"environment.add",
		"environment.update",
		"environment.setDefault",
		"environment.remove",
	}, f.bus.paths())

	set, err := f.envs.List()
	require.NoError(t, err)
	require.Len(t, set.Environments, 1)
	assert.Equal(t, "Bee", set.Environments[0].Name)
	assert.Equal(t, "b", set.Current)

	f.bus.mu.Lock()
	setDefault := f.bus.msgs[3]
	f.bus.mu.Unlock()
	assert.Equal(t, "b", setDefault["id"])
	assert.Equal(t, "b", setDefault["env"].(store.Environment).Key)
}

func TestEnvironmentAddListKeepsPageFields(t *testing.T) {
	f := newConfigFixture(t)
	e := env("a")
	e["color"] = "teal"
	e["meta"] = map[string]any{"order": float64(2)}

	_, err := f.call("environment", "add", e)
	require.NoError(t, err)

	v, err := f.call("environment", "list")
	require.NoError(t, err)
	set := v.(*store.EnvironmentSet)
	require.Len(t, set.Environments, 1)
	assert.Equal(t, "a", set.Environments[0].Key)
	assert.Equal(t, map[string]any{"color": "teal", "meta": map[string]any{"order": float64(2)}},
		set.Environments[0].Extra)
}

func TestEnvironmentUpdateMissingKeyChangesNothing(t *testing.T) {
	f := newConfigFixture(t)
	_, err := f.call("environment", "add", env("a"), map[string]any{"asDefault": true})
	require.NoError(t, err)
	before, err := f.envs.List()
	require.NoError(t, err)

	_, err = f.call("environment", "update", env("ghost"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, `The environment does not exist. Maybe use "add" instead?`)

	after, err := f.envs.List()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"environment.add"}, f.bus.paths())
}

func TestEnvironmentAddDuplicate(t *testing.T) {
	f := newConfigFixture(t)
	_, err := f.call("environment", "add", env("a"))
	require.NoError(t, err)
	_, err = f.call("environment", "add", env("a"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, f.bus.paths(), 1)
}

func TestEnvironmentReadDefaults(t *testing.T) {
	f := newConfigFixture(t)
	_, err := f.call("environment", "add", env("env-a"))
	require.NoError(t, err)
	_, err = f.call("environment", "add", env("env-b"))
	require.NoError(t, err)

	// no current yet
	_, err = f.call("environment", "read")
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "No default environment.")

	_, err = f.call("environment", "set-default", "env-a")
	require.NoError(t, err)

	v, err := f.call("environment", "read")
	require.NoError(t, err)
	assert.Equal(t, "env-a", v.(store.Environment).Key)

	v, err = f.call("environment", "read", "env-b")
	require.NoError(t, err)
	assert.Equal(t, "env-b", v.(store.Environment).Key)

	_, err = f.call("environment", "read", "env-z")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEnvironmentRemoveClearsCurrent(t *testing.T) {
	f := newConfigFixture(t)
	_, err := f.call("environment", "add", env("a"), map[string]any{"asDefault": true})
	require.NoError(t, err)
	_, err = f.call("environment", "add", env("b"))
	require.NoError(t, err)

	_, err = f.call("environment", "remove", "a")
	require.NoError(t, err)

	v, err := f.call("environment", "list")
	require.NoError(t, err)
	set := v.(*store.EnvironmentSet)
	assert.Empty(t, set.Current)
	assert.Len(t, set.Environments, 1)
}

func TestEnvironmentSetDefaultUnknown(t *testing.T) {
	f := newConfigFixture(t)
	_, err := f.call("environment", "set-default", "nope")
	assert.EqualError(t, err, "The environment is not defined: nope")
	assert.Empty(t, f.bus.paths())
}
