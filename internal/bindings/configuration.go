package bindings

import (
	"context"

	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/store"
)

// Publisher receives change notifications.
type Publisher interface {
	Publish(msg broadcast.Message)
}

// AddEnvironmentInit tunes environment add.
type AddEnvironmentInit struct {
	AsDefault bool `json:"asDefault,omitempty"`
}

// Configuration serves the config-bindings channel.
type Configuration struct {
	local   *store.BoltKV
	session store.KV
	envs    *store.Environments
	bus     Publisher
}

// NewConfiguration wires the configuration stores and the broadcast publisher.
func NewConfiguration(local *store.BoltKV, session store.KV, envs *store.Environments, bus Publisher) *Configuration {
	return &Configuration{local: local, session: session, envs: envs, bus: bus}
}

func (c *Configuration) Channel() string { return ChannelConfig }

// Handle dispatches on group then sub-command.
func (c *Configuration) Handle(_ context.Context, call *Call) (any, error) {
	group, _ := stringArg(call.Args, 0)
	sub, _ := stringArg(call.Args, 1)
	rest := call.Args
	if len(rest) > 2 {
		rest = rest[2:]
	} else {
		rest = nil
	}

	switch group {
	case "local":
		return c.handleKV(c.local, "local", sub, rest)
	case "session":
		return c.handleKV(c.session, "session", sub, rest)
	case "telemetry":
		return c.handleTelemetry(sub, rest)
	case "environment":
		return c.handleEnvironment(sub, rest)
	default:
		return nil, unknownCommand(arg(call.Args, 0))
	}
}

func (c *Configuration) handleKV(kv store.KV, name, sub string, args []any) (any, error) {
	switch sub {
	case "get":
		key, ok := keyArg(args, 0)
		if !ok {
			return nil, invalid("Expected a key when reading %s config.", name)
		}
		v, _, err := kv.Get(key)
		return v, err
	case "set":
		key, ok := keyArg(args, 0)
		if !ok {
			return nil, invalid("Expected a key when setting %s config.", name)
		}
		value := arg(args, 1)
		if err := kv.Set(key, value); err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New(name+".set", map[string]any{"key": key, "value": value}))
		return nil, nil
	case "delete":
		key, ok := keyArg(args, 0)
		if !ok {
			return nil, invalid("Expected a key when deleting %s config.", name)
		}
		if err := kv.Delete(key); err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New(name+".delete", map[string]any{"key": key}))
		return nil, nil
	default:
		return nil, invalid("Unknown %s command: %v", name, sub)
	}
}

func (c *Configuration) handleTelemetry(sub string, args []any) (any, error) {
	switch sub {
	case "read":
		return c.Telemetry()
	case "set":
		var t store.Telemetry
		ok, err := decodeArg(args, 0, &t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalid("Expected telemetry settings. None given.")
		}
		if err := c.local.Set(store.TelemetryKey, t); err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New("telemetry.set", map[string]any{"value": t}))
		return nil, nil
	default:
		return nil, invalid("Unknown telemetry command: %v", sub)
	}
}

// Telemetry reads the stored consent, defaulting when unset.
func (c *Configuration) Telemetry() (store.Telemetry, error) {
	t := store.DefaultTelemetry
	found, err := c.local.GetInto(store.TelemetryKey, &t)
	if err != nil {
		return store.Telemetry{}, err
	}
	if !found {
		return store.DefaultTelemetry, nil
	}
	return t, nil
}

func (c *Configuration) handleEnvironment(sub string, args []any) (any, error) {
	switch sub {
	case "add":
		env, err := environmentArg(args, 0)
		if err != nil {
			return nil, err
		}
		var init AddEnvironmentInit
		if _, err := decodeArg(args, 1, &init); err != nil {
			return nil, err
		}
		if err := c.mutate(func(s *store.EnvironmentSet) error { return s.Add(env, init.AsDefault) }); err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New("environment.add", map[string]any{"env": env, "init": init}))
		return nil, nil

	case "update":
		env, err := environmentArg(args, 0)
		if err != nil {
			return nil, err
		}
		if err := c.mutate(func(s *store.EnvironmentSet) error { return s.Update(env) }); err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New("environment.update", map[string]any{"env": env}))
		return nil, nil

	case "read":
		id, _ := stringArg(args, 0)
		set, err := c.envs.List()
		if err != nil {
			return nil, err
		}
		env, err := set.Resolve(id)
		if err != nil {
			return nil, invalid("%s", err.Error())
		}
		return env, nil

	case "remove":
		id, ok := keyArg(args, 0)
		if !ok {
			return nil, invalid("Expected an environment id.")
		}
		if err := c.mutate(func(s *store.EnvironmentSet) error { s.Remove(id); return nil }); err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New("environment.remove", map[string]any{"id": id}))
		return nil, nil

	case "set-default":
		id, ok := keyArg(args, 0)
		if !ok {
			return nil, invalid("Expected an environment id.")
		}
		var env store.Environment
		err := c.mutate(func(s *store.EnvironmentSet) error {
			var err error
			env, err = s.SetDefault(id)
			return err
		})
		if err != nil {
			return nil, err
		}
		c.bus.Publish(broadcast.New("environment.setDefault", map[string]any{"id": id, "env": env}))
		return nil, nil

	case "list":
		return c.envs.List()

	default:
		return nil, invalid("Unknown environment command: %v", sub)
	}
}

// mutate persists a change to the environment set. Errors raised by fn are
// caller mistakes and surface as validation errors.
func (c *Configuration) mutate(fn func(*store.EnvironmentSet) error) error {
	_, err := c.envs.Mutate(func(s *store.EnvironmentSet) error {
		if err := fn(s); err != nil {
			return invalid("%s", err.Error())
		}
		return nil
	})
	return err
}

func environmentArg(args []any, i int) (store.Environment, error) {
	var env store.Environment
	ok, err := decodeArg(args, i, &env)
	if err != nil {
		return env, err
	}
	if !ok {
		return env, invalid("Expected an environment.")
	}
	if env.Key == "" {
		return env, invalid("Expected an environment key.")
	}
	return env, nil
}
