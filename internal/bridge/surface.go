package bridge

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/GriffinCanCode/apiclient-shell/internal/bindings"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/proxy"
	"github.com/GriffinCanCode/apiclient-shell/internal/store"
	"github.com/bytedance/sonic"
)

// decode converts a decoded JSON result into T.
func decode[T any](v any, err error) (T, error) {
	var out T
	if err != nil || v == nil {
		return out, err
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode result: %w", err)
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func discard(_ any, err error) error { return err }

// Config groups the configuration stores.
type Config struct {
	Local       *Store
	Session     *Store
	Telemetry   *Telemetry
	Environment *Environment
}

// Store is a key/value configuration store.
type Store struct {
	c    *Client
	name string
}

// Get returns the value for key, nil when unset.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	return s.c.Invoke(ctx, bindings.ChannelConfig, s.name, "get", key)
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	return discard(s.c.Invoke(ctx, bindings.ChannelConfig, s.name, "set", key, value))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return discard(s.c.Invoke(ctx, bindings.ChannelConfig, s.name, "delete", key))
}

// Telemetry reads and records the telemetry consent.
type Telemetry struct {
	c *Client
}

func (t *Telemetry) Read(ctx context.Context) (store.Telemetry, error) {
	return decode[store.Telemetry](t.c.Invoke(ctx, bindings.ChannelConfig, "telemetry", "read"))
}

func (t *Telemetry) Set(ctx context.Context, value store.Telemetry) error {
	return discard(t.c.Invoke(ctx, bindings.ChannelConfig, "telemetry", "set", value))
}

// Environment manages the store environments.
type Environment struct {
	c *Client
}

func (e *Environment) Add(ctx context.Context, env store.Environment, init bindings.AddEnvironmentInit) error {
	return discard(e.c.Invoke(ctx, bindings.ChannelConfig, "environment", "add", env, init))
}

func (e *Environment) Update(ctx context.Context, env store.Environment) error {
	return discard(e.c.Invoke(ctx, bindings.ChannelConfig, "environment", "update", env))
}

// Read returns the environment with id, or the default one when id is empty.
func (e *Environment) Read(ctx context.Context, id string) (store.Environment, error) {
	var arg any
	if id != "" {
		arg = id
	}
	return decode[store.Environment](e.c.Invoke(ctx, bindings.ChannelConfig, "environment", "read", arg))
}

func (e *Environment) Remove(ctx context.Context, id string) error {
	return discard(e.c.Invoke(ctx, bindings.ChannelConfig, "environment", "remove", id))
}

func (e *Environment) SetDefault(ctx context.Context, id string) error {
	return discard(e.c.Invoke(ctx, bindings.ChannelConfig, "environment", "set-default", id))
}

func (e *Environment) List(ctx context.Context) (*store.EnvironmentSet, error) {
	return decode[*store.EnvironmentSet](e.c.Invoke(ctx, bindings.ChannelConfig, "environment", "list"))
}

// File reads and writes local files.
type File struct {
	c *Client
}

// WriteFile writes contents, a string or bytes, to path.
func (f *File) WriteFile(ctx context.Context, path string, contents any, opts *bindings.FileWriteOptions) error {
	o := bindings.FileWriteOptions{}
	if opts != nil {
		o = *opts
	}
	// bytes travel as base64 text
	if b, ok := contents.([]byte); ok {
		contents = base64.StdEncoding.EncodeToString(b)
		o.Encoding = "base64"
	}
	return discard(f.c.Invoke(ctx, bindings.ChannelFiles, "write", path, contents, o))
}

// ReadFile returns the contents of path.
func (f *File) ReadFile(ctx context.Context, path string, opts *bindings.FileReadOptions) ([]byte, error) {
	o := bindings.FileReadOptions{}
	if opts != nil {
		o = *opts
	}
	v, err := f.c.Invoke(ctx, bindings.ChannelFiles, "read", path, o)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected file contents %T", v)
	}
	switch o.ReturnType {
	case "buffer", "arraybuffer":
		return base64.StdEncoding.DecodeString(s)
	default:
		return []byte(s), nil
	}
}

// Proxy runs requests in the worker.
type Proxy struct {
	c *Client
}

func (p *Proxy) CoreRequest(ctx context.Context, init proxy.RequestInit) (*proxy.Result[proxy.RequestLog], error) {
	return decode[*proxy.Result[proxy.RequestLog]](p.c.Invoke(ctx, bindings.ChannelProxy, "core", "request", init))
}

func (p *Proxy) CoreHTTPProject(ctx context.Context, init proxy.ProjectInit, token, storeURI string) (*proxy.Result[*proxy.ProjectExecutionLog], error) {
	return decode[*proxy.Result[*proxy.ProjectExecutionLog]](p.c.Invoke(ctx, bindings.ChannelProxy, "core", "http-project", init, token, storeURI))
}

func (p *Proxy) HTTPSend(ctx context.Context, req proxy.HTTPRequest, init *proxy.RequestConfig) (*proxy.Response, error) {
	var cfg any
	if init != nil {
		cfg = *init
	}
	return decode[*proxy.Response](p.c.Invoke(ctx, bindings.ChannelProxy, "http", "send", req, cfg))
}

// Navigate opens application pages.
type Navigate struct {
	c *Client
}

func (n *Navigate) Page(ctx context.Context, page string, query map[string]string) error {
	if query == nil {
		query = map[string]string{}
	}
	return discard(n.c.Invoke(ctx, bindings.ChannelNavigation, page, query))
}

// Log forwards log lines to the controller without waiting.
type Log struct {
	c *Client
}

func (l *Log) Error(args ...any)   { l.forward(logging.LevelError, args) }
func (l *Log) Warn(args ...any)    { l.forward(logging.LevelWarn, args) }
func (l *Log) Info(args ...any)    { l.forward(logging.LevelInfo, args) }
func (l *Log) HTTP(args ...any)    { l.forward(logging.LevelHTTP, args) }
func (l *Log) Verbose(args ...any) { l.forward(logging.LevelVerbose, args) }
func (l *Log) Debug(args ...any)   { l.forward(logging.LevelDebug, args) }
func (l *Log) Silly(args ...any)   { l.forward(logging.LevelSilly, args) }

func (l *Log) forward(level string, args []any) {
	_ = l.c.notify(bindings.ChannelLogger, append([]any{level}, args...)...)
}
