package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/bytedance/sonic"
)

// Environment sources.
const (
	SourceLocal   = "local-store"
	SourceNetwork = "network-store"
)

// Environment is a store connection configuration.
type Environment struct {
	Key           string `json:"key"`
	Name          string `json:"name,omitempty"`
	Source        string `json:"source,omitempty"`
	Location      string `json:"location,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
	Token         string `json:"token,omitempty"`
	// Extra holds fields written by the page that the shell does not interpret.
	// They are stored and returned unchanged.
	Extra map[string]any `json:"-"`
}

var environmentKeys = []string{"key", "name", "source", "location", "authenticated", "token"}

// environmentFields has the layout of Environment without its codec methods.
type environmentFields Environment

func (e Environment) MarshalJSON() ([]byte, error) {
	raw, err := sonic.Marshal(environmentFields(e))
	if err != nil || len(e.Extra) == 0 {
		return raw, err
	}
	var all map[string]any
	if err := sonic.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if !slices.Contains(environmentKeys, k) {
			all[k] = v
		}
	}
	return sonic.Marshal(all)
}

func (e *Environment) UnmarshalJSON(data []byte) error {
	var fields environmentFields
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]any
	if err := sonic.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range environmentKeys {
		delete(all, k)
	}
	*e = Environment(fields)
	e.Extra = nil
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// IsLocal reports whether the environment uses the bundled local store.
func (e Environment) IsLocal() bool {
	return e.Source == SourceLocal
}

// EnvironmentSet is the ordered list of environments and the current selection.
type EnvironmentSet struct {
	Environments []Environment `json:"environments"`
	Current      string        `json:"current,omitempty"`
}

var (
	ErrEnvironmentExists   = errors.New(`The environment already exists. Maybe use "update" instead?`)
	ErrEnvironmentMissing  = errors.New(`The environment does not exist. Maybe use "add" instead?`)
	ErrNoDefault           = errors.New("No default environment.")
	ErrEnvironmentNotFound = errors.New("The environment is not found. Reinitialize application configuration.")
)

// Find returns the environment with key.
func (s *EnvironmentSet) Find(key string) (Environment, bool) {
	i := s.index(key)
	if i < 0 {
		return Environment{}, false
	}
	return s.Environments[i], true
}

// Resolve returns the environment for key, falling back to Current when key is empty.
func (s *EnvironmentSet) Resolve(key string) (Environment, error) {
	if key == "" {
		key = s.Current
	}
	if key == "" {
		return Environment{}, ErrNoDefault
	}
	env, ok := s.Find(key)
	if !ok {
		return Environment{}, ErrEnvironmentNotFound
	}
	return env, nil
}

// Add appends env, making it current when asDefault is set.
func (s *EnvironmentSet) Add(env Environment, asDefault bool) error {
	if s.index(env.Key) >= 0 {
		return ErrEnvironmentExists
	}
	s.Environments = append(s.Environments, env)
	if asDefault {
		s.Current = env.Key
	}
	return nil
}

// Update replaces the stored environment with the same key.
func (s *EnvironmentSet) Update(env Environment) error {
	i := s.index(env.Key)
	if i < 0 {
		return ErrEnvironmentMissing
	}
	s.Environments[i] = env
	return nil
}

// Remove deletes the environment with key, clearing Current if it pointed there.
// No other environment is promoted.
func (s *EnvironmentSet) Remove(key string) bool {
	i := s.index(key)
	if i >= 0 {
		s.Environments = slices.Delete(s.Environments, i, i+1)
	}
	if s.Current == key {
		s.Current = ""
	}
	return i >= 0
}

// SetDefault makes key current and returns its environment.
func (s *EnvironmentSet) SetDefault(key string) (Environment, error) {
	env, ok := s.Find(key)
	if !ok {
		return Environment{}, fmt.Errorf("The environment is not defined: %s", key)
	}
	s.Current = key
	return env, nil
}

func (s *EnvironmentSet) index(key string) int {
	return slices.IndexFunc(s.Environments, func(e Environment) bool { return e.Key == key })
}

// Clone returns a deep copy.
func (s *EnvironmentSet) Clone() *EnvironmentSet {
	envs := slices.Clone(s.Environments)
	for i := range envs {
		envs[i].Extra = maps.Clone(envs[i].Extra)
	}
	return &EnvironmentSet{Environments: envs, Current: s.Current}
}

// Environments persists the EnvironmentSet under a fixed key.
type Environments struct {
	mu sync.Mutex
	kv *BoltKV
}

// NewEnvironments wraps the environments bucket.
func NewEnvironments(kv *BoltKV) *Environments {
	return &Environments{kv: kv}
}

// List loads the set, returning an empty one when nothing is stored.
func (e *Environments) List() (*EnvironmentSet, error) {
	set := &EnvironmentSet{}
	if _, err := e.kv.GetInto(EnvironmentsKey, set); err != nil {
		return nil, err
	}
	if set.Environments == nil {
		set.Environments = []Environment{}
	}
	return set, nil
}

// Mutate loads the set, applies fn and persists the result when fn succeeds.
// Concurrent mutations from this process are serialized.
func (e *Environments) Mutate(fn func(*EnvironmentSet) error) (*EnvironmentSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, err := e.List()
	if err != nil {
		return nil, err
	}
	if err := fn(set); err != nil {
		return nil, err
	}
	if err := e.kv.Set(EnvironmentsKey, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Telemetry is the stored telemetry consent.
type Telemetry struct {
	Level string `json:"level"`
}

// DefaultTelemetry is returned when nothing has been stored.
var DefaultTelemetry = Telemetry{Level: "noting"}
