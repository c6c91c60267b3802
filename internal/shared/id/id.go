// Package id generates the identifiers handed out by the controller.
//
// Identifiers are prefixed ULIDs ("win_01H..."): sortable by creation time and
// readable in logs. A single generator uses monotonic entropy so ids created in
// the same millisecond still sort in creation order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// WindowID identifies a rendering window.
type WindowID string

// ConnID identifies one socket connection of a window.
type ConnID string

const (
	WindowPrefix = "win"
	ConnPrefix   = "conn"
	TracePrefix  = "trace"
	SpanPrefix   = "span"
)

// Generator produces ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator over a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     time.Now,
	}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// WithPrefix creates a "prefix_ULID" string.
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewWindowID generates a window id.
func NewWindowID() WindowID {
	return WindowID(Default().WithPrefix(WindowPrefix))
}

// NewConnID generates a connection id.
func NewConnID() ConnID {
	return ConnID(Default().WithPrefix(ConnPrefix))
}

func (w WindowID) String() string { return string(w) }
func (c ConnID) String() string   { return string(c) }

// Valid reports whether w has the window prefix and a well-formed ULID.
func (w WindowID) Valid() bool {
	return validPrefixed(string(w), WindowPrefix)
}

// Time returns when the id was generated.
func (w WindowID) Time() (time.Time, error) {
	_, raw, ok := strings.Cut(string(w), "_")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed id %q", w)
	}
	u, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

func validPrefixed(s, prefix string) bool {
	p, raw, ok := strings.Cut(s, "_")
	if !ok || p != prefix {
		return false
	}
	_, err := ulid.ParseStrict(raw)
	return err == nil
}
