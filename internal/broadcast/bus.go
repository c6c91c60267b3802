// Package broadcast fans configuration change notifications out to every
// interested listener.
//
// A single Publish reaches two independent subscriber lists: remote relay
// windows, which receive the message over their socket, and local subscribers
// living in the controller process. Delivery is at-least-once; a listener that
// is reachable both ways may see the same message twice and must be idempotent.
package broadcast

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"go.uber.org/zap"
)

const (
	// Channel is the name under which configuration messages are published.
	Channel = "app-config-channel"
	// RelayTitle identifies windows that relay broadcasts into their page.
	RelayTitle = "Broadcast process"
)

// Message is a notification: a dotted path plus path-specific fields.
type Message map[string]any

// New builds a message for path with the given fields.
func New(path string, fields map[string]any) Message {
	m := make(Message, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["path"] = path
	return m
}

// Path returns the message path.
func (m Message) Path() string {
	p, _ := m["path"].(string)
	return p
}

// Relay is a remote subscriber.
type Relay interface {
	Push(channel string, payload any) error
}

// RelaySource lists the relays currently alive.
type RelaySource interface {
	Relays() []Relay
}

// Observer counts deliveries. monitoring.Metrics satisfies it.
type Observer interface {
	RecordBroadcast(path, target string)
}

type nopObserver struct{}

func (nopObserver) RecordBroadcast(string, string) {}

// Bus publishes on one channel.
type Bus struct {
	channel  string
	relays   RelaySource
	logger   *logging.Logger
	observer Observer

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewBus creates a bus. relays and observer may be nil.
func NewBus(channel string, relays RelaySource, logger *logging.Logger, observer Observer) *Bus {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Bus{
		channel:  channel,
		relays:   relays,
		logger:   logger.Named("broadcast"),
		observer: observer,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Channel returns the channel name.
func (b *Bus) Channel() string {
	return b.channel
}

// SetRelays installs the relay source after construction.
func (b *Bus) SetRelays(relays RelaySource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relays = relays
}

// Publish delivers msg to every relay window and every local subscriber.
// It never blocks on a slow subscriber.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	relays := b.relays
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	path := msg.Path()

	if relays != nil {
		for _, r := range relays.Relays() {
			b.logger.Debug("Sending a broadcast message to the broadcast process",
				zap.String("channel", b.channel),
				zap.String("path", path))
			if err := r.Push(b.channel, msg); err != nil {
				b.logger.Warn("Relay push failed", zap.String("path", path), zap.Error(err))
				continue
			}
			b.observer.RecordBroadcast(path, "relay")
		}
	}

	for _, s := range subs {
		s.enqueue(msg)
		b.observer.RecordBroadcast(path, "local")
	}
}

// Subscribe registers a local subscriber. The channel closes when ctx is done or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) <-chan Message {
	out := make(chan Message)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return out
	}
	s := &subscriber{notify: make(chan struct{}, 1), stop: make(chan struct{}), out: out}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		s.pump(ctx)
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(out)
	}()

	return out
}

// SubscriberCount returns the number of local subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every local subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.halt()
	}
}

// subscriber queues messages without bound so Publish never waits on a reader.
type subscriber struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{}
	stop   chan struct{}
	once   sync.Once
	out    chan Message
}

func (s *subscriber) enqueue(msg Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) halt() {
	s.once.Do(func() { close(s.stop) })
}

func (s *subscriber) pump(ctx context.Context) {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, msg := range batch {
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}
