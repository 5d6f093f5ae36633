// Package hooks fans plugin lifecycle events out to named handlers and to
// buffered stream subscribers.
package hooks

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/depot/internal/logging"
)

// Lifecycle events.
const (
	EventPluginAdded       = "plugin_added"
	EventPluginRemoved     = "plugin_removed"
	EventPluginSkipped     = "plugin_skipped"
	EventPluginLoadFailed  = "plugin_load_failed"
	EventDiscoveryStarted  = "discovery_started"
	EventDiscoveryFinished = "discovery_finished"
	EventServerStart       = "server_start"
	EventServerStop        = "server_stop"
)

// AllEvents is every event the server emits, in lifecycle order.
var AllEvents = []string{
	EventPluginAdded,
	EventPluginRemoved,
	EventPluginSkipped,
	EventPluginLoadFailed,
	EventDiscoveryStarted,
	EventDiscoveryFinished,
	EventServerStart,
	EventServerStop,
}

// Payload is one emitted event. Seq is unique and increasing per Manager.
type Payload struct {
	Event string         `json:"event"`
	Seq   int64          `json:"seq"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to an event. An error is logged and the remaining
// handlers still run.
type Handler func(ctx context.Context, p Payload) error

type binding struct {
	name string
	fn   Handler
}

type subscription struct {
	ch      chan Payload
	dropped atomic.Int64
}

// Manager is safe for concurrent use.
type Manager struct {
	seq atomic.Int64
	log *logging.Logger

	mu       sync.RWMutex
	bindings map[string][]binding
	subs     map[*subscription]struct{}
}

// NewManager returns a Manager with no handlers or subscribers.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		log:      log.Sub("hooks"),
		bindings: make(map[string][]binding),
		subs:     make(map[*subscription]struct{}),
	}
}

// On appends fn to the handlers of event under name.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	m.bindings[event] = append(m.bindings[event], binding{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off drops every handler of event registered under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[event] = slices.DeleteFunc(slices.Clone(m.bindings[event]), func(b binding) bool {
		return b.name == name
	})
}

// Subscribe returns a channel receiving every event and a cancel func that
// closes it. Delivery never blocks Emit: once buffer events are pending,
// newer ones are dropped for this subscriber.
func (m *Manager) Subscribe(buffer int) (<-chan Payload, func()) {
	sub := &subscription{ch: make(chan Payload, max(buffer, 1))}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, sub)
			m.mu.Unlock()
			close(sub.ch)
			if n := sub.dropped.Load(); n > 0 {
				m.log.Debug().Int64("dropped", n).Msg("subscription closed")
			}
		})
	}
	return sub.ch, cancel
}

// Emit stamps the event, offers it to every subscriber, then runs the
// event's handlers in registration order on the calling goroutine.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Seq: m.seq.Add(1), Time: time.Now().UTC(), Data: data}

	m.mu.RLock()
	for sub := range m.subs {
		select {
		case sub.ch <- p:
		default:
			sub.dropped.Add(1)
			m.log.Warn().Str("event", event).Int64("seq", p.Seq).Msg("subscriber lagging, event dropped")
		}
	}
	bound := m.bindings[event]
	m.mu.RUnlock()

	for _, b := range bound {
		if err := b.fn(ctx, p); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("handler", b.name).Msg("hook handler failed")
		}
	}
}

// Count returns how many handlers event has.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bindings[event])
}

// Subscribers returns how many subscriptions are open.
func (m *Manager) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []string
	for event, bound := range m.bindings {
		if len(bound) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
