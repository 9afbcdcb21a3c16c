// Package connectivity observes network reachability and raises edge-triggered
// online/offline events on the event bus.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/allisson/fieldsync/internal/eventbus"
)

// State is the connectivity state of the device.
type State string

const (
	StateOffline State = "offline"
	StateOnline  State = "online"
)

// Prober is the platform reachability collaborator.
type Prober interface {
	IsReachable(ctx context.Context) bool
}

// ChangeEvent is published on eventbus.TopicConnectivityChanged when the
// committed state transitions. Edge-triggered: one event per transition,
// never one per poll.
type ChangeEvent struct {
	Online bool
	At     time.Time
}

// Config holds connectivity monitor configuration.
type Config struct {
	ProbeInterval time.Duration
	Debounce      time.Duration
}

// Monitor is a two-state machine over a reachability prober. A observed
// change must hold for the debounce window before the transition commits, so
// flapping on unstable links is coalesced into a single event.
type Monitor struct {
	config Config
	prober Prober
	bus    *eventbus.Bus
	logger *slog.Logger

	mu             sync.RWMutex
	state          State
	candidate      State
	candidateSince time.Time
}

// NewMonitor creates a new connectivity monitor.
func NewMonitor(config Config, prober Prober, bus *eventbus.Bus, logger *slog.Logger) *Monitor {
	return &Monitor{
		config: config,
		prober: prober,
		bus:    bus,
		logger: logger,
		state:  StateOffline,
	}
}

// State returns the committed connectivity state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Online reports whether the committed state is online.
func (m *Monitor) Online() bool {
	return m.State() == StateOnline
}

// Start probes reachability until the context is cancelled. The initial probe
// sets the state without publishing an event; later transitions publish
// ChangeEvent after surviving the debounce window.
func (m *Monitor) Start(ctx context.Context) error {
	initial := stateOf(m.prober.IsReachable(ctx))

	m.mu.Lock()
	m.state = initial
	m.candidate = initial
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("connectivity monitor started", slog.String("state", string(initial)))
	}

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if m.logger != nil {
				m.logger.Info("stopping connectivity monitor")
			}
			return ctx.Err()
		case <-ticker.C:
			m.observe(stateOf(m.prober.IsReachable(ctx)), time.Now())
		}
	}
}

// observe feeds one reachability sample into the debounce machine.
func (m *Monitor) observe(observed State, now time.Time) {
	m.mu.Lock()

	if observed == m.state {
		// Back to the committed state: any pending candidate was a flap.
		m.candidate = m.state
		m.mu.Unlock()
		return
	}

	if observed != m.candidate {
		m.candidate = observed
		m.candidateSince = now
		m.mu.Unlock()
		return
	}

	if now.Sub(m.candidateSince) < m.config.Debounce {
		m.mu.Unlock()
		return
	}

	m.state = observed
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("connectivity changed", slog.String("state", string(observed)))
	}
	if m.bus != nil {
		m.bus.Publish(eventbus.TopicConnectivityChanged, ChangeEvent{
			Online: observed == StateOnline,
			At:     now,
		})
	}
}

func stateOf(reachable bool) State {
	if reachable {
		return StateOnline
	}
	return StateOffline
}
