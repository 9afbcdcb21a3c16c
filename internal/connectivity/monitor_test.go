package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/fieldsync/internal/eventbus"
)

// fakeProber returns a scripted reachability value.
type fakeProber struct {
	mu        sync.Mutex
	reachable bool
}

func (p *fakeProber) IsReachable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable
}

func (p *fakeProber) set(reachable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reachable = reachable
}

func newTestMonitor(prober Prober, bus *eventbus.Bus, debounce time.Duration) *Monitor {
	return NewMonitor(Config{
		ProbeInterval: time.Second,
		Debounce:      debounce,
	}, prober, bus, nil)
}

func collectChanges(bus *eventbus.Bus) *[]ChangeEvent {
	var events []ChangeEvent
	bus.Subscribe(eventbus.TopicConnectivityChanged, func(event any) {
		events = append(events, event.(ChangeEvent))
	})
	return &events
}

func TestMonitorCommitsTransitionAfterDebounce(t *testing.T) {
	bus := eventbus.NewBus(nil)
	events := collectChanges(bus)
	monitor := newTestMonitor(&fakeProber{}, bus, 100*time.Millisecond)

	base := time.Now()
	// Committed offline; online samples arrive.
	monitor.observe(StateOnline, base)
	assert.Equal(t, StateOffline, monitor.State(), "first sample only starts the window")

	monitor.observe(StateOnline, base.Add(50*time.Millisecond))
	assert.Equal(t, StateOffline, monitor.State(), "still inside the debounce window")

	monitor.observe(StateOnline, base.Add(150*time.Millisecond))
	assert.Equal(t, StateOnline, monitor.State())

	require.Len(t, *events, 1)
	assert.True(t, (*events)[0].Online)
}

func TestMonitorCoalescesFlapping(t *testing.T) {
	bus := eventbus.NewBus(nil)
	events := collectChanges(bus)
	monitor := newTestMonitor(&fakeProber{}, bus, 100*time.Millisecond)

	base := time.Now()
	monitor.observe(StateOnline, base)
	monitor.observe(StateOffline, base.Add(20*time.Millisecond)) // flap back
	monitor.observe(StateOnline, base.Add(40*time.Millisecond))  // window restarts
	monitor.observe(StateOnline, base.Add(60*time.Millisecond))

	assert.Equal(t, StateOffline, monitor.State(), "flapping must not commit a transition")
	assert.Empty(t, *events)

	monitor.observe(StateOnline, base.Add(200*time.Millisecond))
	assert.Equal(t, StateOnline, monitor.State())
	assert.Len(t, *events, 1, "flaps coalesce into a single edge event")
}

func TestMonitorNoEventWhileStateStable(t *testing.T) {
	bus := eventbus.NewBus(nil)
	events := collectChanges(bus)
	monitor := newTestMonitor(&fakeProber{}, bus, 50*time.Millisecond)

	base := time.Now()
	for i := 0; i < 10; i++ {
		monitor.observe(StateOffline, base.Add(time.Duration(i)*10*time.Millisecond))
	}

	assert.Empty(t, *events, "events are edge-triggered, not level-triggered")
}

func TestMonitorStartSetsInitialStateWithoutEvent(t *testing.T) {
	bus := eventbus.NewBus(nil)
	events := collectChanges(bus)
	prober := &fakeProber{reachable: true}
	monitor := NewMonitor(Config{
		ProbeInterval: 5 * time.Millisecond,
		Debounce:      time.Millisecond,
	}, prober, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- monitor.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		return monitor.Online()
	}, time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *events, "startup probe must not publish a transition")
}

func TestHTTPProber(t *testing.T) {
	t.Run("reachable server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		prober := NewHTTPProber(server.URL, time.Second)
		assert.True(t, prober.IsReachable(context.Background()))
	})

	t.Run("server errors still prove reachability", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		prober := NewHTTPProber(server.URL, time.Second)
		assert.True(t, prober.IsReachable(context.Background()))
	})

	t.Run("closed server is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		prober := NewHTTPProber(server.URL, 100*time.Millisecond)
		assert.False(t, prober.IsReachable(context.Background()))
	})
}
