package eventflow

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// Payload types used across tests.

type Kline struct {
	Symbol string
	Close  float64
	Seq    int
}

type Price struct {
	Symbol string
	Price  float64
	Seq    int
}

type Trade struct {
	Symbol string
	Qty    float64
}

var (
	kindKline = event.KindOf[Kline]()
	kindPrice = event.KindOf[Price]()
	kindTrade = event.KindOf[Trade]()
)

func kinds(k ...event.Kind) []event.Kind { return k }

// countingMetrics records calls for assertions.
type countingMetrics struct {
	mu        sync.Mutex
	sends     int
	delivered int
	unrouted  int
	failures  int
	handles   int
	handleErr int
	exits     map[string]error
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{exits: make(map[string]error)}
}

func (m *countingMetrics) RecordSend(_ context.Context, _, _ string, destinations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	m.delivered += destinations
}

func (m *countingMetrics) RecordUnrouted(_ context.Context, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrouted++
}

func (m *countingMetrics) RecordDeliveryFailure(_ context.Context, _, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *countingMetrics) RecordHandle(_ context.Context, _, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles++
	if err != nil {
		m.handleErr++
	}
}

func (m *countingMetrics) RecordRunnerExit(_ context.Context, runner string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits[runner] = err
}

func (m *countingMetrics) runnerExits() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.exits))
	for k, v := range m.exits {
		out[k] = v
	}
	return out
}

type metricsSnapshot struct {
	sends     int
	delivered int
	unrouted  int
	failures  int
	handles   int
	handleErr int
}

func (m *countingMetrics) snapshot() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metricsSnapshot{
		sends:     m.sends,
		delivered: m.delivered,
		unrouted:  m.unrouted,
		failures:  m.failures,
		handles:   m.handles,
		handleErr: m.handleErr,
	}
}

func testLogger(t *testing.T) *slog.Logger {
	return slogt.New(t)
}

func testInstruments(t *testing.T, m observability.MetricsRecorder) instruments {
	if m == nil {
		m = observability.NoopMetrics{}
	}
	return instruments{
		logger:  testLogger(t),
		metrics: m,
		spans:   observability.NoopSpanManager{},
	}
}

// startEngine runs e in the background. The returned stop cancels the run and
// returns Run's result; it is also registered as a cleanup.
func startEngine(t *testing.T, e *Engine) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var once sync.Once
	var result error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("engine did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

// receiveN reads n values from ch or fails the test.
func receiveN[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-timeout:
			t.Fatalf("received %d of %d values", len(out), n)
		}
	}
	return out
}

// assertNothing fails if ch yields a value within d.
func assertNothing[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(d):
	}
}

// collector is a subscriber that forwards every envelope to a channel.
func collector(consumes ...event.Kind) (Subscriber, <-chan event.Envelope) {
	got := make(chan event.Envelope, 1000)
	sub := NewSubscriber(Declaration{Consumes: consumes}, func(_ context.Context, env event.Envelope, _ *Proxy) error {
		got <- env
		return nil
	})
	return sub, got
}

// sendAll is a publisher body that sends envs in order and returns.
func sendAll(envs ...event.Envelope) PublishFunc {
	return func(ctx context.Context, out *Proxy) error {
		for _, env := range envs {
			if err := out.Send(ctx, env); err != nil {
				return err
			}
		}
		return nil
	}
}
