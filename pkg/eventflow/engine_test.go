package eventflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventflow/pkg/eventflow/deadletter"
	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
)

// producingOnly produces kinds but cannot receive a proxy.
type producingOnly struct{}

func (producingOnly) Consumes() []event.Kind                      { return kinds(kindKline) }
func (producingOnly) Produces() []event.Kind                      { return kinds(kindPrice) }
func (producingOnly) Handle(context.Context, event.Envelope) error { return nil }

// hookedSubscriber records its lifecycle calls.
type hookedSubscriber struct {
	mu       sync.Mutex
	calls    []string
	out      *Proxy
	startErr error
	stopCtx  error
}

func (h *hookedSubscriber) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *hookedSubscriber) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *hookedSubscriber) Consumes() []event.Kind { return kinds(kindKline) }
func (h *hookedSubscriber) Produces() []event.Kind { return kinds(kindPrice) }

func (h *hookedSubscriber) BindProxy(out *Proxy) {
	h.out = out
	h.record("bind")
}

func (h *hookedSubscriber) Start(context.Context) error {
	if h.out == nil {
		h.record("start-unbound")
	} else {
		h.record("start")
	}
	return h.startErr
}

func (h *hookedSubscriber) Handle(context.Context, event.Envelope) error {
	h.record("handle")
	return nil
}

func (h *hookedSubscriber) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopCtx = ctx.Err()
	h.mu.Unlock()
	h.record("stop")
	return nil
}

func TestAddPublisher_ConfigErrors(t *testing.T) {
	valid := NewPublisher(Declaration{Produces: kinds(kindKline)}, noopPublish)

	tests := []struct {
		name    string
		runner  string
		app     Publisher
		wantErr error
	}{
		{"empty name", "", valid, ErrEmptyName},
		{"nil app", "klines", nil, ErrNilApp},
		{"zero kind", "klines", NewPublisher(Declaration{Produces: []event.Kind{{}}}, noopPublish), ErrZeroKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			err := e.AddPublisher(tt.runner, tt.app)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.runner, ce.Runner)
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		e := NewEngine()
		require.NoError(t, e.AddPublisher("klines", valid))
		err := e.AddSubscriber("klines", NewSubscriber(Declaration{Consumes: kinds(kindKline)}, noopHandle))
		assert.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("publisher producing nothing is allowed", func(t *testing.T) {
		e := NewEngine()
		assert.NoError(t, e.AddPublisher("idle", NewPublisher(Declaration{}, noopPublish)))
	})
}

func TestAddSubscriber_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		app     Subscriber
		wantErr error
	}{
		{"nil app", nil, ErrNilApp},
		{"no consumed kinds", NewSubscriber(Declaration{}, noopHandle), ErrNoConsumedKinds},
		{"zero consumed kind", NewSubscriber(Declaration{Consumes: []event.Kind{{}}}, noopHandle), ErrZeroKind},
		{"zero produced kind", NewSubscriber(Declaration{Consumes: kinds(kindKline), Produces: []event.Kind{{}}}, noopHandle), ErrZeroKind},
		{"produces without proxy binder", producingOnly{}, ErrProxyNotBindable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			err := e.AddSubscriber("maker", tt.app)
			assert.ErrorIs(t, err, tt.wantErr)

			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestEngine_SingleUse(t *testing.T) {
	e := NewEngine(WithLogger(testLogger(t)))
	sub, _ := collector(kindKline)
	require.NoError(t, e.AddSubscriber("sink", sub))

	stop := startEngine(t, e)
	require.NoError(t, stop())

	assert.ErrorIs(t, e.Run(context.Background()), ErrEngineConsumed)
	err := e.AddPublisher("late", NewPublisher(Declaration{}, noopPublish))
	assert.ErrorIs(t, err, ErrEngineConsumed)
}

func TestEngine_NilContext(t *testing.T) {
	var ctx context.Context
	assert.ErrorIs(t, NewEngine().Run(ctx), ErrNilContext)
}

func TestEngine_EmptyRunReturnsImmediately(t *testing.T) {
	assert.NoError(t, NewEngine(WithLogger(testLogger(t))).Run(context.Background()))
}

func TestEngine_CancellationIsNormalExit(t *testing.T) {
	e := NewEngine(WithLogger(testLogger(t)))
	sub, _ := collector(kindKline)
	require.NoError(t, e.AddSubscriber("sink", sub))
	require.NoError(t, e.AddPublisher("waiter", NewPublisher(Declaration{Produces: kinds(kindKline)},
		func(ctx context.Context, _ *Proxy) error {
			<-ctx.Done()
			return ctx.Err()
		})))

	stop := startEngine(t, e)
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, stop())
}

func TestEngine_DeadlineIsNormalExit(t *testing.T) {
	e := NewEngine(WithLogger(testLogger(t)))
	sub, _ := collector(kindKline)
	require.NoError(t, e.AddSubscriber("sink", sub))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.NoError(t, e.Run(ctx))
}

func TestEngine_PublishCalledOnce(t *testing.T) {
	var calls atomic.Int32
	e := NewEngine(WithLogger(testLogger(t)))
	sub, got := collector(kindKline)
	require.NoError(t, e.AddSubscriber("sink", sub))
	require.NoError(t, e.AddPublisher("once", NewPublisher(Declaration{Produces: kinds(kindKline)},
		func(ctx context.Context, out *Proxy) error {
			calls.Add(1)
			return out.Send(ctx, event.New(Kline{Seq: 1}))
		})))

	stop := startEngine(t, e)
	receiveN(t, got, 1)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stop())
	assert.Equal(t, int32(1), calls.Load())
}

func TestEngine_PanicIsolatedToRunner(t *testing.T) {
	metrics := newCountingMetrics()
	e := NewEngine(WithLogger(testLogger(t)), WithMetricsRecorder(metrics))

	require.NoError(t, e.AddSubscriber("bad", NewSubscriber(Declaration{Consumes: kinds(kindKline)},
		func(context.Context, event.Envelope, *Proxy) error {
			panic("boom")
		})))
	good, got := collector(kindKline)
	require.NoError(t, e.AddSubscriber("good", good))
	require.NoError(t, e.AddPublisher("klines", NewPublisher(Declaration{Produces: kinds(kindKline)},
		func(ctx context.Context, out *Proxy) error {
			for i := range 3 {
				_ = out.Send(ctx, event.New(Kline{Seq: i}))
			}
			return nil
		})))

	stop := startEngine(t, e)
	envs := receiveN(t, got, 3)
	for i, env := range envs {
		k, ok := event.As[Kline](env)
		require.True(t, ok)
		assert.Equal(t, i, k.Seq)
	}

	err := stop()
	require.Error(t, err)

	var re *RunnerError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "bad", re.Runner)
	assert.Equal(t, roleSubscriber, re.Role)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.NotContains(t, err.Error(), "good")

	exits := metrics.runnerExits()
	assert.Error(t, exits["bad"])
	assert.NoError(t, exits["good"])
	assert.NoError(t, exits["klines"])
}

func TestEngine_HandlerErrorKeepsRunnerAlive(t *testing.T) {
	store := deadletter.NewMemoryStore(0)
	defer store.Close()
	metrics := newCountingMetrics()
	e := NewEngine(WithLogger(testLogger(t)), WithMetricsRecorder(metrics), WithDeadLetterStore(store))

	seen := make(chan int, 10)
	require.NoError(t, e.AddSubscriber("picky", NewSubscriber(Declaration{Consumes: kinds(kindKline)},
		func(_ context.Context, env event.Envelope, _ *Proxy) error {
			k, _ := event.As[Kline](env)
			seen <- k.Seq
			if k.Seq%2 == 1 {
				return errors.New("odd kline")
			}
			return nil
		})))
	require.NoError(t, e.AddPublisher("klines", NewPublisher(Declaration{Produces: kinds(kindKline)},
		sendAll(
			event.New(Kline{Seq: 0}),
			event.New(Kline{Seq: 1}),
			event.New(Kline{Seq: 2}),
			event.New(Kline{Seq: 3}),
		))))

	stop := startEngine(t, e)
	assert.Equal(t, []int{0, 1, 2, 3}, receiveN(t, seen, 4))

	assert.Eventually(t, func() bool {
		n, err := store.Count(context.Background())
		return err == nil && n == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, stop())

	records, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, deadletter.ReasonHandlerError, records[0].Reason)
	assert.Equal(t, "picky", records[0].Runner)
	assert.Equal(t, "odd kline", records[0].Error)
	assert.Equal(t, kindKline.String(), records[0].Kind)

	snap := metrics.snapshot()
	assert.Equal(t, 4, snap.handles)
	assert.Equal(t, 2, snap.handleErr)
}

func TestEngine_PublisherErrorIsReported(t *testing.T) {
	e := NewEngine(WithLogger(testLogger(t)))
	require.NoError(t, e.AddPublisher("broken", NewPublisher(Declaration{},
		func(context.Context, *Proxy) error {
			return errors.New("feed down")
		})))

	err := e.Run(context.Background())
	require.Error(t, err)

	var re *RunnerError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "broken", re.Runner)
	assert.Equal(t, rolePublisher, re.Role)
	assert.ErrorContains(t, err, "feed down")
}

func TestEngine_ConsumerGoneReachesProducer(t *testing.T) {
	store := deadletter.NewMemoryStore(0)
	defer store.Close()
	e := NewEngine(WithLogger(testLogger(t)), WithDeadLetterStore(store))

	require.NoError(t, e.AddSubscriber("dying", NewSubscriber(Declaration{Consumes: kinds(kindKline)},
		func(context.Context, event.Envelope, *Proxy) error {
			panic("crash")
		})))
	survivor, got := collector(kindKline)
	require.NoError(t, e.AddSubscriber("survivor", survivor))

	reported := make(chan error, 1)
	require.NoError(t, e.AddPublisher("klines", NewPublisher(Declaration{Produces: kinds(kindKline)},
		func(ctx context.Context, out *Proxy) error {
			for ctx.Err() == nil {
				err := out.Send(ctx, event.New(Kline{}))
				if errors.Is(err, ErrConsumerGone) {
					reported <- err
					return nil
				}
				time.Sleep(time.Millisecond)
			}
			return nil
		})))

	stop := startEngine(t, e)

	var err error
	select {
	case err = <-reported:
	case <-time.After(5 * time.Second):
		t.Fatal("producer never saw the consumer exit")
	}

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "dying", de.Destination)
	assert.Equal(t, "klines", de.Producer)

	receiveN(t, got, 1)

	runErr := stop()
	var re *RunnerError
	require.ErrorAs(t, runErr, &re)
	assert.Equal(t, "dying", re.Runner)

	counts, cerr := store.CountByKind(context.Background())
	require.NoError(t, cerr)
	assert.GreaterOrEqual(t, counts[kindKline.String()], 1)
}

func TestEngine_FailedForwardIsDeadLetteredOnce(t *testing.T) {
	store := deadletter.NewMemoryStore(0)
	defer store.Close()
	metrics := newCountingMetrics()
	e := NewEngine(WithLogger(testLogger(t)), WithMetricsRecorder(metrics), WithDeadLetterStore(store))

	require.NoError(t, e.AddSubscriber("trap", NewSubscriber(Declaration{Consumes: kinds(kindPrice)},
		func(context.Context, event.Envelope, *Proxy) error {
			panic("trap")
		})))
	require.NoError(t, e.AddSubscriber("maker", NewSubscriber(Declaration{
		Consumes: kinds(kindKline),
		Produces: kinds(kindPrice),
	}, func(ctx context.Context, env event.Envelope, out *Proxy) error {
		k, _ := event.As[Kline](env)
		return out.Send(ctx, event.New(Price{Symbol: k.Symbol, Price: k.Close}))
	})))
	require.NoError(t, e.AddPublisher("feed", NewPublisher(Declaration{Produces: kinds(kindKline, kindPrice)},
		func(ctx context.Context, out *Proxy) error {
			if err := out.Send(ctx, event.New(Price{Symbol: "BTCUSDT"})); err != nil {
				return err
			}
			for ctx.Err() == nil {
				if _, ok := metrics.runnerExits()["trap"]; ok {
					return out.Send(ctx, event.New(Kline{Symbol: "BTCUSDT", Close: 1.2}))
				}
				time.Sleep(time.Millisecond)
			}
			return nil
		})))

	stop := startEngine(t, e)
	assert.Eventually(t, func() bool {
		return metrics.snapshot().handleErr == 1
	}, 5*time.Second, 5*time.Millisecond)
	_ = stop()

	records, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, deadletter.ReasonConsumerGone, records[0].Reason)
	assert.Equal(t, "maker", records[0].Runner)
	assert.Equal(t, "trap", records[0].Destination)
	assert.Equal(t, kindPrice.String(), records[0].Kind)
}

func TestEngine_AppLifecycleHooks(t *testing.T) {
	app := &hookedSubscriber{}
	e := NewEngine(WithLogger(testLogger(t)))
	require.NoError(t, e.AddSubscriber("hooked", app))
	require.NoError(t, e.AddPublisher("klines", NewPublisher(Declaration{Produces: kinds(kindKline)},
		sendAll(event.New(Kline{})))))

	stop := startEngine(t, e)
	assert.Eventually(t, func() bool {
		calls := app.Calls()
		return len(calls) == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"bind", "start", "handle", "stop"}, app.Calls())
	assert.NoError(t, app.stopCtx, "Stop receives a live context")
	assert.Equal(t, "hooked", app.out.Owner())
	assert.Equal(t, []event.Kind{kindPrice}, app.out.Kinds())
}

func TestEngine_StartErrorEndsRunner(t *testing.T) {
	app := &hookedSubscriber{startErr: errors.New("no connection")}
	e := NewEngine(WithLogger(testLogger(t)))
	require.NoError(t, e.AddSubscriber("hooked", app))

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "start: no connection")
	assert.Equal(t, []string{"bind", "start", "stop"}, app.Calls())
}

func TestEngine_EngineHooks(t *testing.T) {
	var order []string
	var mu sync.Mutex
	add := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	var exitErr error
	e := NewEngine(
		WithLogger(testLogger(t)),
		WithBeforeStart(func(context.Context) error { add("before"); return nil }),
		WithOnExit(func(_ context.Context, err error) { add("exit"); exitErr = err }),
	)
	require.NoError(t, e.AddPublisher("once", NewPublisher(Declaration{}, func(context.Context, *Proxy) error {
		add("publish")
		return errors.New("done badly")
	})))

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"before", "publish", "exit"}, order)
	assert.Equal(t, err, exitErr)
}

func TestEngine_BeforeStartErrorAborts(t *testing.T) {
	var published atomic.Bool
	var exitErr error
	e := NewEngine(
		WithLogger(testLogger(t)),
		WithBeforeStart(func(context.Context) error { return errors.New("not ready") }),
		WithOnExit(func(_ context.Context, err error) { exitErr = err }),
	)
	require.NoError(t, e.AddPublisher("p", NewPublisher(Declaration{}, func(context.Context, *Proxy) error {
		published.Store(true)
		return nil
	})))

	err := e.Run(context.Background())
	assert.ErrorContains(t, err, "before start: not ready")
	assert.Equal(t, err, exitErr)
	assert.False(t, published.Load())
}

func TestEngine_WithConfigOptions(t *testing.T) {
	e := NewEngine(WithChannelCapacity(3), WithRunID("run-42"))
	require.NoError(t, e.AddSubscriber("sink", NewSubscriber(Declaration{Consumes: kinds(kindKline)}, noopHandle)))

	assert.Equal(t, "run-42", e.cfg.runID)
	assert.Equal(t, 3, cap(e.regs[0].inboxes[kindKline].ch))

	e = NewEngine(WithChannelCapacity(0))
	assert.Equal(t, DefaultChannelCapacity, e.cfg.channelCapacity)
}
