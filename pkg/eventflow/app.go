package eventflow

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
)

// Publisher is an app that originates envelopes.
//
// Publish is called once with the runner's proxy and may run for as long as
// it likes; its return ends the runner. It is never re-invoked or retried.
// Publish should return when ctx is cancelled.
type Publisher interface {
	Produces() []event.Kind
	Publish(ctx context.Context, out *Proxy) error
}

// Subscriber is an app that reacts to envelopes of the kinds it consumes.
//
// Handle is called synchronously from the runner goroutine, one envelope at a
// time. A returned error is logged and recorded, and the runner keeps going.
type Subscriber interface {
	Consumes() []event.Kind
	Handle(ctx context.Context, env event.Envelope) error
}

// Producer is implemented by subscribers that also emit envelopes.
// Subscribers that do not implement it produce nothing.
type Producer interface {
	Produces() []event.Kind
}

// ProxyBinder receives the subscriber's outbound proxy before the engine
// starts any runner. Subscribers that produce kinds must implement it.
type ProxyBinder interface {
	BindProxy(out *Proxy)
}

// Starter is implemented by apps with a before-start hook.
// A Start error ends the runner before it processes anything.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by apps with an exit hook.
// Stop runs when the runner ends for any reason, including a panic.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Declaration lists the kinds an adapter app consumes and produces.
type Declaration struct {
	Consumes []event.Kind
	Produces []event.Kind
}

// PublishFunc is the body of a function-backed publisher.
type PublishFunc func(ctx context.Context, out *Proxy) error

// HandleFunc is the body of a function-backed subscriber.
// out routes the kinds listed in the declaration's Produces.
type HandleFunc func(ctx context.Context, env event.Envelope, out *Proxy) error

// TickFunc is called on every tick of a ticker publisher.
type TickFunc func(ctx context.Context, now time.Time, out *Proxy) error

type funcPublisher struct {
	produces []event.Kind
	fn       PublishFunc
}

// NewPublisher builds a Publisher from a function.
// Panics if fn is nil.
//
// Example:
//
//	pub := eventflow.NewPublisher(
//	    eventflow.Declaration{Produces: []event.Kind{event.KindOf[Kline]()}},
//	    func(ctx context.Context, out *eventflow.Proxy) error {
//	        return out.Send(ctx, event.New(Kline{Symbol: "BTCUSDT"}))
//	    },
//	)
func NewPublisher(decl Declaration, fn PublishFunc) Publisher {
	if fn == nil {
		panic("eventflow: NewPublisher requires a non-nil function")
	}
	return &funcPublisher{produces: decl.Produces, fn: fn}
}

func (p *funcPublisher) Produces() []event.Kind { return p.produces }

func (p *funcPublisher) Publish(ctx context.Context, out *Proxy) error {
	return p.fn(ctx, out)
}

type funcSubscriber struct {
	decl Declaration
	fn   HandleFunc
	out  *Proxy
}

// NewSubscriber builds a Subscriber from a function. The returned value
// implements Producer and ProxyBinder, so it may emit the kinds in
// decl.Produces through the proxy passed to fn.
// Panics if fn is nil.
func NewSubscriber(decl Declaration, fn HandleFunc) Subscriber {
	if fn == nil {
		panic("eventflow: NewSubscriber requires a non-nil function")
	}
	return &funcSubscriber{decl: decl, fn: fn}
}

func (s *funcSubscriber) Consumes() []event.Kind { return s.decl.Consumes }

func (s *funcSubscriber) Produces() []event.Kind { return s.decl.Produces }

func (s *funcSubscriber) BindProxy(out *Proxy) { s.out = out }

func (s *funcSubscriber) Handle(ctx context.Context, env event.Envelope) error {
	return s.fn(ctx, env, s.out)
}

type tickerConfig struct {
	runAtOnce bool
}

// TickerOption configures a ticker publisher.
type TickerOption func(*tickerConfig)

// RunAtOnce fires the first tick immediately instead of after one interval.
func RunAtOnce(enabled bool) TickerOption {
	return func(c *tickerConfig) {
		c.runAtOnce = enabled
	}
}

type tickerPublisher struct {
	produces []event.Kind
	interval time.Duration
	fn       TickFunc
	cfg      tickerConfig
}

// NewTicker builds a Publisher that calls fn every interval until the
// context is cancelled or fn returns an error.
// Panics if fn is nil or interval is not positive.
func NewTicker(decl Declaration, interval time.Duration, fn TickFunc, opts ...TickerOption) Publisher {
	if fn == nil {
		panic("eventflow: NewTicker requires a non-nil function")
	}
	if interval <= 0 {
		panic(fmt.Sprintf("eventflow: NewTicker requires a positive interval, got %s", interval))
	}
	t := &tickerPublisher{produces: decl.Produces, interval: interval, fn: fn}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	return t
}

func (t *tickerPublisher) Produces() []event.Kind { return t.produces }

func (t *tickerPublisher) Publish(ctx context.Context, out *Proxy) error {
	if t.cfg.runAtOnce {
		if err := t.fn(ctx, time.Now(), out); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := t.fn(ctx, now, out); err != nil {
				return err
			}
		}
	}
}
