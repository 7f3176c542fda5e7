package eventflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/randalmurphal/eventflow/pkg/eventflow/deadletter"
	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// inbox is the receiving side of one subscriber for one kind.
// ch is never closed; gone is closed once the owning runner has exited.
type inbox struct {
	consumer string
	kind     event.Kind
	ch       chan event.Envelope
	gone     chan struct{}
	goneOnce sync.Once
}

func newInbox(consumer string, kind event.Kind, capacity int) *inbox {
	return &inbox{
		consumer: consumer,
		kind:     kind,
		ch:       make(chan event.Envelope, capacity),
		gone:     make(chan struct{}),
	}
}

func (b *inbox) markGone() {
	b.goneOnce.Do(func() { close(b.gone) })
}

func (b *inbox) isGone() bool {
	select {
	case <-b.gone:
		return true
	default:
		return false
	}
}

// instruments are the observability hooks shared by proxies and runners.
type instruments struct {
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	tracing     bool
	deadLetters deadletter.Store
}

func (in instruments) recordDeadLetter(ctx context.Context, rec deadletter.Record) {
	if in.deadLetters == nil {
		return
	}
	if err := in.deadLetters.Record(context.WithoutCancel(ctx), rec); err != nil {
		observability.LogDeadLetterError(in.logger, err)
	}
}

// Proxy is the outbound handle of one runner: a frozen map from every kind the
// runner produces to the inbound channels of the subscribers consuming it.
//
// A Proxy is immutable once the engine has built it and safe for concurrent
// use. The nil *Proxy routes nothing.
type Proxy struct {
	owner  string
	kinds  []event.Kind
	routes map[event.Kind][]*inbox
	inst   instruments
}

func newProxy(owner string, kinds []event.Kind, routes map[event.Kind][]*inbox, inst instruments) *Proxy {
	return &Proxy{owner: owner, kinds: kinds, routes: routes, inst: inst}
}

// Owner returns the name of the runner the proxy belongs to.
func (p *Proxy) Owner() string {
	if p == nil {
		return ""
	}
	return p.owner
}

// Kinds returns the produced kinds in declaration order, including kinds
// nobody consumes.
func (p *Proxy) Kinds() []event.Kind {
	if p == nil {
		return nil
	}
	return append([]event.Kind(nil), p.kinds...)
}

// Destinations returns the consumer names for kind in registration order.
// The second result is false when kind is not routed at all.
func (p *Proxy) Destinations(kind event.Kind) ([]string, bool) {
	if p == nil {
		return nil, false
	}
	dests, ok := p.routes[kind]
	if !ok {
		return nil, false
	}
	names := make([]string, len(dests))
	for i, d := range dests {
		names[i] = d.consumer
	}
	return names, true
}

// Send delivers env to every subscriber consuming env.Kind().
//
// A kind with no consumers, whether undeclared or declared but consumed by
// nobody, is dropped silently and Send returns nil. Otherwise every destination gets the same envelope. Destinations with
// buffer space are served first without blocking; Send then blocks only on
// the full ones, so a slow consumer never delays a fast one.
//
// A destination whose runner has exited yields a *DeliveryError wrapping
// ErrConsumerGone; the remaining destinations are still served and all
// failures are joined in the result. If ctx is cancelled while blocked,
// Send returns ctx.Err() joined with any failures seen so far.
func (p *Proxy) Send(ctx context.Context, env event.Envelope) error {
	if p == nil || env == nil {
		return nil
	}

	kind := env.Kind()
	dests := p.routes[kind]
	if len(dests) == 0 {
		p.inst.metrics.RecordUnrouted(ctx, p.owner, kind.String())
		observability.LogUnrouted(p.inst.logger, kind.String(), env.ID())
		return nil
	}

	var errs []error
	var full []*inbox
	delivered := 0
	for _, d := range dests {
		if d.isGone() {
			errs = append(errs, p.fail(ctx, d, env))
			continue
		}
		select {
		case d.ch <- env:
			delivered++
		default:
			full = append(full, d)
		}
	}

	for _, d := range full {
		select {
		case d.ch <- env:
			delivered++
		case <-d.gone:
			errs = append(errs, p.fail(ctx, d, env))
		case <-ctx.Done():
			p.inst.metrics.RecordSend(ctx, p.owner, kind.String(), delivered)
			return errors.Join(append(errs, ctx.Err())...)
		}
	}

	p.inst.metrics.RecordSend(ctx, p.owner, kind.String(), delivered)
	return errors.Join(errs...)
}

func (p *Proxy) fail(ctx context.Context, d *inbox, env event.Envelope) error {
	err := &DeliveryError{
		Producer:    p.owner,
		Destination: d.consumer,
		Kind:        d.kind,
		EnvelopeID:  env.ID(),
		Err:         ErrConsumerGone,
	}
	kind := d.kind.String()
	observability.LogDeliveryFailure(p.inst.logger, d.consumer, kind, err)
	p.inst.metrics.RecordDeliveryFailure(ctx, p.owner, d.consumer, kind)
	p.inst.recordDeadLetter(ctx, deadletter.NewRecord(
		p.owner, d.consumer, kind, env.ID(),
		deadletter.ReasonConsumerGone, ErrConsumerGone, env.PayloadBytes(),
	))
	return err
}
