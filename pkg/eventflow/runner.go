package eventflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/eventflow/pkg/eventflow/deadletter"
	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
	"go.opentelemetry.io/otel/trace"
)

const (
	rolePublisher  = "publisher"
	roleSubscriber = "subscriber"
)

// runner is one unit of execution with its own goroutine.
type runner interface {
	name() string
	role() string
	run(ctx context.Context) error
	handled() int64
}

// guard runs fn and converts a panic into a *PanicError.
func guard(runnerName string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Runner: runnerName,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return fn()
}

// lifecycle wraps body with the app's optional Start and Stop hooks.
// body is skipped when Start fails, and a body ending because ctx is done
// counts as success. Stop always runs, on a context that is not cancelled
// with ctx.
func lifecycle(ctx context.Context, runnerName string, app any, body func() error) error {
	var err error
	if s, ok := app.(Starter); ok {
		if startErr := guard(runnerName, func() error { return s.Start(ctx) }); startErr != nil {
			err = fmt.Errorf("start: %w", startErr)
		}
	}

	if err == nil {
		err = body()
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			err = nil
		}
	}

	if s, ok := app.(Stopper); ok {
		stopCtx := context.WithoutCancel(ctx)
		if stopErr := guard(runnerName, func() error { return s.Stop(stopCtx) }); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("stop: %w", stopErr))
		}
	}
	return err
}

type publisherRunner struct {
	runnerName string
	app        Publisher
	out        *Proxy
}

func (r *publisherRunner) name() string   { return r.runnerName }
func (r *publisherRunner) role() string   { return rolePublisher }
func (r *publisherRunner) handled() int64 { return 0 }

// run calls Publish exactly once. Its return is the runner's exit.
func (r *publisherRunner) run(ctx context.Context) error {
	return lifecycle(ctx, r.runnerName, r.app, func() error {
		return guard(r.runnerName, func() error { return r.app.Publish(ctx, r.out) })
	})
}

type subscriberRunner struct {
	runnerName string
	app        Subscriber
	// inboxes holds one inbound channel per distinct consumed kind, in declaration order.
	inboxes []*inbox
	inst    instruments
	count   int64
}

func (r *subscriberRunner) name() string   { return r.runnerName }
func (r *subscriberRunner) role() string   { return roleSubscriber }
func (r *subscriberRunner) handled() int64 { return r.count }

// run waits on every inbound channel and hands each envelope to Handle.
// On exit every inbox is marked gone so producers stop waiting on it.
func (r *subscriberRunner) run(ctx context.Context) error {
	defer func() {
		for _, in := range r.inboxes {
			in.markGone()
		}
	}()
	return lifecycle(ctx, r.runnerName, r.app, func() error {
		return r.loop(ctx)
	})
}

func (r *subscriberRunner) loop(ctx context.Context) error {
	cases := make([]reflect.SelectCase, len(r.inboxes)+1)
	cases[0] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())}
	for i, in := range r.inboxes {
		cases[i+1] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(in.ch)}
	}

	// Inbox channels are never closed, so a receive always yields a value.
	for {
		chosen, value, _ := reflect.Select(cases)
		if chosen == 0 {
			return ctx.Err()
		}

		env, _ := value.Interface().(event.Envelope)
		if env == nil {
			continue
		}

		var pe *PanicError
		if err := r.handle(ctx, env); errors.As(err, &pe) {
			return err
		}
	}
}

// handle invokes the app for one envelope. Errors other than panics are
// reported here and do not stop the loop. A failed forward was already
// dead-lettered by the proxy and is not recorded a second time.
func (r *subscriberRunner) handle(ctx context.Context, env event.Envelope) error {
	kind := env.Kind().String()

	handleCtx := ctx
	var span trace.Span
	if r.inst.tracing {
		handleCtx, span = r.inst.spans.StartHandleSpan(ctx, r.runnerName, kind, env.ID())
	}

	start := time.Now()
	err := guard(r.runnerName, func() error { return r.app.Handle(handleCtx, env) })
	r.inst.metrics.RecordHandle(ctx, r.runnerName, kind, time.Since(start), err)
	r.count++

	if r.inst.tracing {
		r.inst.spans.EndSpanWithError(span, err)
	}

	if err == nil {
		return nil
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		return err
	}

	herr := &HandleError{Runner: r.runnerName, Kind: env.Kind(), EnvelopeID: env.ID(), Err: err}
	observability.LogHandleError(r.inst.logger, kind, env.ID(), err)
	var de *DeliveryError
	if errors.As(err, &de) {
		return herr
	}
	r.inst.recordDeadLetter(ctx, deadletter.NewRecord(
		r.runnerName, r.runnerName, kind, env.ID(),
		deadletter.ReasonHandlerError, err, env.PayloadBytes(),
	))
	return herr
}
