package eventflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// Engine wires publishers and subscribers together and runs them.
//
// Register every app with AddPublisher and AddSubscriber, then call Run once.
// Routing is derived from the kinds each app declares; there is no explicit
// wiring between apps.
type Engine struct {
	mu       sync.Mutex
	cfg      engineConfig
	regs     []*registration
	names    map[string]bool
	consumed bool
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		cfg:   cfg,
		names: make(map[string]bool),
	}
}

// AddPublisher registers a publisher under name.
// Returns a *ConfigError for an empty or duplicate name, a nil app, a zero
// kind in Produces, or an engine that has already run.
func (e *Engine) AddPublisher(name string, app Publisher) error {
	if app == nil {
		return &ConfigError{Runner: name, Err: ErrNilApp}
	}
	produces := app.Produces()
	if hasZeroKind(produces) {
		return &ConfigError{Runner: name, Err: ErrZeroKind}
	}

	return e.register(&registration{
		name:      name,
		role:      rolePublisher,
		produces:  uniqueKinds(produces),
		publisher: app,
	})
}

// AddSubscriber registers a subscriber under name and creates one bounded
// inbound channel per distinct consumed kind.
//
// Subscribers that implement Producer may emit kinds as well; they must then
// implement ProxyBinder to receive their outbound proxy.
func (e *Engine) AddSubscriber(name string, app Subscriber) error {
	if app == nil {
		return &ConfigError{Runner: name, Err: ErrNilApp}
	}

	consumes := app.Consumes()
	if len(consumes) == 0 {
		return &ConfigError{Runner: name, Err: ErrNoConsumedKinds}
	}
	var produces []event.Kind
	if p, ok := app.(Producer); ok {
		produces = p.Produces()
	}
	if hasZeroKind(consumes) || hasZeroKind(produces) {
		return &ConfigError{Runner: name, Err: ErrZeroKind}
	}
	if _, ok := app.(ProxyBinder); len(produces) > 0 && !ok {
		return &ConfigError{Runner: name, Err: ErrProxyNotBindable}
	}

	reg := &registration{
		name:       name,
		role:       roleSubscriber,
		consumes:   uniqueKinds(consumes),
		produces:   uniqueKinds(produces),
		subscriber: app,
		inboxes:    make(map[event.Kind]*inbox, len(consumes)),
	}
	for _, k := range reg.consumes {
		reg.inboxes[k] = newInbox(name, k, e.cfg.channelCapacity)
	}
	return e.register(reg)
}

func (e *Engine) register(reg *registration) error {
	if reg.name == "" {
		return &ConfigError{Runner: reg.name, Err: ErrEmptyName}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.consumed {
		return &ConfigError{Runner: reg.name, Err: ErrEngineConsumed}
	}
	if e.names[reg.name] {
		return &ConfigError{Runner: reg.name, Err: ErrDuplicateName}
	}
	e.names[reg.name] = true
	e.regs = append(e.regs, reg)
	return nil
}

// Topology returns the routing Run would build for the current registrations.
// It has no side effects; repeated calls return equal values.
func (e *Engine) Topology() Topology {
	e.mu.Lock()
	defer e.mu.Unlock()
	return buildTopology(e.regs)
}

// Run builds the routing, starts one goroutine per runner (subscribers
// first, then publishers) and blocks until every runner has returned.
//
// The engine is single-use: a second call returns ErrEngineConsumed.
// Cancelling ctx is the graceful stop; runners ending because of it are
// normal exits. With a context that is never cancelled, Run blocks for as
// long as any subscriber is alive.
//
// A runner ending in error or panic never affects the others. Run returns
// the abnormal exits joined together, each as a *RunnerError.
func (e *Engine) Run(ctx context.Context) (runErr error) {
	if ctx == nil {
		return ErrNilContext
	}

	e.mu.Lock()
	if e.consumed {
		e.mu.Unlock()
		return ErrEngineConsumed
	}
	e.consumed = true
	regs := append([]*registration(nil), e.regs...)
	e.mu.Unlock()

	cfg := e.cfg
	runID := cfg.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	runners := e.wire(regs, runID)

	elapsed := observability.TimedOperation()
	publishers := 0
	for _, r := range runners {
		if r.role() == rolePublisher {
			publishers++
		}
	}
	observability.LogEngineStart(cfg.logger, runID, publishers, len(runners)-publishers)

	runCtx := ctx
	var runSpan trace.Span
	if cfg.tracingEnabled {
		runCtx, runSpan = cfg.spans.StartRunSpan(ctx, runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	defer func() {
		exitCtx := context.WithoutCancel(ctx)
		for _, hook := range cfg.onExit {
			hook(exitCtx, runErr)
		}
	}()

	for _, hook := range cfg.beforeStart {
		if err := hook(runCtx); err != nil {
			for _, reg := range regs {
				for _, in := range reg.inboxes {
					in.markGone()
				}
			}
			return fmt.Errorf("before start: %w", err)
		}
	}

	errs := make([]error, len(runners))
	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.execute(runCtx, runID, r)
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	observability.LogEngineStop(cfg.logger, runID, elapsed(), failed)

	return errors.Join(errs...)
}

// wire builds every proxy from a single routing pass and returns the
// runners, subscribers first. Proxies are never modified afterwards.
func (e *Engine) wire(regs []*registration, runID string) []runner {
	cfg := e.cfg
	consumers := consumerTable(regs)

	subs := make([]runner, 0, len(regs))
	pubs := make([]runner, 0, len(regs))
	for _, reg := range regs {
		inst := instruments{
			logger:      observability.EnrichLogger(cfg.logger, runID, reg.name, reg.role),
			metrics:     cfg.metrics,
			spans:       cfg.spans,
			tracing:     cfg.tracingEnabled,
			deadLetters: cfg.deadLetters,
		}

		routes := outboundTable(reg.produces, consumers)
		for _, k := range reg.produces {
			observability.LogRoute(cfg.logger, reg.name, k.String(), inboxNames(routes[k]))
		}
		out := newProxy(reg.name, reg.produces, routes, inst)

		switch reg.role {
		case rolePublisher:
			pubs = append(pubs, &publisherRunner{runnerName: reg.name, app: reg.publisher, out: out})
		case roleSubscriber:
			if b, ok := reg.subscriber.(ProxyBinder); ok {
				b.BindProxy(out)
			}
			subs = append(subs, &subscriberRunner{
				runnerName: reg.name,
				app:        reg.subscriber,
				inboxes:    reg.orderedInboxes(),
				inst:       inst,
			})
		}
	}
	return append(subs, pubs...)
}

// execute runs one runner to completion on the calling goroutine.
func (e *Engine) execute(ctx context.Context, runID string, r runner) error {
	logger := observability.EnrichLogger(e.cfg.logger, runID, r.name(), r.role())
	observability.LogRunnerStart(logger)

	err := r.run(ctx)
	if ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())) {
		err = nil
	}

	if err != nil {
		observability.LogRunnerError(logger, err)
		e.cfg.metrics.RecordRunnerExit(ctx, r.name(), err)
		return &RunnerError{Runner: r.name(), Role: r.role(), Err: err}
	}
	e.cfg.metrics.RecordRunnerExit(ctx, r.name(), nil)
	observability.LogRunnerExit(logger, r.handled())
	return nil
}
