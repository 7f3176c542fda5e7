/*
Package eventflow provides an in-process publish/subscribe runtime.

# Overview

An application is a set of apps. Publishers originate envelopes; subscribers
react to them and may emit envelopes of their own. Each app declares the
event kinds it consumes and produces, and the engine derives all routing from
those declarations. Every app runs on its own goroutine and talks to the
others only through bounded channels.

# Basic Usage

	type Kline struct {
	    Symbol string
	    Close  float64
	}

	type Price struct {
	    Symbol string
	    Price  float64
	}

	klines := eventflow.NewTicker(
	    eventflow.Declaration{Produces: []event.Kind{event.KindOf[Kline]()}},
	    time.Second,
	    func(ctx context.Context, _ time.Time, out *eventflow.Proxy) error {
	        return out.Send(ctx, event.New(Kline{Symbol: "BTCUSDT", Close: 1.2}))
	    },
	)

	maker := eventflow.NewSubscriber(
	    eventflow.Declaration{
	        Consumes: []event.Kind{event.KindOf[Kline]()},
	        Produces: []event.Kind{event.KindOf[Price]()},
	    },
	    func(ctx context.Context, env event.Envelope, out *eventflow.Proxy) error {
	        k, ok := event.As[Kline](env)
	        if !ok {
	            return nil
	        }
	        return out.Send(ctx, event.New(Price{Symbol: k.Symbol, Price: k.Close}))
	    },
	)

	engine := eventflow.NewEngine(eventflow.WithLogger(logger))
	if err := engine.AddPublisher("klines", klines); err != nil {
	    log.Fatal(err)
	}
	if err := engine.AddSubscriber("maker", maker); err != nil {
	    log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := engine.Run(ctx); err != nil {
	    log.Fatal(err)
	}

# Routing

Before any goroutine starts, Run gives every subscriber one bounded channel
per consumed kind and every producing runner a private Proxy mapping each
produced kind to the channels of its consumers. Proxies never change after
that. Sending a kind nobody consumes is a silent no-op.

Use Engine.Topology to inspect the routing without running anything.

# Delivery

Every consumer of a kind receives the same envelope. A full channel blocks
only the send to that consumer. When a consumer's runner has exited, Send
reports a *DeliveryError wrapping ErrConsumerGone and keeps delivering to the
rest. Within one kind's channel envelopes arrive in send order; there is no
ordering across kinds.

# Failure Isolation

Handler errors are logged and the subscriber keeps going. A panic in app code
is recovered and ends only that runner. Run returns the abnormal exits joined
together as *RunnerError values.

# Observability

Logging uses log/slog via WithLogger. WithMetrics and WithTracing enable
OpenTelemetry instruments on the global providers. WithDeadLetterStore
records delivery and handler failures; see package deadletter.
*/
package eventflow
