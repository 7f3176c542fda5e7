// Package registry maps app type names to factories so the set of apps an
// engine runs can be declared in configuration.
//
// # Basic Usage
//
// Register a factory per app type, then build every app listed in the config:
//
//	r := registry.New()
//	r.RegisterPublisher("kline_publisher", func(app config.AppConfig) (eventflow.Publisher, error) {
//	    return NewKlinePublisher(app.Settings.Duration("interval", time.Second)), nil
//	})
//	r.RegisterSubscriber("market_maker", func(config.AppConfig) (eventflow.Subscriber, error) {
//	    return NewMarketMaker(), nil
//	})
//
//	engine := eventflow.NewEngine()
//	if err := r.Build(engine, cfg.Apps); err != nil {
//	    log.Fatal(err)
//	}
//
// Build reports every failing app at once, joined with errors.Join.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package registry
