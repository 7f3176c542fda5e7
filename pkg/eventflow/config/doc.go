// Package config loads eventflow engine configuration.
//
// Configuration is an explicit value: load it once in the bootstrap code and
// pass it on. Files may be YAML or JSON; EVENTFLOW_* environment variables
// override file values.
//
//	channel_capacity: 100
//	metrics: true
//	log:
//	  level: debug
//	  format: json
//	dead_letter:
//	  driver: sqlite
//	  path: ./deadletters.db
//	apps:
//	  - name: klines
//	    type: kline_publisher
//	    settings:
//	      symbol: BTCUSDT
//	      interval: 1s
//
// Per-app settings are exposed as a Section with typed accessors that fall
// back to a default:
//
//	interval := app.Settings.Duration("interval", time.Second)
package config
