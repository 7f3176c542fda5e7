// Package event defines the envelope that flows between eventflow apps.
//
// # Kinds
//
// Every envelope carries a Kind, the only key used for routing. Kinds are
// usually derived from the payload type:
//
//	type Kline struct {
//	    Symbol string
//	    Close  float64
//	}
//
//	kind := event.KindOf[Kline]()
//
// NamedKind creates a kind from a stable name when no Go type is at hand.
//
// # Envelopes
//
// New wraps a payload and stamps it with an ID and timestamp:
//
//	env := event.New(Kline{Symbol: "BTCUSDT", Close: 1.2})
//
// Envelopes are immutable and shared by reference between all consumers.
//
// # Extraction
//
// Consumers extract payloads with As. A mismatch reports false:
//
//	if k, ok := event.As[Kline](env); ok {
//	    fmt.Println(k.Close)
//	}
package event
