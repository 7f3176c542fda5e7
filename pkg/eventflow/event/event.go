package event

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope is an immutable carrier of one event value plus its kind.
// The same envelope is shared by every consumer it is delivered to,
// so implementations must not be mutated after construction.
type Envelope interface {
	// ID returns the unique envelope identifier.
	ID() string

	// Kind returns the routing kind.
	Kind() Kind

	// Timestamp returns when the envelope was created.
	Timestamp() time.Time

	// Payload returns the carried value.
	Payload() any

	// PayloadBytes returns the JSON encoding of the payload, or nil
	// if it cannot be encoded.
	PayloadBytes() []byte
}

// Typed is the generic Envelope implementation.
// T is the payload type for type-safe access.
type Typed[T any] struct {
	id        string
	kind      Kind
	timestamp time.Time
	payload   T

	encodeOnce sync.Once
	encoded    []byte
}

// ID returns the unique envelope identifier.
func (e *Typed[T]) ID() string {
	return e.id
}

// Kind returns the routing kind.
func (e *Typed[T]) Kind() Kind {
	return e.kind
}

// Timestamp returns when the envelope was created.
func (e *Typed[T]) Timestamp() time.Time {
	return e.timestamp
}

// Payload returns the carried value.
func (e *Typed[T]) Payload() any {
	return e.payload
}

// Value returns the strongly-typed payload.
func (e *Typed[T]) Value() T {
	return e.payload
}

// PayloadBytes returns the JSON encoded payload.
// The encoding is computed once; concurrent consumers may call it safely.
func (e *Typed[T]) PayloadBytes() []byte {
	e.encodeOnce.Do(func() {
		// Best effort, an unencodable payload yields nil
		e.encoded, _ = json.Marshal(e.payload)
	})
	return e.encoded
}

// Option configures envelope creation.
type Option func(*envelopeConfig)

type envelopeConfig struct {
	id        string
	timestamp time.Time
}

// WithID sets a specific envelope ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(cfg *envelopeConfig) {
		cfg.id = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(cfg *envelopeConfig) {
		cfg.timestamp = t
	}
}

// New wraps payload in an envelope of kind KindOf[T]().
//
//	env := event.New(Kline{Symbol: "BTCUSDT", Close: 1.2})
func New[T any](payload T, opts ...Option) *Typed[T] {
	return NewWithKind(KindOf[T](), payload, opts...)
}

// NewWithKind wraps payload in an envelope of an explicit kind.
func NewWithKind[T any](kind Kind, payload T, opts ...Option) *Typed[T] {
	cfg := &envelopeConfig{
		id:        uuid.New().String(),
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Typed[T]{
		id:        cfg.id,
		kind:      kind,
		timestamp: cfg.timestamp,
		payload:   payload,
	}
}

// As extracts the payload of env as T.
// It returns false if env is nil or carries a different payload type;
// a mismatch is never a panic.
func As[T any](env Envelope) (T, bool) {
	var zero T
	if env == nil {
		return zero, false
	}
	if typed, ok := env.(*Typed[T]); ok {
		return typed.payload, true
	}
	v, ok := env.Payload().(T)
	if !ok {
		return zero, false
	}
	return v, true
}
