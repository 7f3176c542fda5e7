package eventflow

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
)

// Sentinel errors for app registration.
var (
	// ErrEmptyName indicates a runner was registered without a name.
	ErrEmptyName = errors.New("runner name cannot be empty")

	// ErrDuplicateName indicates two runners share a name.
	ErrDuplicateName = errors.New("duplicate runner name")

	// ErrNilApp indicates a nil publisher or subscriber was registered.
	ErrNilApp = errors.New("app cannot be nil")

	// ErrNoConsumedKinds indicates a subscriber declared no consumed kinds.
	ErrNoConsumedKinds = errors.New("subscriber must consume at least one kind")

	// ErrZeroKind indicates a declaration contains the zero Kind.
	ErrZeroKind = errors.New("declaration contains a zero kind")

	// ErrProxyNotBindable indicates a subscriber produces kinds but has no way to receive its proxy.
	ErrProxyNotBindable = errors.New("subscriber produces kinds but does not implement ProxyBinder")

	// ErrEngineConsumed indicates the engine was already run.
	ErrEngineConsumed = errors.New("engine already run")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrConsumerGone indicates the destination's runner has exited and will never receive again.
	ErrConsumerGone = errors.New("consumer runner has exited")
)

// ConfigError wraps a registration failure with the runner it concerns.
type ConfigError struct {
	// Runner is the name passed to AddPublisher or AddSubscriber.
	Runner string
	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure runner %q: %v", e.Runner, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DeliveryError reports one envelope that could not reach one destination.
type DeliveryError struct {
	// Producer is the runner that called Send.
	Producer string
	// Destination is the consuming runner.
	Destination string
	// Kind is the envelope kind.
	Kind event.Kind
	// EnvelopeID identifies the envelope.
	EnvelopeID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s %s from %s to %s: %v", e.Kind, e.EnvelopeID, e.Producer, e.Destination, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// HandleError wraps an error returned by a subscriber's Handle.
type HandleError struct {
	Runner     string
	Kind       event.Kind
	EnvelopeID string
	Err        error
}

// Error implements the error interface.
func (e *HandleError) Error() string {
	return fmt.Sprintf("runner %s: handle %s %s: %v", e.Runner, e.Kind, e.EnvelopeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HandleError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by app code.
// It includes the stack trace for debugging.
type PanicError struct {
	// Runner is the runner that panicked.
	Runner string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("runner %s panicked: %v", e.Runner, e.Value)
}

// RunnerError reports an abnormal runner exit.
type RunnerError struct {
	// Runner is the runner name.
	Runner string
	// Role is "publisher" or "subscriber".
	Role string
	// Err is what ended the runner.
	Err error
}

// Error implements the error interface.
func (e *RunnerError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Role, e.Runner, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RunnerError) Unwrap() error {
	return e.Err
}
