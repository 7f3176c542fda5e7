// Package deadletter records failures reported by an eventflow engine.
//
// A record describes a delivery that could not reach its destination or a
// handler that returned an error. Records are kept for inspection; they are
// not replayed.
package deadletter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Reason classifies a failure record.
type Reason string

const (
	// ReasonConsumerGone means the destination runner had exited.
	ReasonConsumerGone Reason = "consumer_gone"

	// ReasonHandlerError means a subscriber handler returned an error.
	ReasonHandlerError Reason = "handler_error"
)

// Record describes one reported failure.
type Record struct {
	ID          string    `json:"id"`
	Runner      string    `json:"runner"`
	Destination string    `json:"destination,omitempty"`
	Kind        string    `json:"kind"`
	EnvelopeID  string    `json:"envelope_id"`
	Reason      Reason    `json:"reason"`
	Error       string    `json:"error"`
	Payload     []byte    `json:"payload,omitempty"`
	At          time.Time `json:"at"`
}

// NewRecord creates a record stamped with a fresh ID and the current time.
func NewRecord(runner, destination, kind, envelopeID string, reason Reason, err error, payload []byte) Record {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Record{
		ID:          uuid.New().String(),
		Runner:      runner,
		Destination: destination,
		Kind:        kind,
		EnvelopeID:  envelopeID,
		Reason:      reason,
		Error:       msg,
		Payload:     payload,
		At:          time.Now().UTC(),
	}
}

// Store persists failure records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record stores a failure.
	Record(ctx context.Context, rec Record) error

	// List returns up to limit records, oldest first.
	// A limit <= 0 returns all records.
	List(ctx context.Context, limit int) ([]Record, error)

	// ListByKind returns up to limit records of one kind, oldest first.
	ListByKind(ctx context.Context, kind string, limit int) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// CountByKind returns record counts grouped by kind.
	CountByKind(ctx context.Context) (map[string]int, error)

	// Close releases any resources.
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("dead letter store closed")
