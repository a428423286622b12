package store

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrConflict signals a (aggregate_id, sequence) collision on commit.
	// The caller must reload the aggregate and recompute its command
	// against fresh state before retrying; the store never retries itself.
	ErrConflict = errors.New("sequence conflict: retry command against fresh state")

	ErrEmptyBatch      = errors.New("event batch must not be empty")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Event is an immutable fact in an aggregate's history.
// (AggregateID, Sequence) is unique across the whole log; the timestamp is
// caller-supplied and never re-derived by the store.
type Event struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	Sequence    int             `json:"sequence"`
	Type        string          `json:"type"`
	Body        json.RawMessage `json:"body"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Snapshot is the cached materialization of an aggregate's state through
// Sequence. At most one snapshot exists per aggregate; it is replaced only
// by a snapshot with a strictly greater sequence.
type Snapshot struct {
	AggregateID string          `json:"aggregate_id"`
	Sequence    int             `json:"sequence"`
	Body        json.RawMessage `json:"body"`
	CreatedAt   time.Time       `json:"created_at"`
}
