package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the single entry point for the event log and snapshot cache.
// It normalizes inputs, stamps event IDs, and delegates to the adapter it
// was constructed with. It performs no retries: on ErrConflict the caller
// recomputes its command against fresh state and resubmits.
type Store struct {
	adapter Adapter
}

// New creates a Store backed by the given adapter.
func New(adapter Adapter) *Store {
	return &Store{adapter: adapter}
}

// CommitEvents persists the batch as a single atomic unit and returns the
// events with their assigned IDs. On a sequence collision nothing is
// persisted and ErrConflict is returned; any other failure is a transport
// error surfaced verbatim.
func (s *Store) CommitEvents(ctx context.Context, events []Event) ([]Event, error) {
	if len(events) == 0 {
		return nil, ErrEmptyBatch
	}

	// A batch that collides with itself would surface as a backend
	// uniqueness violation anyway; rejecting it here keeps the signal
	// identical across adapters.
	seen := make(map[string]map[int]bool, 1)
	stamped := make([]Event, len(events))
	for i, e := range events {
		if e.AggregateID == "" {
			return nil, fmt.Errorf("%w: event %d has no aggregate id", ErrInvalidEvent, i)
		}
		if e.Sequence < 1 {
			return nil, fmt.Errorf("%w: event %d has sequence %d, must be positive", ErrInvalidEvent, i, e.Sequence)
		}
		if seen[e.AggregateID][e.Sequence] {
			return nil, ErrConflict
		}
		if seen[e.AggregateID] == nil {
			seen[e.AggregateID] = make(map[int]bool)
		}
		seen[e.AggregateID][e.Sequence] = true

		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		stamped[i] = e
	}

	if err := s.adapter.CommitEvents(ctx, stamped); err != nil {
		return nil, err
	}
	return stamped, nil
}

// GetEvents returns the aggregate's events with sequence > afterSequence
// in ascending sequence order. An unknown aggregate or an afterSequence at
// or beyond the log tail yields an empty slice, never an error.
func (s *Store) GetEvents(ctx context.Context, aggregateID string, afterSequence int) ([]Event, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("%w: no aggregate id", ErrInvalidEvent)
	}
	return s.adapter.GetEvents(ctx, aggregateID, afterSequence)
}

// CommitSnapshot caches the snapshot unless a snapshot with an equal or
// greater sequence already exists, in which case the call is a no-op.
func (s *Store) CommitSnapshot(ctx context.Context, snapshot Snapshot) error {
	if snapshot.AggregateID == "" {
		return fmt.Errorf("%w: no aggregate id", ErrInvalidSnapshot)
	}
	if snapshot.Sequence < 1 {
		return fmt.Errorf("%w: sequence %d, must be positive", ErrInvalidSnapshot, snapshot.Sequence)
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}
	return s.adapter.CommitSnapshot(ctx, snapshot)
}

// GetSnapshot returns the cached snapshot when it is fresh enough, i.e.
// its sequence is >= minSequence. A missing or stale snapshot yields
// (nil, nil); the caller falls back to replaying the event log.
func (s *Store) GetSnapshot(ctx context.Context, aggregateID string, minSequence int) (*Snapshot, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("%w: no aggregate id", ErrInvalidSnapshot)
	}
	return s.adapter.GetSnapshot(ctx, aggregateID, minSequence)
}
