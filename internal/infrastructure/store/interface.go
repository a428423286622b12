package store

import "context"

// Adapter is the capability contract a storage backend implements.
// Exactly one adapter is active per process, selected at startup and
// injected into the Store facade; adding a backend must not touch the
// facade.
//
// CommitEvents persists the batch atomically and returns ErrConflict when
// any event's (aggregate_id, sequence) pair already exists. Adapters map
// their backend's uniqueness-violation signal to ErrConflict themselves;
// every other failure is surfaced verbatim as a transport error.
type Adapter interface {
	CommitEvents(ctx context.Context, events []Event) error
	GetEvents(ctx context.Context, aggregateID string, afterSequence int) ([]Event, error)
	CommitSnapshot(ctx context.Context, snapshot Snapshot) error
	GetSnapshot(ctx context.Context, aggregateID string, minSequence int) (*Snapshot, error)
}
