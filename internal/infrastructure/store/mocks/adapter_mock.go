package mocks

import (
	"context"
	"sync"

	"github.com/example/aggregate-store/internal/infrastructure/store"
)

// MockAdapter is a call-recording implementation of store.Adapter for
// testing. It delegates to an in-memory store unless an error is injected.
type MockAdapter struct {
	mu    sync.Mutex
	inner *store.MemoryStore

	CommitEventsCalls   [][]store.Event
	CommitSnapshotCalls []store.Snapshot

	CommitEventsErr   error
	GetEventsErr      error
	CommitSnapshotErr error
	GetSnapshotErr    error
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{inner: store.NewMemoryStore()}
}

func (m *MockAdapter) CommitEvents(ctx context.Context, events []store.Event) error {
	m.mu.Lock()
	m.CommitEventsCalls = append(m.CommitEventsCalls, events)
	m.mu.Unlock()

	if m.CommitEventsErr != nil {
		return m.CommitEventsErr
	}
	return m.inner.CommitEvents(ctx, events)
}

func (m *MockAdapter) GetEvents(ctx context.Context, aggregateID string, afterSequence int) ([]store.Event, error) {
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	return m.inner.GetEvents(ctx, aggregateID, afterSequence)
}

func (m *MockAdapter) CommitSnapshot(ctx context.Context, snapshot store.Snapshot) error {
	m.mu.Lock()
	m.CommitSnapshotCalls = append(m.CommitSnapshotCalls, snapshot)
	m.mu.Unlock()

	if m.CommitSnapshotErr != nil {
		return m.CommitSnapshotErr
	}
	return m.inner.CommitSnapshot(ctx, snapshot)
}

func (m *MockAdapter) GetSnapshot(ctx context.Context, aggregateID string, minSequence int) (*store.Snapshot, error) {
	if m.GetSnapshotErr != nil {
		return nil, m.GetSnapshotErr
	}
	return m.inner.GetSnapshot(ctx, aggregateID, minSequence)
}
