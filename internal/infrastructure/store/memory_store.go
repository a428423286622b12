package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory adapter used for tests and local runs.
// It enforces the same commit semantics as the durable adapters: the
// batch is all-or-nothing and (aggregate_id, sequence) is unique.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]map[int]Event // aggregateID -> sequence -> event
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]map[int]Event),
		snapshots: make(map[string]Snapshot),
	}
}

// CommitEvents appends the batch, rejecting it wholesale if any event's
// (aggregate_id, sequence) pair is already present.
func (m *MemoryStore) CommitEvents(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range events {
		if _, exists := m.events[e.AggregateID][e.Sequence]; exists {
			return ErrConflict
		}
	}
	for _, e := range events {
		if m.events[e.AggregateID] == nil {
			m.events[e.AggregateID] = make(map[int]Event)
		}
		m.events[e.AggregateID][e.Sequence] = e
	}
	return nil
}

// GetEvents returns events with sequence > afterSequence in ascending order.
func (m *MemoryStore) GetEvents(ctx context.Context, aggregateID string, afterSequence int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []Event
	for seq, e := range m.events[aggregateID] {
		if seq > afterSequence {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, nil
}

// CommitSnapshot keeps the snapshot with the higher sequence; a stale
// submission leaves the existing snapshot untouched.
func (m *MemoryStore) CommitSnapshot(ctx context.Context, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.snapshots[snapshot.AggregateID]; ok && existing.Sequence >= snapshot.Sequence {
		return nil
	}
	m.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot returns the snapshot only when its sequence >= minSequence.
func (m *MemoryStore) GetSnapshot(ctx context.Context, aggregateID string, minSequence int) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[aggregateID]
	if !ok || snapshot.Sequence < minSequence {
		return nil, nil
	}
	return &snapshot, nil
}
