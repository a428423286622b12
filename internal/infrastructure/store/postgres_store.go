package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Schema is the logical layout the PostgreSQL adapter expects. Applying it
// (or an equivalent migration) is the operator's responsibility; the
// adapter never creates tables on its own.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT        NOT NULL,
	aggregate_id TEXT        NOT NULL,
	sequence     BIGINT      NOT NULL,
	type         TEXT        NOT NULL,
	body         JSONB       NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (aggregate_id, sequence)
);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id TEXT        PRIMARY KEY,
	sequence     BIGINT      NOT NULL,
	body         JSONB       NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is the durable adapter backed by PostgreSQL. The primary
// key on (aggregate_id, sequence) is the sole conflict detector: commits
// never pre-check existence, they insert and let the constraint decide.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CommitEvents inserts the batch in a single transaction. A unique
// violation on the events primary key rolls everything back and returns
// ErrConflict; other failures surface as transport errors.
func (s *PostgresStore) CommitEvents(ctx context.Context, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}

	for i := range events {
		e := &events[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, sequence, type, body, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.AggregateID, e.Sequence, e.Type, []byte(e.Body), e.Timestamp,
		)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetEvents returns the aggregate's events with sequence > afterSequence,
// ascending.
func (s *PostgresStore) GetEvents(ctx context.Context, aggregateID string, afterSequence int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, sequence, type, body, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND sequence > $2
		 ORDER BY sequence ASC`,
		aggregateID, afterSequence,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var body []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Sequence, &e.Type, &body, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Body = body
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// CommitSnapshot upserts the snapshot; the WHERE clause on the conflict
// branch makes the replace compare-and-swap on sequence, so two competing
// writers converge to the higher one regardless of arrival order.
func (s *PostgresStore) CommitSnapshot(ctx context.Context, snapshot Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, sequence, body, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET sequence = EXCLUDED.sequence, body = EXCLUDED.body, created_at = EXCLUDED.created_at
		 WHERE snapshots.sequence < EXCLUDED.sequence`,
		snapshot.AggregateID, snapshot.Sequence, []byte(snapshot.Body), snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot only when its sequence >= minSequence.
func (s *PostgresStore) GetSnapshot(ctx context.Context, aggregateID string, minSequence int) (*Snapshot, error) {
	var snapshot Snapshot
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate_id, sequence, body, created_at
		 FROM snapshots
		 WHERE aggregate_id = $1 AND sequence >= $2`,
		aggregateID, minSequence,
	).Scan(&snapshot.AggregateID, &snapshot.Sequence, &body, &snapshot.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	snapshot.Body = body
	return &snapshot, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (class 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ConnectPostgres establishes a pooled connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
