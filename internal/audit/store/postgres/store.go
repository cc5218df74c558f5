// Package postgres persists audit events in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"landledger/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id             UUID PRIMARY KEY,
	category       TEXT NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	action         TEXT NOT NULL,
	actor          TEXT NOT NULL,
	organization   TEXT NOT NULL DEFAULT '',
	property_id    TEXT NOT NULL DEFAULT '',
	channel        TEXT NOT NULL DEFAULT '',
	transaction_id TEXT NOT NULL DEFAULT '',
	block_number   BIGINT NOT NULL DEFAULT 0,
	outcome        TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	request_id     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_events_property ON audit_events (property_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_time     ON audit_events (timestamp DESC);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, actor, organization,
			property_id, channel, transaction_id, block_number,
			outcome, reason, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		string(event.Action),
		event.Actor,
		event.Organization,
		event.PropertyID,
		event.Channel,
		event.TransactionID,
		int64(event.BlockNumber),
		event.Outcome,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByProperty(ctx context.Context, propertyID string) ([]audit.Event, error) {
	query := selectColumns + ` WHERE property_id = $1 ORDER BY timestamp DESC`
	rows, err := s.db.QueryContext(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := selectColumns + ` ORDER BY timestamp DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectColumns = `
	SELECT category, timestamp, action, actor, organization,
		   property_id, channel, transaction_id, block_number,
		   outcome, reason, request_id
	FROM audit_events`

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			action   string
			block    int64
		)
		err := rows.Scan(
			&category, &e.Timestamp, &action, &e.Actor, &e.Organization,
			&e.PropertyID, &e.Channel, &e.TransactionID, &block,
			&e.Outcome, &e.Reason, &e.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.Category(category)
		e.Action = audit.Action(action)
		e.BlockNumber = uint64(block)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
