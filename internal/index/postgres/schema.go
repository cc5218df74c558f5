package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS land_records (
	property_id         TEXT PRIMARY KEY,
	owner_name          TEXT NOT NULL,
	survey_no           TEXT NOT NULL,
	district            TEXT NOT NULL,
	mandal              TEXT NOT NULL,
	village             TEXT NOT NULL,
	area                TEXT NOT NULL,
	land_type           TEXT NOT NULL,
	market_value        TEXT NOT NULL,
	document_ref        TEXT NOT NULL DEFAULT '',
	last_updated        TIMESTAMPTZ NOT NULL,
	transaction_id      TEXT NOT NULL DEFAULT '',
	block_number        BIGINT NOT NULL DEFAULT 0,
	verification_status TEXT NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_land_records_owner    ON land_records (LOWER(owner_name));
CREATE INDEX IF NOT EXISTS idx_land_records_district ON land_records (LOWER(district));
CREATE INDEX IF NOT EXISTS idx_land_records_survey   ON land_records (LOWER(survey_no));

-- mirror_seq outlives land_records rows so patches older than a delete stay rejected
CREATE TABLE IF NOT EXISTS mirror_seq (
	property_id  TEXT PRIMARY KEY,
	block_number BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_metadata (
	id                SERIAL PRIMARY KEY,
	property_id       TEXT NOT NULL,
	document_hash     TEXT NOT NULL,
	document_type     TEXT NOT NULL,
	file_url          TEXT NOT NULL DEFAULT '',
	uploaded_at       TIMESTAMPTZ NOT NULL,
	verified_on_chain BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_document_metadata_property ON document_metadata (property_id);
`

// EnsureSchema creates the index tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure index schema: %w", err)
	}
	return nil
}
