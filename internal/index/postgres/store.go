// Package postgres persists the off-chain index in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"landledger/internal/domain"
	"landledger/internal/index"
)

const uniqueViolation = "23505"

// Store implements index.Store on PostgreSQL. Patch ordering is enforced in
// SQL: every write is guarded by the block number recorded in mirror_seq, so
// concurrent mirror workers cannot regress a row.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const rowColumns = `property_id, owner_name, survey_no, district, mandal, village,
	area, land_type, market_value, document_ref, last_updated,
	transaction_id, block_number, verification_status`

func (s *Store) GetByKey(ctx context.Context, propertyID string) (domain.IndexRow, error) {
	query := `SELECT ` + rowColumns + ` FROM land_records WHERE property_id = $1`
	row, err := scanRow(s.db.QueryRowContext(ctx, query, propertyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IndexRow{}, fmt.Errorf("property %q: %w", propertyID, index.ErrNotFound)
		}
		return domain.IndexRow{}, wrapUnavailable("get record", err)
	}
	return row, nil
}

func (s *Store) QueryByAttributes(ctx context.Context, f index.Filter) ([]domain.IndexRow, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Owner != "" {
		add("LOWER(owner_name) = LOWER($%d)", f.Owner)
	}
	if f.District != "" {
		add("LOWER(district) = LOWER($%d)", f.District)
	}
	if f.Mandal != "" {
		add("LOWER(mandal) = LOWER($%d)", f.Mandal)
	}
	if f.Village != "" {
		add("LOWER(village) = LOWER($%d)", f.Village)
	}
	if f.SurveyNo != "" {
		add("LOWER(survey_no) = LOWER($%d)", f.SurveyNo)
	}
	if f.LandType != "" {
		add("LOWER(land_type) = LOWER($%d)", f.LandType)
	}
	if f.MinValue > 0 {
		add("market_value::NUMERIC >= $%d", f.MinValue)
	}
	if f.MaxValue > 0 {
		add("market_value::NUMERIC <= $%d", f.MaxValue)
	}

	query := `SELECT ` + rowColumns + ` FROM land_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY block_number DESC, property_id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return s.queryRows(ctx, "query records", query, args...)
}

func (s *Store) SearchByText(ctx context.Context, query string, limit int) ([]domain.IndexRow, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(q) + "%"
	sqlQuery := `SELECT ` + rowColumns + ` FROM land_records
		WHERE LOWER(district) LIKE $1
		   OR LOWER(mandal) LIKE $1
		   OR LOWER(village) LIKE $1
		ORDER BY property_id ASC`
	args := []any{pattern}
	if limit > 0 {
		sqlQuery += " LIMIT $2"
		args = append(args, limit)
	}
	return s.queryRows(ctx, "search records", sqlQuery, args...)
}

func (s *Store) Insert(ctx context.Context, rec domain.LandRecord, blockNumber uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable("begin insert", err)
	}
	defer tx.Rollback()

	claimed, err := claimSeq(ctx, tx, rec.PropertyID, blockNumber)
	if err != nil {
		return err
	}
	if !claimed {
		return nil // replayed create, newer ledger state already mirrored
	}

	query := `
		INSERT INTO land_records (` + rowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, query,
		rec.PropertyID, rec.Owner, rec.SurveyNo, rec.District, rec.Mandal, rec.Village,
		rec.Area, rec.LandType, rec.MarketValue, rec.DocumentRef, rec.LastUpdated,
		rec.TransactionID, int64(blockNumber), string(domain.VerificationPending),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// Rolling back releases the sequence claim for the Apply retry.
			return fmt.Errorf("property %q: %w", rec.PropertyID, index.ErrDuplicateKey)
		}
		return wrapUnavailable("insert record", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapUnavailable("commit insert", err)
	}
	return nil
}

func (s *Store) Apply(ctx context.Context, p index.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable("begin apply", err)
	}
	defer tx.Rollback()

	claimed, err := claimSeq(ctx, tx, p.Record.PropertyID, p.BlockNumber)
	if err != nil {
		return err
	}
	if !claimed {
		return nil // stale arrival, newer ledger state already mirrored
	}

	if p.Delete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM land_records WHERE property_id = $1`, p.Record.PropertyID); err != nil {
			return wrapUnavailable("delete record", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_metadata WHERE property_id = $1`, p.Record.PropertyID); err != nil {
			return wrapUnavailable("delete documents", err)
		}
		if err := tx.Commit(); err != nil {
			return wrapUnavailable("commit apply", err)
		}
		return nil
	}

	rec := p.Record
	_, err = tx.ExecContext(ctx, `
		INSERT INTO land_records (`+rowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (property_id) DO UPDATE SET
			owner_name = EXCLUDED.owner_name,
			survey_no = EXCLUDED.survey_no,
			district = EXCLUDED.district,
			mandal = EXCLUDED.mandal,
			village = EXCLUDED.village,
			area = EXCLUDED.area,
			land_type = EXCLUDED.land_type,
			market_value = EXCLUDED.market_value,
			document_ref = EXCLUDED.document_ref,
			last_updated = EXCLUDED.last_updated,
			transaction_id = EXCLUDED.transaction_id,
			block_number = EXCLUDED.block_number,
			verification_status = EXCLUDED.verification_status
	`,
		rec.PropertyID, rec.Owner, rec.SurveyNo, rec.District, rec.Mandal, rec.Village,
		rec.Area, rec.LandType, rec.MarketValue, rec.DocumentRef, rec.LastUpdated,
		rec.TransactionID, int64(p.BlockNumber), string(domain.VerificationPending),
	)
	if err != nil {
		return wrapUnavailable("upsert record", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapUnavailable("commit apply", err)
	}
	return nil
}

func (s *Store) SetVerification(ctx context.Context, propertyID string, status domain.VerificationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE land_records SET verification_status = $2 WHERE property_id = $1`,
		propertyID, string(status),
	)
	if err != nil {
		return wrapUnavailable("set verification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapUnavailable("set verification", err)
	}
	if n == 0 {
		return fmt.Errorf("property %q: %w", propertyID, index.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveDocument(ctx context.Context, doc domain.DocumentMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_metadata (property_id, document_hash, document_type, file_url, uploaded_at, verified_on_chain)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, doc.PropertyID, doc.DocumentHash, doc.DocumentType, doc.FileURL, doc.UploadedAt, doc.VerifiedOnChain)
	if err != nil {
		return wrapUnavailable("save document", err)
	}
	return nil
}

func (s *Store) DocumentsFor(ctx context.Context, propertyID string) ([]domain.DocumentMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, document_hash, document_type, file_url, uploaded_at, verified_on_chain
		FROM document_metadata
		WHERE property_id = $1
		ORDER BY uploaded_at DESC
	`, propertyID)
	if err != nil {
		return nil, wrapUnavailable("query documents", err)
	}
	defer rows.Close()

	var docs []domain.DocumentMeta
	for rows.Next() {
		var d domain.DocumentMeta
		if err := rows.Scan(&d.PropertyID, &d.DocumentHash, &d.DocumentType, &d.FileURL, &d.UploadedAt, &d.VerifiedOnChain); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", index.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// claimSeq records the patch's block number in mirror_seq inside the caller's
// transaction. A false return means a newer block already holds the slot and
// the write must be skipped.
func claimSeq(ctx context.Context, tx *sql.Tx, propertyID string, blockNumber uint64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO mirror_seq (property_id, block_number)
		VALUES ($1, $2)
		ON CONFLICT (property_id) DO UPDATE SET block_number = EXCLUDED.block_number
		WHERE mirror_seq.block_number < EXCLUDED.block_number
	`, propertyID, int64(blockNumber))
	if err != nil {
		return false, wrapUnavailable("claim mirror sequence", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapUnavailable("claim mirror sequence", err)
	}
	return n > 0, nil
}

func (s *Store) queryRows(ctx context.Context, op, query string, args ...any) ([]domain.IndexRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable(op, err)
	}
	defer rows.Close()

	var out []domain.IndexRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (domain.IndexRow, error) {
	var (
		row    domain.IndexRow
		block  int64
		status string
	)
	err := sc.Scan(
		&row.PropertyID, &row.Owner, &row.SurveyNo, &row.District, &row.Mandal, &row.Village,
		&row.Area, &row.LandType, &row.MarketValue, &row.DocumentRef, &row.LastUpdated,
		&row.TransactionID, &block, &status,
	)
	if err != nil {
		return domain.IndexRow{}, err
	}
	row.BlockNumber = uint64(block)
	row.VerificationStatus = domain.VerificationStatus(status)
	return row, nil
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, index.ErrUnavailable, err)
}
