// Package memory provides an in-process index store used in tests and
// single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"landledger/internal/domain"
	"landledger/internal/index"
)

// Store keeps index rows and document metadata in maps guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	rows map[string]domain.IndexRow
	docs map[string][]domain.DocumentMeta
	// seqs survives row deletion so patches older than a delete are still rejected
	seqs map[string]uint64
}

func NewStore() *Store {
	return &Store{
		rows: make(map[string]domain.IndexRow),
		docs: make(map[string][]domain.DocumentMeta),
		seqs: make(map[string]uint64),
	}
}

func (s *Store) GetByKey(_ context.Context, propertyID string) (domain.IndexRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[propertyID]
	if !ok {
		return domain.IndexRow{}, fmt.Errorf("property %q: %w", propertyID, index.ErrNotFound)
	}
	return row, nil
}

func (s *Store) QueryByAttributes(_ context.Context, f index.Filter) ([]domain.IndexRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.IndexRow
	for _, row := range s.rows {
		if matches(row, f) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].PropertyID < out[j].PropertyID
	})
	return window(out, f.Offset, f.Limit), nil
}

func (s *Store) SearchByText(_ context.Context, query string, limit int) ([]domain.IndexRow, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.IndexRow
	for _, row := range s.rows {
		hay := strings.ToLower(strings.Join([]string{
			row.District, row.Mandal, row.Village,
		}, " "))
		if strings.Contains(hay, q) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return window(out, 0, limit), nil
}

func (s *Store) Insert(_ context.Context, rec domain.LandRecord, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.seqs[rec.PropertyID]; ok && blockNumber <= last {
		return nil // replayed create, newer ledger state already mirrored
	}
	if _, ok := s.rows[rec.PropertyID]; ok {
		return fmt.Errorf("property %q: %w", rec.PropertyID, index.ErrDuplicateKey)
	}
	rec.BlockNumber = blockNumber
	s.rows[rec.PropertyID] = domain.IndexRow{
		LandRecord:         rec,
		VerificationStatus: domain.VerificationPending,
	}
	s.seqs[rec.PropertyID] = blockNumber
	return nil
}

func (s *Store) Apply(_ context.Context, p index.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Record.PropertyID
	if last, ok := s.seqs[key]; ok && p.BlockNumber <= last {
		return nil // stale arrival, newer ledger state already mirrored
	}

	if p.Delete {
		delete(s.rows, key)
		delete(s.docs, key)
		s.seqs[key] = p.BlockNumber
		return nil
	}

	rec := p.Record
	rec.BlockNumber = p.BlockNumber
	// freshly mirrored state has not been cross-checked yet
	s.rows[key] = domain.IndexRow{LandRecord: rec, VerificationStatus: domain.VerificationPending}
	s.seqs[key] = p.BlockNumber
	return nil
}

func (s *Store) SetVerification(_ context.Context, propertyID string, status domain.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[propertyID]
	if !ok {
		return fmt.Errorf("property %q: %w", propertyID, index.ErrNotFound)
	}
	row.VerificationStatus = status
	s.rows[propertyID] = row
	return nil
}

func (s *Store) SaveDocument(_ context.Context, doc domain.DocumentMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.PropertyID] = append(s.docs[doc.PropertyID], doc)
	return nil
}

func (s *Store) DocumentsFor(_ context.Context, propertyID string) ([]domain.DocumentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.docs[propertyID]
	out := make([]domain.DocumentMeta, len(docs))
	copy(out, docs)
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *Store) Health(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func matches(row domain.IndexRow, f index.Filter) bool {
	if f.Owner != "" && !strings.EqualFold(row.Owner, f.Owner) {
		return false
	}
	if f.District != "" && !strings.EqualFold(row.District, f.District) {
		return false
	}
	if f.Mandal != "" && !strings.EqualFold(row.Mandal, f.Mandal) {
		return false
	}
	if f.Village != "" && !strings.EqualFold(row.Village, f.Village) {
		return false
	}
	if f.SurveyNo != "" && !strings.EqualFold(row.SurveyNo, f.SurveyNo) {
		return false
	}
	if f.LandType != "" && !strings.EqualFold(row.LandType, f.LandType) {
		return false
	}
	if f.MinValue > 0 || f.MaxValue > 0 {
		v, err := strconv.ParseFloat(row.MarketValue, 64)
		if err != nil {
			return false
		}
		if f.MinValue > 0 && v < f.MinValue {
			return false
		}
		if f.MaxValue > 0 && v > f.MaxValue {
			return false
		}
	}
	return true
}

func window(rows []domain.IndexRow, offset, limit int) []domain.IndexRow {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
