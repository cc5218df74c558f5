// Package index defines the off-chain relational mirror of the land registry.
// The index is a read accelerator, never an authority: rows carry a
// verification status and a ledger block sequence, and writes that arrive out
// of block order are discarded so the newest committed state always wins.
package index

import (
	"context"
	"errors"

	"landledger/internal/domain"
)

var (
	// ErrNotFound is returned when no row exists for the requested key.
	ErrNotFound = errors.New("record not found in index")
	// ErrDuplicateKey is returned by Insert when the property already has a row.
	ErrDuplicateKey = errors.New("record already exists in index")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("index store unavailable")
)

// Filter selects rows by exact attribute match. Zero values are ignored.
type Filter struct {
	Owner    string
	District string
	Mandal   string
	Village  string
	SurveyNo string
	LandType string
	// MinValue and MaxValue bound the market value when non-zero.
	MinValue float64
	MaxValue float64
	Limit    int
	Offset   int
}

// Patch carries a mirrored ledger write. BlockNumber orders patches: a patch
// whose BlockNumber is not newer than the stored row is a stale arrival and
// must be ignored.
type Patch struct {
	Record      domain.LandRecord
	BlockNumber uint64
	Delete      bool
}

// Store is the off-chain index contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// GetByKey returns the row for propertyID or ErrNotFound.
	GetByKey(ctx context.Context, propertyID string) (domain.IndexRow, error)

	// QueryByAttributes returns rows matching every non-zero filter field,
	// newest ledger state first.
	QueryByAttributes(ctx context.Context, f Filter) ([]domain.IndexRow, error)

	// SearchByText matches the query against location fields only, which are
	// district, mandal and village. Survey numbers are exact identifiers and
	// resolve through QueryByAttributes or the ledger survey lookup instead.
	SearchByText(ctx context.Context, query string, limit int) ([]domain.IndexRow, error)

	// Insert creates a pending row for a freshly committed record. It is
	// guarded by the same block sequence as Apply: a create whose block is not
	// newer than the recorded sequence is a replay and a silent no-op. It
	// returns ErrDuplicateKey if a live row already exists at an older block.
	Insert(ctx context.Context, rec domain.LandRecord, blockNumber uint64) error

	// Apply upserts the patch if it is newer than the stored row, by ledger
	// block number. Stale patches are silently dropped. A delete patch removes
	// the row.
	Apply(ctx context.Context, p Patch) error

	// SetVerification records the outcome of a ledger cross-check.
	SetVerification(ctx context.Context, propertyID string, status domain.VerificationStatus) error

	// SaveDocument attaches document metadata to a property.
	SaveDocument(ctx context.Context, doc domain.DocumentMeta) error

	// DocumentsFor lists documents linked to a property, newest first.
	DocumentsFor(ctx context.Context, propertyID string) ([]domain.DocumentMeta, error)

	// Health reports whether the store is reachable.
	Health(ctx context.Context) error

	Close() error
}
