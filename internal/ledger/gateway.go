// Package ledger defines the gateway contract to the distributed ledger: the
// system of record for ownership facts. Backends live in subpackages; the
// session pool in this package owns their lifecycle.
package ledger

import (
	"context"
	"errors"

	"landledger/internal/domain"
)

// Chaincode operations consumed by the orchestrator. These names are the
// chaincode's public contract; argument order matches the contract exactly.
const (
	OpCreateRecord    = "CreateRecord"
	OpReadRecord      = "ReadRecord"
	OpUpdateRecord    = "UpdateRecord"
	OpDeleteRecord    = "DeleteRecord"
	OpLinkDocument    = "LinkDocument"
	OpQueryBySurvey   = "QueryBySurvey"
	OpQueryByOwner    = "QueryByOwner"
	OpQueryByDistrict = "QueryByDistrict"
	OpListAll         = "ListAll"
	OpGetHistory      = "GetHistory"
)

// Sentinel errors for ledger facts. Backends return these (optionally
// wrapped); the orchestrator translates them into coded domain errors.
var (
	// ErrNotFound is a distinguished, expected outcome of a read, not a fault.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey means a create hit an existing propertyId.
	ErrDuplicateKey = errors.New("record already exists")
	// ErrIdentityNotFound means the wallet does not hold the named credential.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrConnection means the endpoint or profile is unreachable or malformed.
	ErrConnection = errors.New("ledger connection failed")
	// ErrSessionClosed means the session was disconnected.
	ErrSessionClosed = errors.New("session closed")
)

// SubmitResult carries the committed payload and its ledger coordinates.
type SubmitResult struct {
	Payload       []byte
	TransactionID string
	BlockNumber   uint64
}

// Session is an open, identity-bound connection to one ledger channel.
// Submit must not be issued concurrently on one session; Evaluate may.
// The pool enforces that discipline, callers go through it.
type Session interface {
	// Submit executes a consensus-ordered state change. Never retried here:
	// a blind retry of a non-idempotent create or transfer risks a duplicate
	// logical effect. Failures wrap the underlying cause.
	Submit(ctx context.Context, operation string, args ...string) (SubmitResult, error)
	// Evaluate runs a read-only query against committed state.
	Evaluate(ctx context.Context, query string, args ...string) ([]byte, error)
	Identity() domain.Identity
	Channel() string
	// Close releases resources; idempotent.
	Close() error
}

// Gateway establishes identity-bound sessions. One session serves one
// identity and one channel; switching identity means a new session.
type Gateway interface {
	Connect(ctx context.Context, identity domain.Identity, profile domain.NetworkProfile) (Session, error)
}
