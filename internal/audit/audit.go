// Package audit captures the who, what and where of every registry mutation
// and access decision. Events are emitted from domain logic and fanned out to
// a queryable store plus optional streaming sinks.
package audit

import (
	"context"
	"time"
)

// Category classifies events for retention and routing.
type Category string

const (
	// CategoryCompliance covers ownership mutations with legal significance.
	CategoryCompliance Category = "compliance"
	// CategorySecurity covers authorization failures and channel access denials.
	CategorySecurity Category = "security"
	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations Category = "operations"
)

// Action names for registry audit events.
type Action string

const (
	ActionPropertyRegistered   Action = "property_registered"
	ActionOwnershipTransferred Action = "ownership_transferred"
	ActionPropertyDeleted      Action = "property_deleted"
	ActionDocumentLinked       Action = "document_linked"
	ActionVerifyMismatch       Action = "verify_mismatch"
	ActionMirrorFailed         Action = "mirror_failed"
	ActionAccessDenied         Action = "access_denied"
	ActionConfigReloaded       Action = "config_reloaded"
)

var actionCategories = map[Action]Category{
	ActionPropertyRegistered:   CategoryCompliance,
	ActionOwnershipTransferred: CategoryCompliance,
	ActionPropertyDeleted:      CategoryCompliance,
	ActionDocumentLinked:       CategoryCompliance,
	ActionVerifyMismatch:       CategorySecurity,
	ActionAccessDenied:         CategorySecurity,
	ActionMirrorFailed:         CategoryOperations,
	ActionConfigReloaded:       CategoryOperations,
}

// CategoryOf returns the category an action belongs to. Unknown actions are
// operational.
func CategoryOf(a Action) Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is one audited registry action. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	Category      Category  `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
	Action        Action    `json:"action"`
	Actor         string    `json:"actor"`
	Organization  string    `json:"organization,omitempty"`
	PropertyID    string    `json:"propertyId,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	BlockNumber   uint64    `json:"blockNumber,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
}

// Store persists audit events and answers trail queries.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByProperty(ctx context.Context, propertyID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives a copy of every event, typically a message broker. Sink
// failures must not fail the emitting operation.
type Sink interface {
	Append(ctx context.Context, event Event) error
	Close()
}
