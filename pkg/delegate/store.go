package delegate

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence backend of the delegation grants.
type Store interface {
	// CreateGrant persists a new grant.
	CreateGrant(ctx context.Context, g Grant) error

	// UpdateGrant replaces a persisted grant by ID.
	UpdateGrant(ctx context.Context, g Grant) error

	// DeleteGrant removes a grant by ID.
	DeleteGrant(ctx context.Context, id uuid.UUID) error

	// FetchGrantByID returns a single grant.
	FetchGrantByID(ctx context.Context, id uuid.UUID) (Grant, error)

	// FetchAllGrants returns every persisted grant.
	FetchAllGrants(ctx context.Context) ([]Grant, error)

	// FetchGrantsByReceivers returns the grants held by any of the
	// given (kind, identifier) pairs.
	FetchGrantsByReceivers(ctx context.Context, refs []ReceiverRef) ([]Grant, error)
}

// ReceiverRef addresses one grant holder.
type ReceiverRef struct {
	Kind     ReceiverKind
	Receiver string
}
