package documents

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert writes d keyed by (user, prescription, document type) and fills
	// ID and timestamps.
	Upsert(ctx context.Context, d *MevoDocument) error
	List(ctx context.Context, userID uuid.UUID, f Filter) ([]*MevoDocument, error)
}
