package tenantdata

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// MutateFunc receives the current payload and returns the replacement.
type MutateFunc func(payload []json.RawMessage) ([]json.RawMessage, error)

type Repository interface {
	// Get returns an empty document when none is stored.
	Get(ctx context.Context, ownerID uuid.UUID, t DataType) (*Document, error)
	GetAll(ctx context.Context, ownerID uuid.UUID) (*Bundle, error)
	Put(ctx context.Context, ownerID uuid.UUID, t DataType, payload []json.RawMessage) (*Document, error)
	// Mutate applies fn while holding a row lock on the document.
	Mutate(ctx context.Context, ownerID uuid.UUID, t DataType, fn MutateFunc) (*Document, error)
}
