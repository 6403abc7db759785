package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
)

// ReceiptRepository defines the interface for receipt data operations.
// GetByID returns (nil, nil) when no record exists; ownership checks are the
// service's responsibility.
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *entity.Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	Update(ctx context.Context, receipt *entity.Receipt) error
	// Delete removes the row permanently.
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByUser returns the user's receipts filtered by deletion state,
	// newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, deleted bool) ([]entity.Receipt, error)
	// ListAllByUser returns the user's entire collection regardless of
	// deletion state. Used by the legacy-shape backfill.
	ListAllByUser(ctx context.Context, userID uuid.UUID) ([]entity.Receipt, error)
	// UpdateBatch rewrites the given receipts inside a single transaction.
	UpdateBatch(ctx context.Context, receipts []entity.Receipt) error
}
