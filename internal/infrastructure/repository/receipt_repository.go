package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
	domainRepo "github.com/fisarsiv/fisarsiv-api/internal/domain/repository"
)

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *gorm.DB) domainRepo.ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, receipt *entity.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	var receipt entity.Receipt
	err := r.db.WithContext(ctx).First(&receipt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &receipt, err
}

func (r *receiptRepository) Update(ctx context.Context, receipt *entity.Receipt) error {
	return r.db.WithContext(ctx).Save(receipt).Error
}

func (r *receiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entity.Receipt{}, "id = ?", id).Error
}

// ListByUser pushes the deletion-state predicate down to the query instead
// of fetching the whole collection and filtering in memory.
func (r *receiptRepository) ListByUser(ctx context.Context, userID uuid.UUID, deleted bool) ([]entity.Receipt, error) {
	var receipts []entity.Receipt
	err := r.db.WithContext(ctx).
		Scopes(OwnedBy(userID)).
		Where("is_deleted = ?", deleted).
		Order("created_at DESC").
		Find(&receipts).Error
	return receipts, err
}

func (r *receiptRepository) ListAllByUser(ctx context.Context, userID uuid.UUID) ([]entity.Receipt, error) {
	var receipts []entity.Receipt
	err := r.db.WithContext(ctx).
		Scopes(OwnedBy(userID)).
		Order("created_at DESC").
		Find(&receipts).Error
	return receipts, err
}

// UpdateBatch rewrites the given receipts in one transaction. The backfill
// uses this so a legacy collection is upgraded all-or-nothing.
func (r *receiptRepository) UpdateBatch(ctx context.Context, receipts []entity.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range receipts {
			if err := tx.Save(&receipts[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
