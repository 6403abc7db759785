package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fisarsiv/fisarsiv-api/internal/application/normalizer"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/repository"
	"github.com/fisarsiv/fisarsiv-api/pkg/apperror"
)

// ReceiptService owns a user's receipt collection: ingest from scans,
// active/trash listing, and the soft-delete lifecycle. Every operation takes
// the caller's user id explicitly; there is no ambient session state. Remote
// failures surface unchanged to the caller, with no internal retries.
type ReceiptService struct {
	receiptRepo repository.ReceiptRepository
	norm        *normalizer.Normalizer
}

// NewReceiptService creates a new receipt service
func NewReceiptService(receiptRepo repository.ReceiptRepository, norm *normalizer.Normalizer) *ReceiptService {
	return &ReceiptService{receiptRepo: receiptRepo, norm: norm}
}

// CreateFromScan decodes a raw QR payload, normalizes it and stores the
// resulting receipt for the user.
func (s *ReceiptService) CreateFromScan(ctx context.Context, userID uuid.UUID, payload []byte) (*entity.Receipt, error) {
	raw, err := normalizer.DecodeScanPayload(payload)
	if err != nil {
		return nil, err
	}
	return s.CreateFromRaw(ctx, userID, raw)
}

// CreateFromRaw normalizes an already-decoded payload and stores it.
func (s *ReceiptService) CreateFromRaw(ctx context.Context, userID uuid.UUID, raw map[string]any) (*entity.Receipt, error) {
	receipt, err := s.norm.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, userID, receipt)
}

// create assigns ownership and lifecycle state and persists the record. The
// payment block is cleaned so cash receipts never persist stray card fields.
func (s *ReceiptService) create(ctx context.Context, userID uuid.UUID, receipt *entity.Receipt) (*entity.Receipt, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}

	receipt.ID = uuid.Nil
	receipt.UserID = userID
	receipt.Payment = datatypes.NewJSONType(receipt.Payment.Data().Clean())
	receipt.IsDeleted = false
	receipt.DeletedAt = nil
	receipt.CreatedAt = time.Now()

	if err := s.receiptRepo.Create(ctx, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListActive returns the user's receipts that are not in the trash, newest
// first.
func (s *ReceiptService) ListActive(ctx context.Context, userID uuid.UUID) ([]entity.Receipt, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	return s.receiptRepo.ListByUser(ctx, userID, false)
}

// ListDeleted returns the user's trashed receipts, newest first.
func (s *ReceiptService) ListDeleted(ctx context.Context, userID uuid.UUID) ([]entity.Receipt, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	return s.receiptRepo.ListByUser(ctx, userID, true)
}

// Get returns one receipt. A record belonging to another user is reported as
// not found rather than forbidden, so record ids cannot be probed.
func (s *ReceiptService) Get(ctx context.Context, userID, id uuid.UUID) (*entity.Receipt, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	return s.getOwned(ctx, userID, id)
}

// SoftDelete moves a receipt to the trash. Calling it on an already-trashed
// receipt just refreshes DeletedAt.
func (s *ReceiptService) SoftDelete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return apperror.ErrUnauthorized
	}
	receipt, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	now := time.Now()
	receipt.IsDeleted = true
	receipt.DeletedAt = &now
	return s.receiptRepo.Update(ctx, receipt)
}

// Restore moves a trashed receipt back to the active list. Safe to call on a
// receipt that is already active.
func (s *ReceiptService) Restore(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return apperror.ErrUnauthorized
	}
	receipt, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	receipt.IsDeleted = false
	receipt.DeletedAt = nil
	return s.receiptRepo.Update(ctx, receipt)
}

// HardDelete permanently removes a receipt. Irreversible.
func (s *ReceiptService) HardDelete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return apperror.ErrUnauthorized
	}
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return err
	}
	return s.receiptRepo.Delete(ctx, id)
}

// EmptyTrash permanently removes every trashed receipt, one at a time. On
// failure the receipts already removed stay removed and the first error is
// surfaced; there is no transactional guarantee across records.
func (s *ReceiptService) EmptyTrash(ctx context.Context, userID uuid.UUID) error {
	deleted, err := s.ListDeleted(ctx, userID)
	if err != nil {
		return err
	}
	for i := range deleted {
		if err := s.receiptRepo.Delete(ctx, deleted[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// MigrateLocal ingests the records a user kept in the pre-migration local
// store: each is normalized leniently and created. The first failure aborts
// the remainder; records migrated before it stay migrated. Returns how many
// records were stored.
func (s *ReceiptService) MigrateLocal(ctx context.Context, userID uuid.UUID, records []map[string]any) (int, error) {
	if userID == uuid.Nil {
		return 0, apperror.ErrUnauthorized
	}

	migrated := 0
	for _, raw := range records {
		receipt, err := s.norm.NormalizeLegacy(raw)
		if err != nil {
			return migrated, err
		}
		if _, err := s.create(ctx, userID, receipt); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}

// BackfillLegacyShape upgrades records written under the old flat schema to
// the nested totals/payment/footer shape: the flat total becomes both
// subtotal and total, payment defaults to cash and every footer field to the
// empty string. The rewrite runs as one batch; records already in the
// current shape are left untouched. Returns how many records were upgraded.
func (s *ReceiptService) BackfillLegacyShape(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, apperror.ErrUnauthorized
	}

	all, err := s.receiptRepo.ListAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var upgraded []entity.Receipt
	for i := range all {
		r := all[i]
		if !r.NeedsBackfill() {
			continue
		}
		r.Totals = datatypes.NewJSONType(entity.Totals{
			Subtotal: r.Total,
			KDV:      0,
			Total:    r.Total,
		})
		r.Payment = datatypes.NewJSONType(entity.CashPayment())
		r.Footer = datatypes.NewJSONType(entity.Footer{})
		upgraded = append(upgraded, r)
	}

	if len(upgraded) == 0 {
		return 0, nil
	}
	if err := s.receiptRepo.UpdateBatch(ctx, upgraded); err != nil {
		return 0, err
	}
	return len(upgraded), nil
}

func (s *ReceiptService) getOwned(ctx context.Context, userID, id uuid.UUID) (*entity.Receipt, error) {
	receipt, err := s.receiptRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.UserID != userID {
		return nil, apperror.NewNotFoundError("Receipt")
	}
	return receipt, nil
}
