package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fisarsiv/fisarsiv-api/internal/application/normalizer"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/enum"
	"github.com/fisarsiv/fisarsiv-api/pkg/apperror"
)

// memReceiptRepo is an in-memory ReceiptRepository used to exercise the
// service without a database. deleteErr lets tests inject a transport
// failure for a specific record.
type memReceiptRepo struct {
	receipts  map[uuid.UUID]entity.Receipt
	deleteErr map[uuid.UUID]error
}

func newMemReceiptRepo() *memReceiptRepo {
	return &memReceiptRepo{
		receipts:  map[uuid.UUID]entity.Receipt{},
		deleteErr: map[uuid.UUID]error{},
	}
}

func (m *memReceiptRepo) Create(_ context.Context, receipt *entity.Receipt) error {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	m.receipts[receipt.ID] = *receipt
	return nil
}

func (m *memReceiptRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Receipt, error) {
	r, ok := m.receipts[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memReceiptRepo) Update(_ context.Context, receipt *entity.Receipt) error {
	m.receipts[receipt.ID] = *receipt
	return nil
}

func (m *memReceiptRepo) Delete(_ context.Context, id uuid.UUID) error {
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	delete(m.receipts, id)
	return nil
}

func (m *memReceiptRepo) ListByUser(_ context.Context, userID uuid.UUID, deleted bool) ([]entity.Receipt, error) {
	var out []entity.Receipt
	for _, r := range m.receipts {
		if r.UserID == userID && r.IsDeleted == deleted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memReceiptRepo) ListAllByUser(_ context.Context, userID uuid.UUID) ([]entity.Receipt, error) {
	var out []entity.Receipt
	for _, r := range m.receipts {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memReceiptRepo) UpdateBatch(_ context.Context, receipts []entity.Receipt) error {
	for _, r := range receipts {
		m.receipts[r.ID] = r
	}
	return nil
}

func newTestService() (*ReceiptService, *memReceiptRepo) {
	repo := newMemReceiptRepo()
	return NewReceiptService(repo, normalizer.New()), repo
}

func scanPayload() map[string]any {
	return map[string]any{
		"storeName": "ABC Market",
		"date":      "01.01.2024",
		"total":     150.50,
		"items": []any{
			map[string]any{"name": "Ekmek", "quantity": 2.0, "price": 10.0},
		},
	}
}

func TestCreateThenListActive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.CreateFromRaw(ctx, userID, scanPayload())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("created receipt has no id")
	}
	if created.UserID != userID {
		t.Errorf("user id = %v, want %v", created.UserID, userID)
	}
	if created.IsDeleted || created.DeletedAt != nil {
		t.Errorf("new receipt should be active, got isDeleted=%v deletedAt=%v", created.IsDeleted, created.DeletedAt)
	}

	active, err := svc.ListActive(ctx, userID)
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != created.ID {
		t.Fatalf("active list = %d records, want exactly the created one", len(active))
	}

	trash, err := svc.ListDeleted(ctx, userID)
	if err != nil {
		t.Fatalf("list deleted failed: %v", err)
	}
	if len(trash) != 0 {
		t.Fatalf("trash should be empty, has %d", len(trash))
	}
}

func TestCreateRequiresUser(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateFromRaw(context.Background(), uuid.Nil, scanPayload())
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateFromScanDecodesPaddedPayload(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()

	payload := "\x00\x1d{\"storeName\":\"ABC Market\",\"date\":\"01.01.2024\",\"total\":150.5,\"items\":[{\"name\":\"Ekmek\",\"quantity\":2,\"price\":10}]}\x1d\x00"
	created, err := svc.CreateFromScan(context.Background(), userID, []byte(payload))
	if err != nil {
		t.Fatalf("scan create failed: %v", err)
	}
	if created.StoreName != "ABC Market" {
		t.Errorf("storeName = %q", created.StoreName)
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.CreateFromRaw(ctx, userID, scanPayload())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	before := time.Now()
	if err := svc.SoftDelete(ctx, userID, created.ID); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	active, _ := svc.ListActive(ctx, userID)
	if len(active) != 0 {
		t.Errorf("active list should exclude deleted receipt")
	}
	trash, _ := svc.ListDeleted(ctx, userID)
	if len(trash) != 1 {
		t.Fatalf("trash should contain the receipt")
	}
	if trash[0].DeletedAt == nil || trash[0].DeletedAt.Before(before) {
		t.Errorf("deletedAt = %v, want >= %v", trash[0].DeletedAt, before)
	}

	// Deleting again refreshes the timestamp rather than failing.
	firstDeletedAt := *trash[0].DeletedAt
	time.Sleep(time.Millisecond)
	if err := svc.SoftDelete(ctx, userID, created.ID); err != nil {
		t.Fatalf("repeat soft delete failed: %v", err)
	}
	trash, _ = svc.ListDeleted(ctx, userID)
	if !trash[0].DeletedAt.After(firstDeletedAt) {
		t.Errorf("repeat delete should refresh deletedAt")
	}

	if err := svc.Restore(ctx, userID, created.ID); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	active, _ = svc.ListActive(ctx, userID)
	if len(active) != 1 || active[0].DeletedAt != nil || active[0].IsDeleted {
		t.Errorf("restore should return the receipt to the active list with deletedAt cleared")
	}
}

func TestHardDeleteIsTerminal(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.CreateFromRaw(ctx, userID, scanPayload())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.SoftDelete(ctx, userID, created.ID); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	if err := svc.HardDelete(ctx, userID, created.ID); err != nil {
		t.Fatalf("hard delete failed: %v", err)
	}

	active, _ := svc.ListActive(ctx, userID)
	trash, _ := svc.ListDeleted(ctx, userID)
	if len(active) != 0 || len(trash) != 0 {
		t.Fatalf("purged receipt still listed: active=%d trash=%d", len(active), len(trash))
	}

	for name, err := range map[string]error{
		"restore":     svc.Restore(ctx, userID, created.ID),
		"soft delete": svc.SoftDelete(ctx, userID, created.ID),
		"hard delete": svc.HardDelete(ctx, userID, created.ID),
	} {
		appErr := apperror.GetAppError(err)
		if appErr.Code != 404 {
			t.Errorf("%s after purge: got %v, want not found", name, err)
		}
	}
}

func TestCrossUserIsolation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	created, err := svc.CreateFromRaw(ctx, owner, scanPayload())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	active, _ := svc.ListActive(ctx, other)
	if len(active) != 0 {
		t.Errorf("another user's list must not include the receipt")
	}

	if _, err := svc.Get(ctx, other, created.ID); apperror.GetAppError(err).Code != 404 {
		t.Errorf("get across users: got %v, want not found", err)
	}
	if err := svc.SoftDelete(ctx, other, created.ID); apperror.GetAppError(err).Code != 404 {
		t.Errorf("soft delete across users: got %v, want not found", err)
	}
	if err := svc.HardDelete(ctx, other, created.ID); apperror.GetAppError(err).Code != 404 {
		t.Errorf("hard delete across users: got %v, want not found", err)
	}
}

func TestEmptyTrashSurfacesFirstFailure(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	// Three trashed receipts with a known iteration order (newest first).
	ids := make([]uuid.UUID, 3)
	base := time.Now()
	for i := range ids {
		created, err := svc.CreateFromRaw(ctx, userID, scanPayload())
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		r := repo.receipts[created.ID]
		r.CreatedAt = base.Add(-time.Duration(i) * time.Minute)
		repo.receipts[created.ID] = r
		if err := svc.SoftDelete(ctx, userID, created.ID); err != nil {
			t.Fatalf("soft delete failed: %v", err)
		}
		ids[i] = created.ID
	}

	transportErr := errors.New("deadline exceeded")
	repo.deleteErr[ids[1]] = transportErr

	err := svc.EmptyTrash(ctx, userID)
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected the transport error to surface, got %v", err)
	}

	if _, ok := repo.receipts[ids[0]]; ok {
		t.Errorf("receipt before the failure should be purged")
	}
	r, ok := repo.receipts[ids[1]]
	if !ok || !r.IsDeleted {
		t.Errorf("failing receipt should remain in the trash")
	}
	if _, ok := repo.receipts[ids[2]]; !ok {
		t.Errorf("receipt after the failure point should remain (iteration stopped)")
	}
}

func TestEmptyTrashRemovesAll(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		created, err := svc.CreateFromRaw(ctx, userID, scanPayload())
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := svc.SoftDelete(ctx, userID, created.ID); err != nil {
			t.Fatalf("soft delete failed: %v", err)
		}
	}
	keep, err := svc.CreateFromRaw(ctx, userID, scanPayload())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.EmptyTrash(ctx, userID); err != nil {
		t.Fatalf("empty trash failed: %v", err)
	}
	if len(repo.receipts) != 1 {
		t.Fatalf("repo has %d receipts, want only the active one", len(repo.receipts))
	}
	if _, ok := repo.receipts[keep.ID]; !ok {
		t.Errorf("active receipt must survive emptying the trash")
	}
}

func TestMigrateLocalAbortsOnFirstFailure(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	records := []map[string]any{
		{"storeName": "Migros", "total": 99.0},
		{"storeName": "A101", "total": 45.0, "payment": map[string]any{"type": "bitcoin"}},
		{"storeName": "Şok", "total": 12.0},
	}

	migrated, err := svc.MigrateLocal(ctx, userID, records)
	var verr *normalizer.ValidationError
	if !errors.As(err, &verr) || verr.Kind != normalizer.InvalidPaymentType {
		t.Fatalf("expected InvalidPaymentType, got %v", err)
	}
	if migrated != 1 {
		t.Fatalf("migrated = %d, want 1 (records before the failure stay migrated)", migrated)
	}

	active, _ := svc.ListActive(ctx, userID)
	if len(active) != 1 || active[0].StoreName != "Migros" {
		t.Fatalf("only the first record should have been stored")
	}
}

func TestMigrateLocalDefaultsLegacyRecords(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	migrated, err := svc.MigrateLocal(ctx, userID, []map[string]any{
		{"total": 45.0},
	})
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if migrated != 1 {
		t.Fatalf("migrated = %d, want 1", migrated)
	}

	active, _ := svc.ListActive(ctx, userID)
	if len(active) != 1 {
		t.Fatalf("active list = %d", len(active))
	}
	r := active[0]
	if r.StoreName != normalizer.UnknownStore {
		t.Errorf("storeName = %q, want placeholder", r.StoreName)
	}
	want := entity.Totals{Subtotal: 45, KDV: 0, Total: 45}
	if got := r.Totals.Data(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
}

func TestBackfillLegacyShape(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	// A record written under the old flat schema: no nested payment/totals.
	legacy := entity.Receipt{
		ID:        uuid.New(),
		UserID:    userID,
		StoreName: "Migros",
		Total:     45,
		CreatedAt: time.Now(),
	}
	repo.receipts[legacy.ID] = legacy

	canonical, err := svc.CreateFromRaw(ctx, userID, scanPayload())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	upgraded, err := svc.BackfillLegacyShape(ctx, userID)
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}
	if upgraded != 1 {
		t.Fatalf("upgraded = %d, want 1", upgraded)
	}

	got := repo.receipts[legacy.ID]
	wantTotals := entity.Totals{Subtotal: 45, KDV: 0, Total: 45}
	if got.Totals.Data() != wantTotals {
		t.Errorf("totals = %+v, want %+v", got.Totals.Data(), wantTotals)
	}
	if got.Payment.Data().Type != enum.PaymentCash {
		t.Errorf("payment = %+v, want cash", got.Payment.Data())
	}
	if got.Footer.Data() != (entity.Footer{}) {
		t.Errorf("footer = %+v, want all empty", got.Footer.Data())
	}

	// The canonical record keeps its totals untouched.
	kept := repo.receipts[canonical.ID]
	if kept.Totals.Data() != (entity.Totals{Subtotal: 150.50, KDV: 0, Total: 150.50}) {
		t.Errorf("canonical record was rewritten: %+v", kept.Totals.Data())
	}

	// Running the backfill again is a no-op.
	upgraded, err = svc.BackfillLegacyShape(ctx, userID)
	if err != nil {
		t.Fatalf("second backfill failed: %v", err)
	}
	if upgraded != 0 {
		t.Errorf("second backfill upgraded %d records, want 0", upgraded)
	}
}

func TestCashNeverPersistsCardFields(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	raw := scanPayload()
	raw["payment"] = map[string]any{"type": "cash"}
	created, err := svc.CreateFromRaw(ctx, userID, raw)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored := repo.receipts[created.ID]
	p := stored.Payment.Data()
	if p.Type != enum.PaymentCash || p.Bank != "" || p.CardInfo != nil {
		t.Errorf("stored payment = %+v, want bare cash", p)
	}
}
