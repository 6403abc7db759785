package normalizer

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/enum"
)

func fixedClock() time.Time {
	return time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)
}

func newTestNormalizer() *Normalizer {
	return NewWithClock(fixedClock)
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

func TestNormalizeAppliesDefaults(t *testing.T) {
	r, err := newTestNormalizer().Normalize(scanPayload())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if r.StoreName != "ABC Market" {
		t.Errorf("storeName = %q", r.StoreName)
	}
	if r.ReceiptType != "FATURA" {
		t.Errorf("receiptType = %q, want FATURA", r.ReceiptType)
	}
	if r.Time != "14:30:45" {
		t.Errorf("time default = %q", r.Time)
	}
	if got := r.Payment.Data(); got.Type != enum.PaymentCash || got.Bank != "" || got.CardInfo != nil {
		t.Errorf("payment = %+v, want bare cash", got)
	}
	wantTotals := entity.Totals{Subtotal: 150.50, KDV: 0, Total: 150.50}
	if got := r.Totals.Data(); got != wantTotals {
		t.Errorf("totals = %+v, want %+v", got, wantTotals)
	}
	if got := r.Footer.Data(); got != (entity.Footer{}) {
		t.Errorf("footer = %+v, want all empty", got)
	}
	if len(r.Items) != 1 {
		t.Fatalf("items length = %d, want 1", len(r.Items))
	}
	want := entity.ReceiptItem{Name: "Ekmek", Quantity: 2, Price: 10}
	if r.Items[0] != want {
		t.Errorf("item = %+v, want %+v", r.Items[0], want)
	}
	if r.Customer.Data() != nil {
		t.Errorf("customer should be nil for scan without customer block")
	}
}

func TestNormalizePreservesItemOrderAndCount(t *testing.T) {
	raw := scanPayload()
	raw["items"] = []any{
		map[string]any{"name": "Süt", "quantity": 1.0, "price": 32.5, "taxRate": 1.0},
		map[string]any{"name": "Peynir", "quantity": 0.5, "price": 240.0, "taxRate": 1.0},
		map[string]any{"name": "Ekmek", "quantity": 2.0, "price": 10.0, "taxRate": 1.0},
	}

	r, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(r.Items) != 3 {
		t.Fatalf("items length = %d, want 3", len(r.Items))
	}
	for i, name := range []string{"Süt", "Peynir", "Ekmek"} {
		if r.Items[i].Name != name {
			t.Errorf("item %d = %q, want %q", i, r.Items[i].Name, name)
		}
	}
}

func TestNormalizeMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"no store name", func(m map[string]any) { delete(m, "storeName") }, "storeName"},
		{"empty store name", func(m map[string]any) { m["storeName"] = "" }, "storeName"},
		{"no date", func(m map[string]any) { delete(m, "date") }, "date"},
		{"no total", func(m map[string]any) { delete(m, "total") }, "total"},
		{"no items", func(m map[string]any) { delete(m, "items") }, "items"},
		{"empty items", func(m map[string]any) { m["items"] = []any{} }, "items"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := scanPayload()
			tc.mutate(raw)

			_, err := newTestNormalizer().Normalize(raw)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Kind != MissingField || verr.Field != tc.field {
				t.Errorf("got kind=%d field=%q, want MissingField %q", verr.Kind, verr.Field, tc.field)
			}
		})
	}
}

func TestNormalizeNestedTotalsSatisfiesTotalRequirement(t *testing.T) {
	raw := scanPayload()
	delete(raw, "total")
	raw["totals"] = map[string]any{"subtotal": 100.0, "kdv": 18.0, "total": 118.0}

	r, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	want := entity.Totals{Subtotal: 100, KDV: 18, Total: 118}
	if got := r.Totals.Data(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
}

func TestNormalizeRejectsBadItems(t *testing.T) {
	cases := []struct {
		name   string
		item   any
		field  string
	}{
		{"non-numeric quantity", map[string]any{"name": "Ekmek", "quantity": "iki", "price": 10.0}, "quantity"},
		{"missing price", map[string]any{"name": "Ekmek", "quantity": 2.0}, "price"},
		{"not an object", "Ekmek", "item"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := scanPayload()
			raw["items"] = []any{
				map[string]any{"name": "Süt", "quantity": 1.0, "price": 32.5},
				tc.item,
			}

			_, err := newTestNormalizer().Normalize(raw)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Kind != InvalidItem || verr.Index != 1 || verr.Field != tc.field {
				t.Errorf("got kind=%d index=%d field=%q, want InvalidItem index 1 field %q",
					verr.Kind, verr.Index, verr.Field, tc.field)
			}
		})
	}
}

func TestNormalizeCoercesStringAmounts(t *testing.T) {
	raw := scanPayload()
	raw["total"] = "150.50"
	raw["items"] = []any{
		map[string]any{"name": "Ekmek", "quantity": "2", "price": "10.5"},
	}

	r, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if r.Items[0].Quantity != 2 || r.Items[0].Price != 10.5 {
		t.Errorf("item = %+v, want coerced 2 and 10.5", r.Items[0])
	}
	if got := r.Totals.Data().Total; got != 150.50 {
		t.Errorf("total = %v, want 150.50", got)
	}
}

func TestNormalizePaymentValidation(t *testing.T) {
	t.Run("unknown type rejected", func(t *testing.T) {
		raw := scanPayload()
		raw["payment"] = map[string]any{"type": "check"}

		_, err := newTestNormalizer().Normalize(raw)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Kind != InvalidPaymentType {
			t.Fatalf("expected InvalidPaymentType, got %v", err)
		}
	})

	t.Run("card without details rejected", func(t *testing.T) {
		raw := scanPayload()
		raw["payment"] = map[string]any{"type": "card", "bank": "Ziraat"}

		_, err := newTestNormalizer().Normalize(raw)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Kind != MissingCardInfo {
			t.Fatalf("expected MissingCardInfo, got %v", err)
		}
	})

	t.Run("card with details accepted", func(t *testing.T) {
		raw := scanPayload()
		raw["payment"] = map[string]any{
			"type": "card",
			"bank": "Ziraat",
			"cardInfo": map[string]any{
				"number":       "**** 1234",
				"approvalCode": "123456",
				"terminalId":   "T001",
			},
		}

		r, err := newTestNormalizer().Normalize(raw)
		if err != nil {
			t.Fatalf("normalize failed: %v", err)
		}
		p := r.Payment.Data()
		if p.Type != enum.PaymentCard || p.Bank != "Ziraat" {
			t.Errorf("payment = %+v", p)
		}
		if p.CardInfo == nil || p.CardInfo.Number != "**** 1234" || p.CardInfo.TerminalID != "T001" {
			t.Errorf("cardInfo = %+v", p.CardInfo)
		}
	})

	t.Run("cash never carries card fields", func(t *testing.T) {
		raw := scanPayload()
		raw["payment"] = map[string]any{
			"type":     "cash",
			"bank":     "Ziraat",
			"cardInfo": map[string]any{"number": "**** 1234"},
		}

		r, err := newTestNormalizer().Normalize(raw)
		if err != nil {
			t.Fatalf("normalize failed: %v", err)
		}
		p := r.Payment.Data()
		if p.Bank != "" || p.CardInfo != nil {
			t.Errorf("cash payment carries card fields: %+v", p)
		}
	})
}

func TestNormalizeCustomerBlock(t *testing.T) {
	raw := scanPayload()
	raw["customer"] = map[string]any{
		"vkn":   "1234567890",
		"name":  "Mehmet Yılmaz",
		"email": "mehmet@example.com",
	}

	r, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	c := r.Customer.Data()
	if c == nil || c.VKN != "1234567890" || c.Name != "Mehmet Yılmaz" {
		t.Errorf("customer = %+v", c)
	}
	if c.Address != "" {
		t.Errorf("missing address should default to empty, got %q", c.Address)
	}
}

func TestNormalizeLegacyDefaults(t *testing.T) {
	r, err := newTestNormalizer().NormalizeLegacy(map[string]any{
		"total": 45.0,
		"items": []any{
			map[string]any{"price": 45.0},
		},
	})
	if err != nil {
		t.Fatalf("normalize legacy failed: %v", err)
	}

	if r.StoreName != UnknownStore {
		t.Errorf("storeName = %q, want %q", r.StoreName, UnknownStore)
	}
	if r.Date != "15.06.2024" {
		t.Errorf("date default = %q", r.Date)
	}
	if len(r.Items) != 1 {
		t.Fatalf("items length = %d", len(r.Items))
	}
	item := r.Items[0]
	if item.Name != UnknownItem || item.Quantity != 1 || item.Price != 45 {
		t.Errorf("item = %+v", item)
	}
	want := entity.Totals{Subtotal: 45, KDV: 0, Total: 45}
	if got := r.Totals.Data(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
	if r.Payment.Data().Type != enum.PaymentCash {
		t.Errorf("payment type = %q, want cash", r.Payment.Data().Type)
	}
}

func TestNormalizeLegacyCardWithoutDetails(t *testing.T) {
	r, err := newTestNormalizer().NormalizeLegacy(map[string]any{
		"storeName": "Migros",
		"total":     99.0,
		"payment":   map[string]any{"type": "card"},
	})
	if err != nil {
		t.Fatalf("normalize legacy failed: %v", err)
	}
	p := r.Payment.Data()
	if p.Type != enum.PaymentCard {
		t.Errorf("payment type = %q", p.Type)
	}
	if p.CardInfo == nil {
		t.Fatal("legacy card payment should get empty card details, not nil")
	}
	if *p.CardInfo != (entity.CardInfo{}) {
		t.Errorf("cardInfo = %+v, want all empty", *p.CardInfo)
	}
}

func TestNormalizeIdempotentOnCanonicalInput(t *testing.T) {
	n := newTestNormalizer()
	first, err := n.Normalize(scanPayload())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	// Round-trip the canonical record back through JSON and normalize again.
	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	second, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("second normalize failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalize is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
