// Package normalizer converts loosely-typed scanned QR payloads and legacy
// locally-stored records into canonical Receipt records. It is a pure leaf
// component: no storage, no side effects, deterministic except for the
// current-date defaults applied to missing date/time fields.
package normalizer

import (
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/enum"
)

const (
	// UnknownStore is the placeholder store name applied to legacy records
	// that never captured one.
	UnknownStore = "Bilinmeyen Market"
	// UnknownItem is the placeholder line-item name for legacy records.
	UnknownItem = "Bilinmeyen Ürün"

	defaultReceiptType = "FATURA"

	dateLayout = "02.01.2006"
	timeLayout = "15:04:05"
)

// ErrorKind classifies a validation failure.
type ErrorKind int

const (
	// MissingField means a required top-level field is absent or empty.
	MissingField ErrorKind = iota
	// InvalidItem means a line item has a missing or non-numeric required field.
	InvalidItem
	// InvalidPaymentType means payment.type is neither "cash" nor "card".
	InvalidPaymentType
	// MissingCardInfo means a card payment lacks bank or card details.
	MissingCardInfo
)

// ValidationError reports why a raw payload could not be normalized. Field
// names the offending input field; Index is the line-item index for
// InvalidItem errors and -1 otherwise.
type ValidationError struct {
	Kind  ErrorKind
	Field string
	Index int
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("missing required field %q", e.Field)
	case InvalidItem:
		return fmt.Sprintf("item %d has an invalid or missing %q", e.Index, e.Field)
	case InvalidPaymentType:
		return fmt.Sprintf("unrecognized payment type %q", e.Field)
	case MissingCardInfo:
		return "card payment is missing bank or card details"
	}
	return "invalid receipt payload"
}

func missingField(field string) *ValidationError {
	return &ValidationError{Kind: MissingField, Field: field, Index: -1}
}

func invalidItem(index int, field string) *ValidationError {
	return &ValidationError{Kind: InvalidItem, Field: field, Index: index}
}

// Normalizer shapes raw payloads into canonical receipts.
type Normalizer struct {
	now func() time.Time
}

// New creates a normalizer using the wall clock for date/time defaults.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock creates a normalizer with an injected clock. Tests use this to
// make date/time defaults reproducible.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize converts a scan-sourced payload into a canonical receipt.
// storeName, date, total (or totals) and a non-empty items array are
// required; everything else is defaulted rather than rejected, since QR
// payloads come from arbitrary producers and discarding a partially-valid
// scan loses the record for good.
func (n *Normalizer) Normalize(raw map[string]any) (*entity.Receipt, error) {
	if str(raw["storeName"]) == "" {
		return nil, missingField("storeName")
	}
	if str(raw["date"]) == "" {
		return nil, missingField("date")
	}
	if _, ok := rawTotal(raw); !ok {
		return nil, missingField("total")
	}
	items, ok := raw["items"].([]any)
	if !ok || len(items) == 0 {
		return nil, missingField("items")
	}

	parsed := make([]entity.ReceiptItem, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, invalidItem(i, "item")
		}
		qty, ok := num(m["quantity"])
		if !ok {
			return nil, invalidItem(i, "quantity")
		}
		price, ok := num(m["price"])
		if !ok {
			return nil, invalidItem(i, "price")
		}
		taxRate, _ := num(m["taxRate"])
		parsed = append(parsed, entity.ReceiptItem{
			Name:     str(m["name"]),
			Quantity: qty,
			Price:    price,
			TaxRate:  taxRate,
		})
	}

	payment, err := parsePayment(raw["payment"], true)
	if err != nil {
		return nil, err
	}

	return n.shape(raw, str(raw["storeName"]), parsed, payment), nil
}

// NormalizeLegacy converts a pre-migration local record into a canonical
// receipt. Legacy records were written without validation, so nothing is
// required: missing fields get the same defaults the original local format
// used, including the placeholder store and item names.
func (n *Normalizer) NormalizeLegacy(raw map[string]any) (*entity.Receipt, error) {
	storeName := str(raw["storeName"])
	if storeName == "" {
		storeName = UnknownStore
	}

	var parsed []entity.ReceiptItem
	if items, ok := raw["items"].([]any); ok {
		parsed = make([]entity.ReceiptItem, 0, len(items))
		for _, it := range items {
			m, _ := it.(map[string]any)
			name := str(m["name"])
			if name == "" {
				name = UnknownItem
			}
			qty, ok := num(m["quantity"])
			if !ok || qty == 0 {
				qty = 1
			}
			price, _ := num(m["price"])
			taxRate, _ := num(m["taxRate"])
			parsed = append(parsed, entity.ReceiptItem{
				Name:     name,
				Quantity: qty,
				Price:    price,
				TaxRate:  taxRate,
			})
		}
	}

	payment, err := parsePayment(raw["payment"], false)
	if err != nil {
		return nil, err
	}

	return n.shape(raw, storeName, parsed, payment), nil
}

// shape assembles the canonical record, applying defaults for every optional
// field so nothing is left unset.
func (n *Normalizer) shape(raw map[string]any, storeName string, items []entity.ReceiptItem, payment entity.Payment) *entity.Receipt {
	now := n.now()

	date := str(raw["date"])
	if date == "" {
		date = now.Format(dateLayout)
	}
	timeOfDay := str(raw["time"])
	if timeOfDay == "" {
		timeOfDay = now.Format(timeLayout)
	}
	receiptType := str(raw["receiptType"])
	if receiptType == "" {
		receiptType = defaultReceiptType
	}

	r := &entity.Receipt{
		StoreName:    storeName,
		StoreAddress: str(raw["storeAddress"]),
		VdbNo:        str(raw["vdbNo"]),
		ReceiptType:  receiptType,
		ReceiptNo:    str(raw["receiptNo"]),
		Date:         date,
		Time:         timeOfDay,
		ETTN:         str(raw["ettn"]),
		FaturaNo:     str(raw["faturaNo"]),
	}

	if c, ok := raw["customer"].(map[string]any); ok {
		r.Customer = datatypes.NewJSONType(&entity.CustomerInfo{
			VKN:     str(c["vkn"]),
			Name:    str(c["name"]),
			Address: str(c["address"]),
			Email:   str(c["email"]),
		})
	}

	if items == nil {
		items = []entity.ReceiptItem{}
	}
	r.Items = datatypes.NewJSONSlice(items)
	r.Payment = datatypes.NewJSONType(payment)
	r.Totals = datatypes.NewJSONType(parseTotals(raw))
	r.Footer = datatypes.NewJSONType(parseFooter(raw["footer"]))

	return r
}

// parsePayment validates the payment block. strict requires card payments to
// carry bank and card details; the legacy path defaults them to empty values
// the way the original migration did.
func parsePayment(v any, strict bool) (entity.Payment, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return entity.CashPayment(), nil
	}

	typ := str(m["type"])
	if typ == "" {
		return entity.CashPayment(), nil
	}
	pt := enum.PaymentType(typ)
	if !pt.Valid() {
		return entity.Payment{}, &ValidationError{Kind: InvalidPaymentType, Field: typ, Index: -1}
	}
	if pt == enum.PaymentCash {
		return entity.CashPayment(), nil
	}

	bank := str(m["bank"])
	card, hasCard := m["cardInfo"].(map[string]any)
	if strict && (bank == "" || !hasCard) {
		return entity.Payment{}, &ValidationError{Kind: MissingCardInfo, Field: "cardInfo", Index: -1}
	}

	return entity.CardPayment(bank, entity.CardInfo{
		Number:            str(card["number"]),
		Installment:       str(card["installment"]),
		InstallmentAmount: str(card["installmentAmount"]),
		ApprovalCode:      str(card["approvalCode"]),
		RefNo:             str(card["refNo"]),
		ProvisionNo:       str(card["provisionNo"]),
		BatchNo:           str(card["batchNo"]),
		TerminalID:        str(card["terminalId"]),
	}), nil
}

// parseTotals reads the nested totals block, falling back to the legacy flat
// total: subtotal and total both default to it, kdv defaults to zero.
func parseTotals(raw map[string]any) entity.Totals {
	flat, _ := num(raw["total"])

	t, ok := raw["totals"].(map[string]any)
	if !ok {
		return entity.Totals{Subtotal: flat, KDV: 0, Total: flat}
	}

	subtotal, ok := num(t["subtotal"])
	if !ok {
		subtotal = flat
	}
	kdv, _ := num(t["kdv"])
	total, ok := num(t["total"])
	if !ok {
		total = flat
	}
	return entity.Totals{Subtotal: subtotal, KDV: kdv, Total: total}
}

func parseFooter(v any) entity.Footer {
	f, _ := v.(map[string]any)
	return entity.Footer{
		ZNo:             str(f["zNo"]),
		EKUNo:           str(f["ekuNo"]),
		POSInfo:         str(f["posInfo"]),
		StoreCode:       str(f["storeCode"]),
		Barcode:         str(f["barcode"]),
		IrsaliyeText:    str(f["irsaliyeText"]),
		SignatureText:   str(f["signatureText"]),
		ThankYouMessage: str(f["thankYouMessage"]),
	}
}

// rawTotal reports whether the payload carries any usable amount, flat or
// nested.
func rawTotal(raw map[string]any) (float64, bool) {
	if v, ok := num(raw["total"]); ok {
		return v, true
	}
	if t, ok := raw["totals"].(map[string]any); ok {
		if v, ok := num(t["total"]); ok {
			return v, true
		}
	}
	return 0, false
}

// num coerces a decoded JSON value to a number. QR producers are sloppy:
// amounts arrive as numbers or as digit strings.
func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
