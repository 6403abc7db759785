package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fisarsiv/fisarsiv-api/internal/domain/enum"
)

// ReceiptItem is a single line item on a receipt. Slice order is display
// order and is preserved as stored.
type ReceiptItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	TaxRate  float64 `json:"taxRate"`
}

// CardInfo holds the card slip details printed on card-paid receipts.
type CardInfo struct {
	Number            string `json:"number"`
	Installment       string `json:"installment"`
	InstallmentAmount string `json:"installmentAmount"`
	ApprovalCode      string `json:"approvalCode"`
	RefNo             string `json:"refNo"`
	ProvisionNo       string `json:"provisionNo"`
	BatchNo           string `json:"batchNo"`
	TerminalID        string `json:"terminalId"`
}

// Payment is a tagged union: cash payments carry no bank or card details,
// card payments carry both. Use CashPayment/CardPayment instead of building
// the struct by hand so a cash record can never hold stray card fields.
type Payment struct {
	Type     enum.PaymentType `json:"type"`
	Bank     string           `json:"bank,omitempty"`
	CardInfo *CardInfo        `json:"cardInfo,omitempty"`
}

// CashPayment returns a cash payment.
func CashPayment() Payment {
	return Payment{Type: enum.PaymentCash}
}

// CardPayment returns a card payment with the given bank and slip details.
func CardPayment(bank string, info CardInfo) Payment {
	return Payment{Type: enum.PaymentCard, Bank: bank, CardInfo: &info}
}

// Clean strips card fields from non-card payments.
func (p Payment) Clean() Payment {
	if p.Type != enum.PaymentCard {
		return Payment{Type: p.Type}
	}
	return p
}

// Totals holds the amount summary of a receipt. Whether total equals
// subtotal plus KDV is trusted, not enforced; scanned receipts round these
// fields independently and rejecting them would discard otherwise valid scans.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	KDV      float64 `json:"kdv"`
	Total    float64 `json:"total"`
}

// Footer is the fiscal-audit trailer printed at the bottom of a receipt.
// Every field is optional and defaults to the empty string.
type Footer struct {
	ZNo             string `json:"zNo"`
	EKUNo           string `json:"ekuNo"`
	POSInfo         string `json:"posInfo"`
	StoreCode       string `json:"storeCode"`
	Barcode         string `json:"barcode"`
	IrsaliyeText    string `json:"irsaliyeText"`
	SignatureText   string `json:"signatureText"`
	ThankYouMessage string `json:"thankYouMessage"`
}

// CustomerInfo is present only on invoice-type receipts issued to a named
// customer.
type CustomerInfo struct {
	VKN     string `json:"vkn"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

// Receipt is the canonical archived receipt. A receipt is either Active
// (IsDeleted false, DeletedAt nil) or Deleted (IsDeleted true, DeletedAt
// set); hard deletion removes the row entirely. ID and UserID never change
// after creation, and no field-edit path exists.
type Receipt struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	StoreName    string    `gorm:"size:255;not null" json:"storeName"`
	StoreAddress string    `gorm:"type:text" json:"storeAddress"`
	VdbNo        string    `gorm:"size:50;column:vdb_no" json:"vdbNo"`
	ReceiptType  string    `gorm:"size:50" json:"receiptType"`
	ReceiptNo    string    `gorm:"size:100" json:"receiptNo"`
	Date         string    `gorm:"size:10" json:"date"`
	Time         string    `gorm:"size:20" json:"time"`
	ETTN         string    `gorm:"size:100;column:ettn" json:"ettn"`
	FaturaNo     string    `gorm:"size:100" json:"faturaNo"`

	Customer datatypes.JSONType[*CustomerInfo] `gorm:"type:jsonb" json:"customer"`
	Items    datatypes.JSONSlice[ReceiptItem]  `gorm:"type:jsonb" json:"items"`
	Payment  datatypes.JSONType[Payment]       `gorm:"type:jsonb" json:"payment"`
	Totals   datatypes.JSONType[Totals]        `gorm:"type:jsonb" json:"totals"`
	Footer   datatypes.JSONType[Footer]        `gorm:"type:jsonb" json:"footer"`

	// Total is the flat amount written by the pre-JSONB schema. Kept only so
	// BackfillLegacyShape can expand it into Totals; new writes leave it zero.
	Total float64 `gorm:"default:0" json:"-"`

	IsDeleted bool       `gorm:"not null;default:false;index" json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// BeforeCreate generates a UUID before inserting a new receipt
func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Receipt model
func (Receipt) TableName() string {
	return "receipts"
}

// NeedsBackfill reports whether the record was written under the old flat
// schema and still lacks the nested totals/payment structure.
func (r *Receipt) NeedsBackfill() bool {
	return !r.Payment.Data().Type.Valid()
}
