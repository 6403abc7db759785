package enum

import "encoding/json"

// PaymentType is how a receipt was paid.
type PaymentType string

const (
	PaymentCash PaymentType = "cash"
	PaymentCard PaymentType = "card"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	return t == PaymentCash || t == PaymentCard
}

func (t PaymentType) String() string {
	return string(t)
}

func (t PaymentType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *PaymentType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*t = PaymentType(str)
	return nil
}
