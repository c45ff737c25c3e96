package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NaN is what a line total renders as when one of its operands is missing or
// not a number.
const NaN = "NaN"

// OrderRecord is a newly created order as published by the order service.
// Every scalar field may be missing or malformed upstream; such values render
// as empty or verbatim text instead of failing the decode.
type OrderRecord struct {
	ID         string     `json:"id,omitempty"`
	TotalPrice Amount     `json:"totalPrice"`
	Email      string     `json:"email"`
	Items      []LineItem `json:"items"`
}

// UnmarshalJSON decodes the order, accepting any JSON value for id and email.
func (o *OrderRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         json.RawMessage `json:"id"`
		TotalPrice Amount          `json:"totalPrice"`
		Email      json.RawMessage `json:"email"`
		Items      []LineItem      `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = OrderRecord{
		ID:         rawText(raw.ID),
		TotalPrice: raw.TotalPrice,
		Email:      rawText(raw.Email),
		Items:      raw.Items,
	}
	return nil
}

// LineItem is one product line of an order.
type LineItem struct {
	Name     string `json:"name"`
	Quantity Amount `json:"quantity"`
	Price    Amount `json:"price"`
}

// UnmarshalJSON decodes the item, accepting any JSON value for the name.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     json.RawMessage `json:"name"`
		Quantity Amount          `json:"quantity"`
		Price    Amount          `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*li = LineItem{Name: rawText(raw.Name), Quantity: raw.Quantity, Price: raw.Price}
	return nil
}

// Total returns quantity × price. ok is false when either operand is not a
// number.
func (li LineItem) Total() (total decimal.Decimal, ok bool) {
	if !li.Quantity.Valid || !li.Price.Valid {
		return decimal.Decimal{}, false
	}
	return li.Quantity.Decimal.Mul(li.Price.Decimal), true
}

// TotalText renders the line total, or NaN when it cannot be computed.
func (li LineItem) TotalText() string {
	total, ok := li.Total()
	if !ok {
		return NaN
	}
	return total.String()
}

// ReceiptLine formats the item as it appears on a receipt:
//
//	Widget - 2 x 50 руб. = 100 руб.
func (li LineItem) ReceiptLine() string {
	return fmt.Sprintf("%s - %s x %s руб. = %s руб.", li.Name, li.Quantity.Text(), li.Price.Text(), li.TotalText())
}

// Amount is a numeric order field as sent upstream. JSON numbers and numeric
// strings decode into Decimal; anything else keeps its raw text with Valid
// false, and null or absent leaves both empty.
type Amount struct {
	Decimal decimal.Decimal
	Valid   bool
	Raw     string
}

// NewAmount returns a valid amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d, Valid: true}
}

// UnmarshalJSON never fails: an unparseable value is kept as text.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	text := rawText(data)
	if text == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		a.Raw = text
		return nil
	}
	a.Decimal, a.Valid = d, true
	return nil
}

// MarshalJSON writes a valid amount as a JSON number and raw text as a string.
func (a Amount) MarshalJSON() ([]byte, error) {
	switch {
	case a.Valid:
		return []byte(a.Decimal.String()), nil
	case a.Raw != "":
		return json.Marshal(a.Raw)
	default:
		return []byte("null"), nil
	}
}

// Text renders the amount in its shortest exact form ("50", "4.5"), the raw
// upstream text when it is not a number, or "" when absent.
func (a Amount) Text() string {
	if a.Valid {
		return a.Decimal.String()
	}
	return a.Raw
}

// FormatMoney renders a money amount for a receipt line.
func FormatMoney(a Amount) string {
	return a.Text()
}

// rawText turns a JSON value into display text: strings are unquoted, null
// and absent become "", and other values keep their JSON spelling.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
