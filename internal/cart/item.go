package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingPrice is reported when an add carries no price at all.
	ErrMissingPrice = errors.New("price missing")
	// ErrInvalidPrice is reported when the price is not a finite decimal.
	ErrInvalidPrice = errors.New("price is not a number")
	// ErrNegativePrice is reported for prices below zero.
	ErrNegativePrice = errors.New("price is negative")
	// ErrPriceOutOfRange is reported for prices with too many digits or an
	// exponent too large or too small to be a real price.
	ErrPriceOutOfRange = errors.New("price out of range")
)

const (
	maxPriceDigits   = 20
	maxPriceExponent = 12
	minPriceExponent = -12
)

// ItemID identifies a product in the cart. It is opaque to the cart: JSON
// strings are held verbatim and integral numbers as their plain decimal text,
// so the number 1 and the string "1" are the same item.
type ItemID string

func (id ItemID) String() string {
	return string(id)
}

func (id *ItemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ItemID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	*id = ItemID(integralText(n))
	return nil
}

// integralText renders integral JSON numbers in plain decimal form so 1, 1.0
// and 1e0 name the same item. Other numbers keep their literal text.
func integralText(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return n.String()
}

// LineItem is one product held in the cart. Price is the unit price captured
// when the product was first added.
type LineItem struct {
	ID       ItemID
	Title    string
	Price    decimal.Decimal
	ImageURL string
	Quantity int
}

// Subtotal is Price × Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l LineItem) equal(other LineItem) bool {
	return l.ID == other.ID &&
		l.Title == other.Title &&
		l.ImageURL == other.ImageURL &&
		l.Quantity == other.Quantity &&
		l.Price.Equal(other.Price)
}

// ProductInput is the payload accepted by Store.Add.
type ProductInput struct {
	ID       ItemID     `json:"id" validate:"required,max=128"`
	Title    string     `json:"title" validate:"max=512"`
	Price    PriceInput `json:"price"`
	ImageURL string     `json:"imageUrl" validate:"max=2048"`
}

// PriceInput carries a caller-supplied price before it is parsed. It decodes
// from JSON numbers and strings alike and never fails to decode, so a bad
// price reaches the store's price hook instead of failing the request.
type PriceInput struct {
	raw string
}

// Price builds a PriceInput from its textual form.
func Price(raw string) PriceInput {
	return PriceInput{raw: raw}
}

// PriceFromFloat builds a PriceInput from a float64.
func PriceFromFloat(v float64) PriceInput {
	return PriceInput{raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

// PriceFromDecimal builds a PriceInput from an exact decimal.
func PriceFromDecimal(d decimal.Decimal) PriceInput {
	return PriceInput{raw: d.String()}
}

func (p PriceInput) Raw() string {
	return p.raw
}

func (p *PriceInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		p.raw = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			p.raw = string(b)
			return nil
		}
		p.raw = s
	default:
		p.raw = string(b)
	}
	return nil
}

func (p PriceInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.raw)
}

// Parse returns the price as a non-negative decimal. On failure the returned
// decimal is zero and the error explains why.
func (p PriceInput) Parse() (decimal.Decimal, error) {
	raw := strings.TrimSpace(p.raw)
	if raw == "" {
		return decimal.Zero, ErrMissingPrice
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if !priceInRange(d) {
		return decimal.Zero, fmt.Errorf("%w: %.32q", ErrPriceOutOfRange, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativePrice, raw)
	}
	return d, nil
}

// priceInRange bounds the exponent and coefficient so rendering a price or a
// total stays cheap.
func priceInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > maxPriceExponent || exp < minPriceExponent {
		return false
	}
	return d.NumDigits() <= maxPriceDigits
}
