package cart

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// State is the cart aggregate: ordered line items plus derived totals.
// TotalQuantity is always the sum of quantities and TotalAmount the sum of
// item subtotals.
type State struct {
	Items         []LineItem
	TotalQuantity int
	TotalAmount   decimal.Decimal
}

// Empty returns the zero cart.
func Empty() State {
	return State{Items: []LineItem{}, TotalAmount: decimal.Zero}
}

// Item returns the line item with the given id, if present.
func (s State) Item(id ItemID) (LineItem, bool) {
	if idx := s.indexOf(id); idx >= 0 {
		return s.Items[idx], true
	}
	return LineItem{}, false
}

// Equal reports whether both states hold the same items, in the same order,
// with numerically equal prices and totals.
func (s State) Equal(other State) bool {
	if len(s.Items) != len(other.Items) ||
		s.TotalQuantity != other.TotalQuantity ||
		!s.TotalAmount.Equal(other.TotalAmount) {
		return false
	}
	for i := range s.Items {
		if !s.Items[i].equal(other.Items[i]) {
			return false
		}
	}
	return true
}

// Normalize returns a state that satisfies every cart invariant: items with
// an empty id or quantity below one are dropped, duplicate ids are merged into
// the first occurrence, negative or out-of-range prices become zero and totals
// are recomputed.
// Normalizing a valid state yields an equal state.
func (s State) Normalize() State {
	out := State{Items: make([]LineItem, 0, len(s.Items))}
	for _, item := range s.Items {
		if item.ID == "" || item.Quantity < 1 {
			continue
		}
		if item.Price.IsNegative() || !priceInRange(item.Price) {
			item.Price = decimal.Zero
		}
		if idx := out.indexOf(item.ID); idx >= 0 {
			out.Items[idx].Quantity += item.Quantity
			continue
		}
		out.Items = append(out.Items, item)
	}
	out.recomputeTotals()
	return out
}

func (s State) clone() State {
	items := make([]LineItem, len(s.Items))
	copy(items, s.Items)
	return State{Items: items, TotalQuantity: s.TotalQuantity, TotalAmount: s.TotalAmount}
}

func (s State) indexOf(id ItemID) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) removeAt(idx int) {
	item := s.Items[idx]
	s.TotalAmount = s.TotalAmount.Sub(item.Subtotal())
	s.TotalQuantity -= item.Quantity
	s.Items = append(s.Items[:idx], s.Items[idx+1:]...)
}

func (s *State) recomputeTotals() {
	s.TotalQuantity = 0
	s.TotalAmount = decimal.Zero
	for _, item := range s.Items {
		s.TotalQuantity += item.Quantity
		s.TotalAmount = s.TotalAmount.Add(item.Subtotal())
	}
}

type lineItemJSON struct {
	ID       ItemID      `json:"id"`
	Title    string      `json:"title"`
	Price    json.Number `json:"price"`
	ImageURL string      `json:"imageUrl"`
	Quantity int         `json:"quantity"`
}

type stateJSON struct {
	Items         []lineItemJSON `json:"items"`
	TotalQuantity int            `json:"totalQuantity"`
	TotalAmount   json.Number    `json:"totalAmount"`
}

// MarshalJSON writes the snapshot layout with prices and totals as JSON numbers.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{
		Items:         make([]lineItemJSON, 0, len(s.Items)),
		TotalQuantity: s.TotalQuantity,
		TotalAmount:   json.Number(s.TotalAmount.String()),
	}
	for _, item := range s.Items {
		out.Items = append(out.Items, lineItemJSON{
			ID:       item.ID,
			Title:    item.Title,
			Price:    json.Number(item.Price.String()),
			ImageURL: item.ImageURL,
			Quantity: item.Quantity,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the snapshot layout. It does not normalize; callers
// restoring persisted data should call Normalize.
func (s *State) UnmarshalJSON(b []byte) error {
	var in stateJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	next := State{Items: make([]LineItem, 0, len(in.Items)), TotalQuantity: in.TotalQuantity}
	for i, item := range in.Items {
		price, err := parseNumber(item.Price)
		if err != nil {
			return fmt.Errorf("items[%d].price: %w", i, err)
		}
		next.Items = append(next.Items, LineItem{
			ID:       item.ID,
			Title:    item.Title,
			Price:    price,
			ImageURL: item.ImageURL,
			Quantity: item.Quantity,
		})
	}
	total, err := parseNumber(in.TotalAmount)
	if err != nil {
		return fmt.Errorf("totalAmount: %w", err)
	}
	next.TotalAmount = total

	*s = next
	return nil
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
