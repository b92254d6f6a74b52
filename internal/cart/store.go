package cart

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/unibazzar/unibazzar-cart/pkg/errors"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Store owns the cart state and applies commands one at a time. Each command
// computes the next state in full, publishes it, then notifies subscribers
// before the next command may start.
type Store struct {
	// cmdMu serializes commands and subscriber changes.
	cmdMu       sync.Mutex
	subscribers []subscription
	nextSubID   int

	// stateMu guards state for readers.
	stateMu sync.RWMutex
	state   State

	priceHook PriceHook
	logg      *logger.Logger
}

type subscription struct {
	id  int
	sub Subscriber
}

// Option customizes a Store.
type Option func(*Store)

// WithPriceHook replaces the hook consulted for unusable prices.
func WithPriceHook(hook PriceHook) Option {
	return func(s *Store) {
		s.priceHook = hook
	}
}

// WithLogger enables debug logging of applied commands.
func WithLogger(logg *logger.Logger) Option {
	return func(s *Store) {
		s.logg = logg
	}
}

// NewStore builds a store seeded with initial, which is normalized first.
func NewStore(initial State, opts ...Option) *Store {
	s := &Store{state: initial.Normalize()}
	for _, opt := range opts {
		opt(s)
	}
	if s.priceHook == nil {
		s.priceHook = LogPriceHook(s.logg)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.clone()
}

// Subscribe registers sub for every subsequent command and returns a function
// that removes it again.
func (s *Store) Subscribe(sub Subscriber) func() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscription{id: id, sub: sub})

	return func() {
		s.cmdMu.Lock()
		defer s.cmdMu.Unlock()
		for i, existing := range s.subscribers {
			if existing.id == id {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Add puts one unit of the product in the cart. A product already present has
// its quantity incremented at the price recorded when it was first added.
// An unusable price is passed to the price hook and, unless the hook rejects
// it, counted as zero. The only other error is a missing id.
func (s *Store) Add(ctx context.Context, in ProductInput) (State, error) {
	if err := validate.Struct(in); err != nil {
		return s.Snapshot(), invalidProduct(err)
	}

	price, cause := in.Price.Parse()
	if cause != nil {
		if err := s.priceHook(ctx, in, cause); err != nil {
			return s.Snapshot(), err
		}
		price = decimal.Zero
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	next := s.state.clone()
	if idx := next.indexOf(in.ID); idx >= 0 {
		next.Items[idx].Quantity++
		next.TotalAmount = next.TotalAmount.Add(next.Items[idx].Price)
	} else {
		next.Items = append(next.Items, LineItem{
			ID:       in.ID,
			Title:    in.Title,
			Price:    price,
			ImageURL: in.ImageURL,
			Quantity: 1,
		})
		next.TotalAmount = next.TotalAmount.Add(price)
	}
	next.TotalQuantity++

	return s.commit(ctx, Event{Command: CommandAdd, ItemID: in.ID, Changed: true}, next), nil
}

// Remove deletes the item regardless of its quantity. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id ItemID) State {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	next := s.state.clone()
	idx := next.indexOf(id)
	if idx >= 0 {
		next.removeAt(idx)
	}
	return s.commit(ctx, Event{Command: CommandRemove, ItemID: id, Changed: idx >= 0}, next)
}

// Decrease takes one unit of the item out of the cart, removing the item when
// its last unit goes. Unknown ids are a no-op.
func (s *Store) Decrease(ctx context.Context, id ItemID) State {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	next := s.state.clone()
	idx := next.indexOf(id)
	switch {
	case idx < 0:
	case next.Items[idx].Quantity > 1:
		next.Items[idx].Quantity--
		next.TotalQuantity--
		next.TotalAmount = next.TotalAmount.Sub(next.Items[idx].Price)
	default:
		next.removeAt(idx)
	}
	return s.commit(ctx, Event{Command: CommandDecrease, ItemID: id, Changed: idx >= 0}, next)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) State {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	return s.commit(ctx, Event{Command: CommandClear, Changed: len(s.state.Items) > 0}, Empty())
}

// commit must be called with cmdMu held.
func (s *Store) commit(ctx context.Context, ev Event, next State) State {
	s.stateMu.Lock()
	s.state = next
	s.stateMu.Unlock()

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"command":        string(ev.Command),
			"item_id":        ev.ItemID.String(),
			"changed":        ev.Changed,
			"total_quantity": next.TotalQuantity,
			"total_amount":   next.TotalAmount.String(),
		})
		s.logg.Debug(logCtx, "cart.command")
	}

	for _, entry := range s.subscribers {
		ev.State = next.clone()
		entry.sub.OnChange(ctx, ev)
	}
	return next.clone()
}

func invalidProduct(err error) error {
	details := map[string]string{}
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product").WithDetails(details)
}
