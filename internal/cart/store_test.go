package cart

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/unibazzar/unibazzar-cart/pkg/errors"
)

func pen() ProductInput {
	return ProductInput{ID: "1", Title: "Pen", Price: PriceFromFloat(10), ImageURL: "x"}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func requireTotals(t *testing.T, st State, quantity int, amount string) {
	t.Helper()
	require.Equal(t, quantity, st.TotalQuantity, "totalQuantity")
	require.True(t, st.TotalAmount.Equal(dec(t, amount)), "totalAmount: want %s got %s", amount, st.TotalAmount)
}

func TestStoreScenarioAddIncrementDecrease(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	st, err := store.Add(ctx, pen())
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.Equal(t, 1, st.Items[0].Quantity)
	assert.Equal(t, "Pen", st.Items[0].Title)
	assert.Equal(t, "x", st.Items[0].ImageURL)
	requireTotals(t, st, 1, "10")

	st, err = store.Add(ctx, pen())
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.Equal(t, 2, st.Items[0].Quantity)
	requireTotals(t, st, 2, "20")

	st = store.Decrease(ctx, "1")
	require.Len(t, st.Items, 1)
	assert.Equal(t, 1, st.Items[0].Quantity)
	requireTotals(t, st, 1, "10")

	st = store.Decrease(ctx, "1")
	assert.Empty(t, st.Items)
	requireTotals(t, st, 0, "0")
}

func TestStoreScenarioClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	_, err := store.Add(ctx, ProductInput{ID: "2", Title: "Book", Price: PriceFromFloat(50), ImageURL: "y"})
	require.NoError(t, err)

	st := store.Clear(ctx)
	assert.Empty(t, st.Items)
	requireTotals(t, st, 0, "0")
	assert.True(t, store.Snapshot().Equal(Empty()))
}

func TestStoreScenarioMalformedPriceCountsAsZero(t *testing.T) {
	ctx := context.Background()
	var sanitized []error
	store := NewStore(Empty(), WithPriceHook(func(_ context.Context, in ProductInput, cause error) error {
		sanitized = append(sanitized, cause)
		return nil
	}))

	st, err := store.Add(ctx, ProductInput{ID: "3", Title: "Bad", Price: Price("notanumber"), ImageURL: "z"})
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.True(t, st.Items[0].Price.IsZero())
	assert.Equal(t, 1, st.Items[0].Quantity)
	requireTotals(t, st, 1, "0")

	require.Len(t, sanitized, 1)
	assert.ErrorIs(t, sanitized[0], ErrInvalidPrice)
}

func TestStoreOutOfRangePriceCountsAsZero(t *testing.T) {
	ctx := context.Background()
	var sanitized []error
	store := NewStore(Empty(), WithPriceHook(func(_ context.Context, _ ProductInput, cause error) error {
		sanitized = append(sanitized, cause)
		return nil
	}))

	for _, raw := range []string{"1e5000000", "1e-5000000"} {
		_, err := store.Add(ctx, ProductInput{ID: "huge", Price: Price(raw)})
		require.NoError(t, err)
	}

	st := store.Snapshot()
	require.Len(t, st.Items, 1)
	assert.True(t, st.Items[0].Price.IsZero())
	requireTotals(t, st, 2, "0")

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Less(t, len(raw), 256)

	require.Len(t, sanitized, 2)
	for _, cause := range sanitized {
		assert.ErrorIs(t, cause, ErrPriceOutOfRange)
	}
}

func TestStoreStrictPriceHookRejectsOutOfRange(t *testing.T) {
	store := NewStore(Empty(), WithPriceHook(StrictPriceHook()))

	_, err := store.Add(context.Background(), ProductInput{ID: "9", Price: Price("1e1000000000")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRejected))
	assert.ErrorIs(t, err, ErrPriceOutOfRange)
	assert.Empty(t, store.Snapshot().Items)
}

func TestStoreNumericIDSpellingsShareALine(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	for _, body := range []string{`{"id":1,"price":2}`, `{"id":1.0,"price":2}`, `{"id":"1","price":2}`} {
		var in ProductInput
		require.NoError(t, json.Unmarshal([]byte(body), &in))
		_, err := store.Add(ctx, in)
		require.NoError(t, err)
	}

	st := store.Snapshot()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 3, st.Items[0].Quantity)
	requireTotals(t, st, 3, "6")
}

func TestStoreAddKeepsFirstRecordedPrice(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	_, err := store.Add(ctx, ProductInput{ID: "7", Title: "Mug", Price: Price("4.25")})
	require.NoError(t, err)
	st, err := store.Add(ctx, ProductInput{ID: "7", Title: "Mug v2", Price: Price("9.00")})
	require.NoError(t, err)

	require.Len(t, st.Items, 1)
	assert.Equal(t, "Mug", st.Items[0].Title)
	assert.True(t, st.Items[0].Price.Equal(dec(t, "4.25")))
	requireTotals(t, st, 2, "8.5")
}

func TestStoreAddPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	for _, id := range []ItemID{"c", "a", "b", "a"} {
		_, err := store.Add(ctx, ProductInput{ID: id, Price: Price("1")})
		require.NoError(t, err)
	}

	st := store.Snapshot()
	require.Len(t, st.Items, 3)
	assert.Equal(t, []ItemID{"c", "a", "b"}, []ItemID{st.Items[0].ID, st.Items[1].ID, st.Items[2].ID})
}

func TestStoreAddExactDecimalTotals(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	for i := 0; i < 3; i++ {
		_, err := store.Add(ctx, ProductInput{ID: "dime", Price: Price("0.1")})
		require.NoError(t, err)
	}
	_, err := store.Add(ctx, ProductInput{ID: "fifth", Price: Price("0.2")})
	require.NoError(t, err)

	requireTotals(t, store.Snapshot(), 4, "0.5")
}

func TestStoreAddMissingIDIsValidationError(t *testing.T) {
	store := NewStore(Empty())
	var notified int
	store.Subscribe(SubscriberFunc(func(context.Context, Event) { notified++ }))

	_, err := store.Add(context.Background(), ProductInput{Title: "Nameless", Price: Price("3")})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{"id": "required"}, typed.Details())
	assert.Zero(t, notified)
	assert.True(t, store.Snapshot().Equal(Empty()))
}

func TestStoreStrictPriceHookRejects(t *testing.T) {
	store := NewStore(Empty(), WithPriceHook(StrictPriceHook()))

	_, err := store.Add(context.Background(), ProductInput{ID: "9", Price: Price("-4")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRejected))
	assert.ErrorIs(t, err, ErrNegativePrice)
	assert.Empty(t, store.Snapshot().Items)

	_, err = store.Add(context.Background(), ProductInput{ID: "9", Price: Price("4")})
	require.NoError(t, err)
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())
	for i := 0; i < 3; i++ {
		_, err := store.Add(ctx, pen())
		require.NoError(t, err)
	}
	_, err := store.Add(ctx, ProductInput{ID: "2", Title: "Book", Price: Price("50")})
	require.NoError(t, err)

	st := store.Remove(ctx, "1")
	require.Len(t, st.Items, 1)
	assert.Equal(t, ItemID("2"), st.Items[0].ID)
	requireTotals(t, st, 1, "50")

	again := store.Remove(ctx, "1")
	assert.True(t, again.Equal(st), "second remove must not change state")
}

func TestStoreUnknownIDsAreNoops(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())
	_, err := store.Add(ctx, pen())
	require.NoError(t, err)
	before := store.Snapshot()

	var events []Event
	store.Subscribe(SubscriberFunc(func(_ context.Context, ev Event) { events = append(events, ev) }))

	assert.True(t, store.Remove(ctx, "missing").Equal(before))
	assert.True(t, store.Decrease(ctx, "missing").Equal(before))

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.False(t, ev.Changed)
		assert.True(t, ev.State.Equal(before))
	}
}

func TestStoreSubscribersSeeEveryCommandInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	var order []string
	var quantities []int
	store.Subscribe(SubscriberFunc(func(_ context.Context, ev Event) {
		order = append(order, "first:"+string(ev.Command))
		quantities = append(quantities, ev.State.TotalQuantity)
	}))
	unsubscribe := store.Subscribe(SubscriberFunc(func(_ context.Context, ev Event) {
		order = append(order, "second:"+string(ev.Command))
	}))

	_, err := store.Add(ctx, pen())
	require.NoError(t, err)
	_, err = store.Add(ctx, pen())
	require.NoError(t, err)
	unsubscribe()
	store.Decrease(ctx, "1")
	store.Clear(ctx)

	assert.Equal(t, []string{
		"first:add", "second:add",
		"first:add", "second:add",
		"first:decrease",
		"first:clear",
	}, order)
	assert.Equal(t, []int{1, 2, 1, 0}, quantities)
}

func TestStoreSubscriberCannotMutateStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())
	store.Subscribe(SubscriberFunc(func(_ context.Context, ev Event) {
		if len(ev.State.Items) > 0 {
			ev.State.Items[0].Quantity = 99
		}
	}))

	_, err := store.Add(ctx, pen())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Snapshot().Items[0].Quantity)
}

func TestStoreSubscriberMayReadSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())
	var seen int
	store.Subscribe(SubscriberFunc(func(context.Context, Event) {
		seen = store.Snapshot().TotalQuantity
	}))

	_, err := store.Add(ctx, pen())
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestNewStoreNormalizesInitialState(t *testing.T) {
	initial := State{
		Items: []LineItem{
			{ID: "a", Price: decimal.NewFromInt(2), Quantity: 1},
			{ID: "b", Price: decimal.NewFromInt(5), Quantity: 0},
			{ID: "a", Price: decimal.NewFromInt(7), Quantity: 2},
		},
		TotalQuantity: 40,
		TotalAmount:   decimal.NewFromInt(1000),
	}

	st := NewStore(initial).Snapshot()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 3, st.Items[0].Quantity)
	requireTotals(t, st, 3, "6")
}

func TestStoreConcurrentCommandsKeepInvariants(t *testing.T) {
	ctx := context.Background()
	store := NewStore(Empty())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := ItemID([]string{"a", "b", "c"}[(worker+i)%3])
				if i%4 == 3 {
					store.Decrease(ctx, id)
					continue
				}
				_, _ = store.Add(ctx, ProductInput{ID: id, Price: Price("1.5")})
			}
		}(w)
	}
	wg.Wait()

	requireInvariants(t, store.Snapshot())
}

func TestStoreRandomCommandSequencesMatchModel(t *testing.T) {
	ids := []ItemID{"a", "b", "c", "d"}
	prices := []string{"1.10", "2.5", "abc", "0", "19.99", ""}

	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		ctx := context.Background()
		store := NewStore(Empty())
		model := newCartModel()

		for step := 0; step < 200; step++ {
			id := ids[rng.Intn(len(ids))]
			var st State
			switch op := rng.Intn(10); {
			case op < 5:
				raw := prices[rng.Intn(len(prices))]
				var err error
				st, err = store.Add(ctx, ProductInput{ID: id, Price: Price(raw)})
				require.NoError(t, err)
				model.add(id, raw)
			case op < 7:
				st = store.Decrease(ctx, id)
				model.decrease(id)
			case op < 9:
				st = store.Remove(ctx, id)
				model.remove(id)
			default:
				st = store.Clear(ctx)
				model = newCartModel()
			}

			requireInvariants(t, st)
			model.requireMatches(t, st)
		}
	}
}

func requireInvariants(t *testing.T, st State) {
	t.Helper()
	seen := map[ItemID]bool{}
	quantity := 0
	amount := decimal.Zero
	for _, item := range st.Items {
		require.False(t, seen[item.ID], "duplicate id %s", item.ID)
		seen[item.ID] = true
		require.Greater(t, item.Quantity, 0, "item %s has non-positive quantity", item.ID)
		quantity += item.Quantity
		amount = amount.Add(item.Subtotal())
	}
	require.Equal(t, quantity, st.TotalQuantity)
	require.True(t, amount.Equal(st.TotalAmount), "amount %s != %s", amount, st.TotalAmount)
}

type cartModel struct {
	order []ItemID
	qty   map[ItemID]int
	price map[ItemID]decimal.Decimal
}

func newCartModel() *cartModel {
	return &cartModel{qty: map[ItemID]int{}, price: map[ItemID]decimal.Decimal{}}
}

func (m *cartModel) add(id ItemID, raw string) {
	if m.qty[id] == 0 {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			p = decimal.Zero
		}
		m.order = append(m.order, id)
		m.price[id] = p
	}
	m.qty[id]++
}

func (m *cartModel) decrease(id ItemID) {
	switch m.qty[id] {
	case 0:
	case 1:
		m.remove(id)
	default:
		m.qty[id]--
	}
}

func (m *cartModel) remove(id ItemID) {
	if m.qty[id] == 0 {
		return
	}
	delete(m.qty, id)
	delete(m.price, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *cartModel) requireMatches(t *testing.T, st State) {
	t.Helper()
	require.Len(t, st.Items, len(m.order))
	for i, id := range m.order {
		require.Equal(t, id, st.Items[i].ID)
		require.Equal(t, m.qty[id], st.Items[i].Quantity)
		require.True(t, m.price[id].Equal(st.Items[i].Price))
	}
}

func TestChainPriceHooksStopsAtFirstRejection(t *testing.T) {
	var calls []string
	reject := errors.New("nope")
	hook := ChainPriceHooks(
		func(context.Context, ProductInput, error) error { calls = append(calls, "count"); return nil },
		nil,
		func(context.Context, ProductInput, error) error { calls = append(calls, "reject"); return reject },
		func(context.Context, ProductInput, error) error { calls = append(calls, "never"); return nil },
	)

	err := hook(context.Background(), ProductInput{ID: "1"}, ErrInvalidPrice)
	assert.ErrorIs(t, err, reject)
	assert.Equal(t, []string{"count", "reject"}, calls)
}

type recordedCommand struct {
	command   string
	quantity  int
	lineItems int
}

type fakeRecorder struct {
	calls []recordedCommand
}

func (f *fakeRecorder) ObserveCommand(command string, totalQuantity, lineItems int) {
	f.calls = append(f.calls, recordedCommand{command, totalQuantity, lineItems})
}

func TestMetricsSubscriberReportsCommands(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	store := NewStore(Empty())
	store.Subscribe(NewMetricsSubscriber(rec))

	_, err := store.Add(ctx, pen())
	require.NoError(t, err)
	_, err = store.Add(ctx, ProductInput{ID: "2", Price: Price("3")})
	require.NoError(t, err)
	store.Remove(ctx, "1")

	assert.Equal(t, []recordedCommand{
		{"add", 1, 1},
		{"add", 2, 2},
		{"remove", 1, 1},
	}, rec.calls)
}
