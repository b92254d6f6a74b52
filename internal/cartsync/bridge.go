package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/unibazzar/unibazzar-cart/internal/cart"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

// Hydration outcomes reported to the Recorder.
const (
	HydrateRestored = "restored"
	HydrateEmpty    = "empty"
	HydrateCorrupt  = "corrupt"
	HydrateError    = "error"
)

const defaultTimeout = 2 * time.Second

// Recorder receives persistence metrics.
type Recorder interface {
	ObservePersist(duration time.Duration, err error)
	ObserveHydrate(outcome string)
}

// Bridge mirrors cart state into a SnapshotStore and restores it on start.
// Storage failures never reach the cart: they are logged and recorded.
type Bridge struct {
	store   SnapshotStore
	key     string
	timeout time.Duration
	logg    *logger.Logger
	rec     Recorder
}

type BridgeOption func(*Bridge)

func WithTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithLogger(logg *logger.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logg = logg
	}
}

func WithRecorder(rec Recorder) BridgeOption {
	return func(b *Bridge) {
		b.rec = rec
	}
}

func NewBridge(store SnapshotStore, key string, opts ...BridgeOption) *Bridge {
	b := &Bridge{store: store, key: key, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	if b.logg == nil {
		b.logg = logger.Nop()
	}
	return b
}

// Hydrate returns the persisted cart, or the empty cart when nothing usable is
// stored. Restored snapshots are normalized before they are returned.
func (b *Bridge) Hydrate(ctx context.Context) cart.State {
	ctx = b.logg.WithStorageKey(ctx, b.key)
	loadCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	payload, err := b.store.Load(loadCtx, b.key)
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		b.logg.Info(ctx, "cart.hydrate_empty")
		b.observeHydrate(HydrateEmpty)
		return cart.Empty()
	case err != nil:
		b.logg.Error(ctx, "cart.hydrate_failed", err)
		b.observeHydrate(HydrateError)
		return cart.Empty()
	}

	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		b.logg.Info(ctx, "cart.hydrate_empty")
		b.observeHydrate(HydrateEmpty)
		return cart.Empty()
	}

	var stored cart.State
	if err := json.Unmarshal(payload, &stored); err != nil {
		b.logg.Warn(b.logg.WithField(ctx, "reason", err.Error()), "cart.hydrate_corrupt")
		b.observeHydrate(HydrateCorrupt)
		return cart.Empty()
	}

	state := stored.Normalize()
	if !state.Equal(stored) {
		b.logg.Warn(ctx, "cart.hydrate_normalized")
	}
	b.logg.Info(b.logg.WithFields(ctx, map[string]any{
		"line_items":     len(state.Items),
		"total_quantity": state.TotalQuantity,
	}), "cart.hydrated")
	b.observeHydrate(HydrateRestored)
	return state
}

// Persist overwrites the stored snapshot with state. Errors are logged and
// recorded, never returned.
func (b *Bridge) Persist(ctx context.Context, state cart.State) {
	ctx = b.logg.WithStorageKey(ctx, b.key)
	start := time.Now()

	err := b.save(ctx, state)
	if b.rec != nil {
		b.rec.ObservePersist(time.Since(start), err)
	}
	if err != nil {
		b.logg.Error(ctx, "cart.persist_failed", err)
	}
}

// OnChange persists the post-command state.
func (b *Bridge) OnChange(ctx context.Context, ev cart.Event) {
	b.Persist(ctx, ev.State)
}

// Ready reports whether the snapshot store is reachable.
func (b *Bridge) Ready(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Ping(pingCtx)
}

func (b *Bridge) save(ctx context.Context, state cart.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// Detached from the request so a client hang-up cannot skip the write.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	return b.store.Save(saveCtx, b.key, payload)
}

func (b *Bridge) observeHydrate(outcome string) {
	if b.rec != nil {
		b.rec.ObserveHydrate(outcome)
	}
}
