package cart

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unibazzar/unibazzar-cart/api/responses"
	"github.com/unibazzar/unibazzar-cart/api/validators"
	cartsvc "github.com/unibazzar/unibazzar-cart/internal/cart"
	pkgerrors "github.com/unibazzar/unibazzar-cart/pkg/errors"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

// Store is the command and read surface the handlers dispatch to.
type Store interface {
	Snapshot() cartsvc.State
	Add(ctx context.Context, in cartsvc.ProductInput) (cartsvc.State, error)
	Remove(ctx context.Context, id cartsvc.ItemID) cartsvc.State
	Decrease(ctx context.Context, id cartsvc.ItemID) cartsvc.State
	Clear(ctx context.Context) cartsvc.State
}

// CartFetch returns the current cart.
func CartFetch(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		responses.WriteSuccess(w, store.Snapshot())
	}
}

// CartAddItem adds one unit of the posted product.
func CartAddItem(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		var payload cartsvc.ProductInput
		if err := validators.DecodeJSONBody(w, r, &payload, validators.AllowUnknownFields()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithItemID(ctx, payload.ID.String())
		}
		state, err := store.Add(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// CartRemoveItem drops an item whatever its quantity.
func CartRemoveItem(store Store, logg *logger.Logger) http.HandlerFunc {
	return itemCommand(logg, store, func(ctx context.Context, id cartsvc.ItemID) cartsvc.State {
		return store.Remove(ctx, id)
	})
}

// CartDecreaseItem takes one unit of an item out of the cart.
func CartDecreaseItem(store Store, logg *logger.Logger) http.HandlerFunc {
	return itemCommand(logg, store, func(ctx context.Context, id cartsvc.ItemID) cartsvc.State {
		return store.Decrease(ctx, id)
	})
}

// CartClear empties the cart.
func CartClear(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		responses.WriteSuccess(w, store.Clear(r.Context()))
	}
}

func itemCommand(logg *logger.Logger, store Store, apply func(context.Context, cartsvc.ItemID) cartsvc.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		id, err := itemIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithItemID(ctx, id.String())
		}
		responses.WriteSuccess(w, apply(ctx, id))
	}
}

func itemIDFromPath(r *http.Request) (cartsvc.ItemID, error) {
	decoded := chi.URLParam(r, "itemId")
	// chi matches on RawPath when it is set, leaving params percent-encoded.
	if r.URL.RawPath != "" {
		var err error
		decoded, err = url.PathUnescape(decoded)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id").
				WithDetails(map[string]string{"itemId": "is invalid"})
		}
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "item id is required").
			WithDetails(map[string]string{"itemId": "is required"})
	}
	return cartsvc.ItemID(decoded), nil
}
