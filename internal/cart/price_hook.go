package cart

import (
	"context"

	pkgerrors "github.com/unibazzar/unibazzar-cart/pkg/errors"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

// PriceHook is consulted whenever an added product's price cannot be used as
// is. Returning nil accepts the product at a price of zero; returning an error
// rejects the add and leaves the cart untouched.
type PriceHook func(ctx context.Context, in ProductInput, cause error) error

// LogPriceHook accepts the product and records a warning.
func LogPriceHook(logg *logger.Logger) PriceHook {
	return func(ctx context.Context, in ProductInput, cause error) error {
		if logg == nil {
			return nil
		}
		ctx = logg.WithFields(logg.WithItemID(ctx, in.ID.String()), map[string]any{
			"raw_price": in.Price.Raw(),
			"reason":    cause.Error(),
		})
		logg.Warn(ctx, "cart.price_sanitized")
		return nil
	}
}

// StrictPriceHook rejects products whose price is unusable.
func StrictPriceHook() PriceHook {
	return func(_ context.Context, in ProductInput, cause error) error {
		return pkgerrors.Wrap(pkgerrors.CodeRejected, cause, "product price is not a valid non-negative number").
			WithDetails(map[string]any{"id": in.ID.String(), "price": in.Price.Raw()})
	}
}

// ChainPriceHooks runs hooks in order and stops at the first rejection.
func ChainPriceHooks(hooks ...PriceHook) PriceHook {
	return func(ctx context.Context, in ProductInput, cause error) error {
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			if err := hook(ctx, in, cause); err != nil {
				return err
			}
		}
		return nil
	}
}
