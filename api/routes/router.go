package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unibazzar/unibazzar-cart/api/controllers"
	cartcontrollers "github.com/unibazzar/unibazzar-cart/api/controllers/cart"
	"github.com/unibazzar/unibazzar-cart/api/middleware"
	"github.com/unibazzar/unibazzar-cart/pkg/config"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

// Storage describes the snapshot backend for the readiness probe.
type Storage struct {
	Name     string
	Degraded bool
	Checker  controllers.ReadinessChecker
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store cartcontrollers.Store,
	storage Storage,
	idempotency middleware.IdempotencyStore,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	if len(cfg.App.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, storage.Name, storage.Degraded, storage.Checker))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// add and decrease are not idempotent on their own; remove and clear are
	idem := middleware.Idempotency(idempotency, cfg.Cart.IdempotencyTTL, logg)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", cartcontrollers.CartFetch(store, logg))
		r.Delete("/", cartcontrollers.CartClear(store, logg))
		r.With(idem).Post("/items", cartcontrollers.CartAddItem(store, logg))
		r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(store, logg))
		r.With(idem).Post("/items/{itemId}/decrease", cartcontrollers.CartDecreaseItem(store, logg))
	})

	return r
}
