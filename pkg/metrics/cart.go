package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart command and snapshot activity.
type CartMetrics struct {
	commands        *prometheus.CounterVec
	totalQuantity   prometheus.Gauge
	lineItems       prometheus.Gauge
	persistDuration prometheus.Histogram
	persistFailures prometheus.Counter
	hydrations      *prometheus.CounterVec
	sanitizedPrices prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil
// registerer yields a recorder whose methods are no-ops.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	m := &CartMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_commands_total",
			Help: "Cart commands applied, by command.",
		}, []string{"command"}),
		totalQuantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_total_quantity",
			Help: "Sum of line item quantities in the cart.",
		}),
		lineItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_line_items",
			Help: "Distinct line items in the cart.",
		}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cart_snapshot_persist_duration_seconds",
			Help:    "Time spent writing cart snapshots.",
			Buckets: prometheus.DefBuckets,
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_snapshot_persist_failures_total",
			Help: "Snapshot writes that failed and were skipped.",
		}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_snapshot_hydrations_total",
			Help: "Startup hydrations, by outcome.",
		}, []string{"outcome"}),
		sanitizedPrices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_sanitized_prices_total",
			Help: "Added items whose price was coerced to zero.",
		}),
	}
	reg.MustRegister(m.commands, m.totalQuantity, m.lineItems, m.persistDuration, m.persistFailures, m.hydrations, m.sanitizedPrices)
	return m
}

// ObserveCommand counts an applied command and updates the cart size gauges.
func (m *CartMetrics) ObserveCommand(command string, totalQuantity, lineItems int) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(normalizeLabel(command)).Inc()
	m.totalQuantity.Set(float64(totalQuantity))
	m.lineItems.Set(float64(lineItems))
}

func (m *CartMetrics) ObservePersist(duration time.Duration, err error) {
	if m == nil || m.persistDuration == nil {
		return
	}
	m.persistDuration.Observe(duration.Seconds())
	if err != nil {
		m.persistFailures.Inc()
	}
}

func (m *CartMetrics) ObserveHydrate(outcome string) {
	if m == nil || m.hydrations == nil {
		return
	}
	m.hydrations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CartMetrics) IncSanitizedPrice() {
	if m == nil || m.sanitizedPrices == nil {
		return
	}
	m.sanitizedPrices.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
