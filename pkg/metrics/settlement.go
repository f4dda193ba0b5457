package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// SettlementMetrics counts settlement outcomes. A nil receiver is a no-op so
// services can be built without a registry.
type SettlementMetrics struct {
	ordersCompleted  prometheus.Counter
	ordersCancelled  prometheus.Counter
	paymentsRecorded *prometheus.CounterVec
	refundsProcessed prometheus.Counter
	drawerDiscrep    prometheus.Histogram
	drawerOpenAge    prometheus.Gauge
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Orders moved to completed.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders moved to cancelled.",
	})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Tenders recorded against orders.",
	}, []string{"method"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refunds_processed_total",
		Help: "Refunds recorded against settled orders.",
	})
	discrepancy := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cash_drawer_discrepancy_cents",
		Help:    "Actual minus expected cash at drawer close, in cents.",
		Buckets: []float64{-5000, -1000, -500, -100, -25, -5, 0, 5, 25, 100, 500, 1000, 5000},
	})
	openAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cash_drawer_open_age_seconds",
		Help: "Age of the open drawer session when last checked, 0 when none is open.",
	})
	reg.MustRegister(completed, cancelled, payments, refunds, discrepancy, openAge)
	return &SettlementMetrics{
		ordersCompleted:  completed,
		ordersCancelled:  cancelled,
		paymentsRecorded: payments,
		refundsProcessed: refunds,
		drawerDiscrep:    discrepancy,
		drawerOpenAge:    openAge,
	}
}

func (m *SettlementMetrics) IncOrderCompleted() {
	if m == nil || m.ordersCompleted == nil {
		return
	}
	m.ordersCompleted.Inc()
}

func (m *SettlementMetrics) IncOrderCancelled() {
	if m == nil || m.ordersCancelled == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *SettlementMetrics) IncPayment(method enums.PaymentMethod) {
	if m == nil || m.paymentsRecorded == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(normalizeLabel(string(method))).Inc()
}

func (m *SettlementMetrics) IncRefund() {
	if m == nil || m.refundsProcessed == nil {
		return
	}
	m.refundsProcessed.Inc()
}

// ObserveDrawerDiscrepancy records a signed discrepancy in cents.
func (m *SettlementMetrics) ObserveDrawerDiscrepancy(cents int64) {
	if m == nil || m.drawerDiscrep == nil {
		return
	}
	m.drawerDiscrep.Observe(float64(cents))
}

func (m *SettlementMetrics) SetDrawerOpenAge(age time.Duration) {
	if m == nil || m.drawerOpenAge == nil {
		return
	}
	m.drawerOpenAge.Set(age.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
