package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BorrowsTotal  *prometheus.CounterVec
	ReturnsTotal  *prometheus.CounterVec
	PaymentsTotal *prometheus.CounterVec
	OverdueSwept  prometheus.Counter
	OverdueOpen   prometheus.Gauge
}

// New registers the service collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BorrowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "borrow_requests_total",
			Help: "Borrow attempts by result.",
		}, []string{"result"}),
		ReturnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "return_requests_total",
			Help: "Return attempts by result.",
		}, []string{"result"}),
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by type and status transition.",
		}, []string{"type", "status"}),
		OverdueSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "overdue_sweeps_total",
			Help: "Completed overdue scanner sweeps.",
		}),
		OverdueOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "overdue_open_borrowings",
			Help: "Open borrowings past due at the last sweep.",
		}),
	}
}
