package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks the settlement and cancellation hot paths.
type SettlementMetrics struct {
	settlements   *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	pointsIssued  prometheus.Counter
	pointsRevoked prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Settled transactions by outcome.",
	}, []string{"outcome"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cancellations_total",
		Help: "Cancelled transactions by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Duration of settlement/cancellation operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	pointsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "points_issued_total",
		Help: "Points granted through the ledger.",
	})
	pointsRevoked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "points_revoked_total",
		Help: "Points revoked through cancellation.",
	})
	reg.MustRegister(settlements, cancellations, duration, pointsIssued, pointsRevoked)
	return &SettlementMetrics{
		settlements:   settlements,
		cancellations: cancellations,
		duration:      duration,
		pointsIssued:  pointsIssued,
		pointsRevoked: pointsRevoked,
	}
}

// IncSettlement increments the settlement counter for the outcome label.
func (m *SettlementMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCancellation increments the cancellation counter for the outcome label.
func (m *SettlementMetrics) IncCancellation(outcome string) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveDuration records the duration for the named operation.
func (m *SettlementMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// AddPointsIssued records points granted through the ledger.
func (m *SettlementMetrics) AddPointsIssued(points int) {
	if m == nil || m.pointsIssued == nil || points <= 0 {
		return
	}
	m.pointsIssued.Add(float64(points))
}

// AddPointsRevoked records points clawed back by cancellation.
func (m *SettlementMetrics) AddPointsRevoked(points int) {
	if m == nil || m.pointsRevoked == nil || points <= 0 {
		return
	}
	m.pointsRevoked.Add(float64(points))
}
