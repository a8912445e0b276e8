package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	ordersConfirmed prometheus.Counter
	ordersSkipped   *prometheus.CounterVec
	ordersAbandoned prometheus.Counter
	pointsCredited  prometheus.Counter
	referralBonuses *prometheus.CounterVec
	chainRequests   *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	defaultReg  *Metrics
)

// Default returns the process wide metrics registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultReg = New(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

// New builds a metric set registered on reg. Tests pass their own registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_passes_total",
			Help: "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_pass_duration_seconds",
			Help:    "Wall time of a full reconciliation pass.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ordersConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Orders moved from pending to confirmed.",
		}),
		ordersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_skipped_total",
			Help: "Orders left pending during a pass by reason.",
		}, []string{"reason"}),
		ordersAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_abandoned_total",
			Help: "Orders moved to the abandoned state by the cutoff.",
		}),
		pointsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "points_credited_total",
			Help: "Loyalty points credited from confirmed payments.",
		}),
		referralBonuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_bonuses_total",
			Help: "Referral bonuses credited by invitee tier.",
		}, []string{"tier"}),
		chainRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toncenter_requests_total",
			Help: "TonCenter API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.passes,
			m.passDuration,
			m.ordersConfirmed,
			m.ordersSkipped,
			m.ordersAbandoned,
			m.pointsCredited,
			m.referralBonuses,
			m.chainRequests,
		)
	}
	return m
}

func (m *Metrics) ObservePass(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveConfirmed(points float64) {
	if m == nil {
		return
	}
	m.ordersConfirmed.Inc()
	if points > 0 {
		m.pointsCredited.Add(points)
	}
}

func (m *Metrics) ObserveSkipped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.ordersSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAbandoned() {
	if m == nil {
		return
	}
	m.ordersAbandoned.Inc()
}

func (m *Metrics) ObserveReferralBonus(premium bool) {
	if m == nil {
		return
	}
	tier := "regular"
	if premium {
		tier = "premium"
	}
	m.referralBonuses.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveChainRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.chainRequests.WithLabelValues(endpoint, outcome).Inc()
}
