package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePass("ok", 2*time.Second)
	m.ObserveConfirmed(3)
	m.ObserveConfirmed(0)
	m.ObserveSkipped("not_found")
	m.ObserveSkipped("")
	m.ObserveAbandoned()
	m.ObserveReferralBonus(true)
	m.ObserveReferralBonus(false)
	m.ObserveReferralBonus(false)
	m.ObserveChainRequest("/api/v3/transactions", "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersConfirmed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pointsCredited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersSkipped.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersSkipped.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersAbandoned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.referralBonuses.WithLabelValues("premium")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.referralBonuses.WithLabelValues("regular")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chainRequests.WithLabelValues("/api/v3/transactions", "ok")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePass("error", time.Second)
		m.ObserveConfirmed(1)
		m.ObserveSkipped("x")
		m.ObserveAbandoned()
		m.ObserveReferralBonus(true)
		m.ObserveChainRequest("e", "ok")
	})
}
