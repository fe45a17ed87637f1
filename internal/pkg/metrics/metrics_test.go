package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
		m.QuotaConsumed("free", "ok")
		m.QuotaRenewed("free")
		m.ObserveAI("text", time.Second, true)
		m.PaymentEvent("mpesa", "COMPLETE")
		m.JobProcessed("payment_recheck", "ok")
		m.EmailSent("receipt", "sent")
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.QuotaConsumed("free", "ok")
	m.QuotaConsumed("free", "ok")
	m.QuotaConsumed("free", "exhausted")
	m.PaymentEvent("card", "COMPLETE")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.quotaConsumeTotal.WithLabelValues("free", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.quotaConsumeTotal.WithLabelValues("free", "exhausted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.paymentsTotal.WithLabelValues("card", "COMPLETE")))
}
