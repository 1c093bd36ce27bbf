package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Attempt("PHONE_ONLY", "ok")
	m.Attempt("PHONE_ONLY", "ok")
	m.Result("PHONE_ONLY", "")
	m.Result("EMAIL_ONLY", "NOT_FOUND")
	m.KeyTransition("PHONE_ONLY", "invalid")
	m.ProviderCall("200", 150*time.Millisecond)
	m.CacheLookup(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("PHONE_ONLY", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("PHONE_ONLY", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("EMAIL_ONLY", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("PHONE_ONLY", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.callDuration))
}

func TestMetrics_SetPoolKeysReplaces(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetPoolKeys(map[string]map[string]float64{
		"PHONE_ONLY": {"eligible": 3, "exhausted": 1},
	})
	m.SetPoolKeys(map[string]map[string]float64{
		"EMAIL_ONLY": {"eligible": 2},
	})

	assert.Equal(t, 1, testutil.CollectAndCount(m.poolKeys))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.poolKeys.WithLabelValues("EMAIL_ONLY", "eligible")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Attempt("PHONE_ONLY", "ok")
		m.Result("PHONE_ONLY", "")
		m.KeyTransition("PHONE_ONLY", "invalid")
		m.ProviderCall("200", time.Second)
		m.SetPoolKeys(nil)
		m.CacheLookup(false)
	})
}
