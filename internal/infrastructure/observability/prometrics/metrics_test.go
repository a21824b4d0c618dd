package prometrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/observability"
)

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	a := New("", "")
	b := New("", "")

	// Same collector name on two instances must not panic.
	ca := a.Counter("requests_total", "requests", "outcome")
	cb := b.Counter("requests_total", "requests", "outcome")
	ca.Add(1, observability.L("outcome", "success"))
	cb.Add(2, observability.L("outcome", "success"))

	assert.Equal(t, 1.0, gatheredValue(t, a, "requests_total"))
	assert.Equal(t, 2.0, gatheredValue(t, b, "requests_total"))
}

func TestCounterIsRegisteredOnce(t *testing.T) {
	r := New("", "")

	c1 := r.Counter("saga_steps_total", "steps", "step")
	c2 := r.Counter("saga_steps_total", "steps", "step")
	c1.Add(1, observability.L("step", "reserve"))
	c2.Add(1, observability.L("step", "reserve"))

	assert.Equal(t, 2.0, gatheredValue(t, r, "saga_steps_total"))
}

func TestHistogramObserves(t *testing.T) {
	r := New("", "")

	h := r.Histogram("request_duration_seconds", "latency", []float64{0.1, 1}, "route")
	h.Observe(0.05, observability.L("route", "/orders"))
	h.Observe(0.5, observability.L("route", "/orders"))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "request_duration_seconds" {
			assert.Equal(t, uint64(2), mf.GetMetric()[0].GetHistogram().GetSampleCount())
			return
		}
	}
	t.Fatal("histogram not gathered")
}

func gatheredValue(t *testing.T, r Registry, name string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}
