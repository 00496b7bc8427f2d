package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/kernelbox/kernel"
)

var _ kernel.Metrics = (*Collector)(nil)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func TestKernelCreated(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.KernelCreated("python", nil)
	c.KernelCreated("python", nil)
	c.KernelCreated("redis", errors.New("pull failed"))

	family := gather(t, reg)["kernelbox_kernels_created_total"]
	require.NotNil(t, family)

	counts := make(map[string]float64)
	for _, m := range family.GetMetric() {
		l := labels(m)
		counts[l["image"]+"/"+l["result"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"python/success": 2, "redis/error": 1}, counts)
}

func TestKernelStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.KernelStatus("ready", 2*time.Second)
	c.KernelStatus("ready", 3*time.Second)

	family := gather(t, reg)["kernelbox_kernel_readiness_seconds"]
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)

	h := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 5.0, h.GetSampleSum(), 0.001)
}

func TestCellRunDefaultsType(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.CellRun("", nil)
	c.CellRun("file", errors.New("boom"))

	family := gather(t, reg)["kernelbox_cell_runs_total"]
	require.NotNil(t, family)

	seen := make(map[string]bool)
	for _, m := range family.GetMetric() {
		l := labels(m)
		seen[l["cell_type"]+"/"+l["result"]] = true
	}
	assert.Equal(t, map[string]bool{"interactive/success": true, "file/error": true}, seen)
}

func TestRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordRequest("GET", "/healthz", 200, time.Millisecond)
	c.RecordRequest("GET", "", 404, time.Millisecond)

	family := gather(t, reg)["kernelbox_http_requests_total"]
	require.NotNil(t, family)

	routes := make(map[string]string)
	for _, m := range family.GetMetric() {
		l := labels(m)
		routes[l["route"]] = l["status"]
	}
	assert.Equal(t, map[string]string{"/healthz": "200", "unmatched": "404"}, routes)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
