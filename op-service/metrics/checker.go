package metrics

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	gocl "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// MetricFamiliesChecker is a test util to search gathered metrics.
type MetricFamiliesChecker struct {
	families []*gocl.MetricFamily
	t        require.TestingT
}

// NewMetricChecker gathers the registry, failing the test if that is not possible.
func NewMetricChecker(t require.TestingT, reg *prometheus.Registry) *MetricFamiliesChecker {
	families, err := reg.Gather()
	require.NoError(t, err, "must gather metrics")
	return &MetricFamiliesChecker{families: families, t: t}
}

// Has reports whether a metric family with the given name was gathered.
func (m *MetricFamiliesChecker) Has(name string) bool {
	for _, f := range m.families {
		if f.GetName() == name {
			return true
		}
	}
	return false
}

// FindByName finds a metric family by name, failing the test if it is absent or ambiguous.
func (m *MetricFamiliesChecker) FindByName(name string) *MetricFamilyChecker {
	var found *gocl.MetricFamily
	for _, f := range m.families {
		if f.GetName() != name {
			continue
		}
		require.Nil(m.t, found, "metric family %q gathered twice", name)
		found = f
	}
	require.NotNil(m.t, found, "cannot find metric family %q", name)
	return &MetricFamilyChecker{fam: found, t: m.t}
}

// Dump returns indented json of all gathered metrics, for debugging.
func (m *MetricFamiliesChecker) Dump() string {
	out, _ := json.MarshalIndent(m.families, "  ", "  ")
	return string(out)
}

type MetricFamilyChecker struct {
	fam *gocl.MetricFamily
	t   require.TestingT
}

// FindByLabels finds the single metric carrying all the given labels, failing the test otherwise.
func (f *MetricFamilyChecker) FindByLabels(labels map[string]string) *gocl.Metric {
	var found *gocl.Metric
	for _, m := range f.fam.Metric {
		if !hasAllLabels(m, labels) {
			continue
		}
		require.Nil(f.t, found, "labels %v match more than one metric", labels)
		found = m
	}
	require.NotNil(f.t, found, "cannot find metric with labels %v", labels)
	return found
}

func hasAllLabels(m *gocl.Metric, labels map[string]string) bool {
outer:
	for k, v := range labels {
		for _, lab := range m.Label {
			if lab.GetName() == k && lab.GetValue() == v {
				continue outer
			}
		}
		return false
	}
	return true
}
