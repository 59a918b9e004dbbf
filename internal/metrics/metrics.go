// Package metrics exposes the bridge's drop/overflow counters as
// Prometheus metrics and as a human-readable diagnostic snapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Registry owns the bridge's Prometheus counters. Values are pulled from
// the bridge on each Collect rather than incremented directly here, since
// the realtime callback that produces them cannot call into this package
// without risking an allocation or a lock.
type Registry struct {
	overflowDropped *prometheus.Desc
	freewheelSkips  *prometheus.Desc

	source Source
}

// Source supplies the current values the registry exports. *bridge.Bridge
// satisfies this.
type Source interface {
	OverflowDropped() int64
	FreewheelSkips() int64
}

// NewRegistry returns a Registry that reads its values from source.
func NewRegistry(source Source) *Registry {
	return &Registry{
		overflowDropped: prometheus.NewDesc(
			"a2jmidid_overflow_dropped_total",
			"Events dropped to queue overflow since the bridge last started.",
			nil, nil,
		),
		freewheelSkips: prometheus.NewDesc(
			"a2jmidid_freewheel_skips_total",
			"Realtime cycles skipped while the engine was freewheeling.",
			nil, nil,
		),
		source: source,
	}
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.overflowDropped
	ch <- r.freewheelSkips
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(r.overflowDropped, prometheus.CounterValue, float64(r.source.OverflowDropped()))
	ch <- prometheus.MustNewConstMetric(r.freewheelSkips, prometheus.CounterValue, float64(r.source.FreewheelSkips()))
}

// Snapshot is a point-in-time diagnostic view that Render turns into YAML.
// It is never persisted (the bridge carries no persistent runtime-state
// store), and the remote-control Controller does not build one: its own
// Snapshot method returns the bridge's Port records.
type Snapshot struct {
	OverflowDropped int64        `yaml:"overflow_dropped"`
	FreewheelSkips  int64        `yaml:"freewheel_skips"`
	Ports           []PortStatus `yaml:"ports"`
}

// PortStatus is one mirrored port's diagnostic state.
type PortStatus struct {
	DisplayName string `yaml:"display_name"`
	Direction   string `yaml:"direction"`
	Dead        bool   `yaml:"dead"`
}

// Render marshals snap as YAML.
func Render(snap Snapshot) (string, error) {
	out, err := yaml.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
