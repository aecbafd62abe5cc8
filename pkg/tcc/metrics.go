package tcc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// monitorCollector exports a ClientMonitor as Prometheus metrics. Values are read at scrape time.
type monitorCollector struct {
	monitor *ClientMonitor

	events    *prometheus.Desc
	active    *prometheus.Desc
	idle      *prometheus.Desc
	exhausted *prometheus.Desc
}

// NewMonitorCollector creates a prometheus.Collector over monitor.
func NewMonitorCollector(monitor *ClientMonitor, namespace string) prometheus.Collector {
	return &monitorCollector{
		monitor: monitor,
		events: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "events_total"),
			"Client operation outcomes by counter.",
			[]string{"counter"}, nil),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "active_clients"),
			"Borrowed clients per endpoint.",
			[]string{"endpoint"}, nil),
		idle: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "idle_clients"),
			"Idle clients per endpoint.",
			[]string{"endpoint"}, nil),
		exhausted: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "exhausted_pools"),
			"Endpoints whose pool has no capacity left.",
			nil, nil),
	}
}

func (mc *monitorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.events
	ch <- mc.active
	ch <- mc.idle
	ch <- mc.exhausted
}

func (mc *monitorCollector) Collect(ch chan<- prometheus.Metric) {
	for counter := ClientCounter(0); counter < counterCount; counter++ {
		ch <- prometheus.MustNewConstMetric(mc.events, prometheus.CounterValue,
			float64(mc.monitor.Counter(counter)), counter.String())
	}

	for _, pool := range mc.monitor.watchedPools() {
		for _, endpoint := range pool.Keys() {
			ch <- prometheus.MustNewConstMetric(mc.active, prometheus.GaugeValue,
				float64(pool.ActiveCountByKey(endpoint)), endpoint.String())
			ch <- prometheus.MustNewConstMetric(mc.idle, prometheus.GaugeValue,
				float64(pool.IdleCountByKey(endpoint)), endpoint.String())
		}
	}

	ch <- prometheus.MustNewConstMetric(mc.exhausted, prometheus.GaugeValue,
		float64(mc.monitor.NumExhaustedPools()))
}
