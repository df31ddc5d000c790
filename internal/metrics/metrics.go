// Package metrics exposes chronicle counters to Prometheus.
//
// The collector reads Chronicle.Stats at scrape time, so nothing on the
// excerpt path touches a metric.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"chronicle/internal/chronicle"
)

const namespace = "chronicle"

// StatsSource is implemented by *chronicle.Chronicle.
type StatsSource interface {
	Stats() chronicle.Stats
}

var (
	entriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "entries"),
		"Number of committed records.",
		[]string{"path"}, nil,
	)
	frontierDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "frontier_bytes"),
		"Data file offset of the next reservation.",
		[]string{"path"}, nil,
	)
	mappedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "mapped_bytes"),
		"Bytes mapped per file.",
		[]string{"path", "file"}, nil,
	)
	segmentsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "segments"),
		"Mapped segments per file.",
		[]string{"path", "file"}, nil,
	)
	cpuDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "process", "cpu_percent"),
		"Process CPU usage since the previous scrape. Multi-core processes can exceed 100.",
		nil, nil,
	)
	memoryDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "process", "memory_inuse_bytes"),
		"Heap and stack memory in use by the Go runtime.",
		nil, nil,
	)
)

// Collector is a prometheus.Collector over one or more chronicles.
type Collector struct {
	sources []StatsSource
	cpu     *cpuTracker
}

// NewCollector returns a collector reporting every source, labelled by path.
func NewCollector(sources ...StatsSource) *Collector {
	return &Collector{sources: sources, cpu: newCPUTracker()}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- entriesDesc
	ch <- frontierDesc
	ch <- mappedDesc
	ch <- segmentsDesc
	ch <- cpuDesc
	ch <- memoryDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		s := src.Stats()
		ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.GaugeValue, float64(s.Entries), s.Path)
		ch <- prometheus.MustNewConstMetric(frontierDesc, prometheus.GaugeValue, float64(s.Frontier), s.Path)
		ch <- prometheus.MustNewConstMetric(mappedDesc, prometheus.GaugeValue, float64(s.DataBytes), s.Path, "data")
		ch <- prometheus.MustNewConstMetric(mappedDesc, prometheus.GaugeValue, float64(s.IndexBytes), s.Path, "index")
		ch <- prometheus.MustNewConstMetric(segmentsDesc, prometheus.GaugeValue, float64(s.DataSegments), s.Path, "data")
		ch <- prometheus.MustNewConstMetric(segmentsDesc, prometheus.GaugeValue, float64(s.IndexSegments), s.Path, "index")
	}
	ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.GaugeValue, c.cpu.percent())
	ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(memoryInuse()))
}

// Register registers a collector for sources with reg.
func Register(reg prometheus.Registerer, sources ...StatsSource) (*Collector, error) {
	c := NewCollector(sources...)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}
