package metrics

import "time"

// EdgeStat is one edge's point-in-time buffer occupancy.
type EdgeStat struct {
	Edge        string
	QueueDepth  int
	BufferBytes int64
}

// StatsSource is polled by Collector for current edge occupancy. A
// running pkg/topology.Topology (or anything exposing an equivalent
// snapshot) satisfies this.
type StatsSource interface {
	EdgeStats() []EdgeStat
}

// Collector periodically polls a StatsSource and republishes it as the
// QueueDepth/BufferBytesUsed gauges, mirroring the teacher's
// ticker-plus-stopCh collection loop generalized from cluster resource
// counts to pipeline edge occupancy.
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector polling source every
// interval (defaulting to 15s, matching the teacher's scrape cadence).
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{source: source, interval: interval, stopCh: make(chan struct{})}
}

// Start begins collecting metrics in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, stat := range c.source.EdgeStats() {
		QueueDepth.WithLabelValues(stat.Edge).Set(float64(stat.QueueDepth))
		BufferBytesUsed.WithLabelValues(stat.Edge).Set(float64(stat.BufferBytes))
	}
}
