package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/tiersync/pkg/types"
)

// StatusSource reports how many active records a database holds per status
type StatusSource interface {
	Name() string
	StatusCounts() map[types.Status]int
}

var allStatuses = []types.Status{
	types.StatusSynced,
	types.StatusSavePending,
	types.StatusRemovePending,
	types.StatusRemoved,
}

// Collector periodically samples record status gauges
type Collector struct {
	mu       sync.Mutex
	sources  []StatusSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, sources ...StatusSource) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		sources:  sources,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Add registers another database
func (c *Collector) Add(src StatusSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples every source once
func (c *Collector) Collect() {
	c.mu.Lock()
	sources := append([]StatusSource(nil), c.sources...)
	c.mu.Unlock()

	for _, src := range sources {
		counts := src.StatusCounts()
		for _, status := range allStatuses {
			RecordsTotal.WithLabelValues(src.Name(), string(status)).Set(float64(counts[status]))
		}
	}
}
