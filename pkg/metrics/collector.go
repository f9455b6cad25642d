package metrics

import "time"

// CollectionStats is one collection's point-in-time counters, decoupled
// from storage/collection's concrete type so this package (which
// storage/collection itself depends on, for CollectionOpDuration and
// friends) never imports it back.
type CollectionStats struct {
	Database        string
	Name            string
	Documents       int64
	Blockers        int
	IndexesReady    int
	IndexesBuilding int
}

// StatsProvider is the subset of api.Registry the collector scrapes.
type StatsProvider interface {
	CollectionStats() []CollectionStats
}

// Collector periodically scrapes every open collection's document and
// index counts into the package-level gauges via a background ticker.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector scraping provider every 15 seconds.
func NewCollector(provider StatsProvider) *Collector {
	return &Collector{
		provider: provider,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background scrape loop.
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

// Stop ends the background scrape loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats := c.provider.CollectionStats()
	CollectionsTotal.Set(float64(len(stats)))

	for _, s := range stats {
		DocumentsTotal.WithLabelValues(s.Database, s.Name).Set(float64(s.Documents))
		ActiveBlockersTotal.WithLabelValues(s.Database, s.Name).Set(float64(s.Blockers))
		IndexesTotal.WithLabelValues(s.Database, s.Name, "ready").Set(float64(s.IndexesReady))
		IndexesTotal.WithLabelValues(s.Database, s.Name, "building").Set(float64(s.IndexesBuilding))
	}
}
