package metrics

import (
	"os"
	"sort"
	"sync"
	"time"

	"clypse/internal/logging"
)

// StatsProvider supplies the values sampled by a Collector.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current catalog statistics
type Stats struct {
	TotalVideos int
	QueueDepth  int
}

// Collector periodically samples catalog size, the sqlite files and the
// working directories.
type Collector struct {
	provider StatsProvider
	dbPath   string
	dirs     map[string]string
	interval time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector. provider and dbPath may be empty.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		dbPath:   dbPath,
		dirs:     make(map[string]string),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// WatchDir adds dir to the sampled directories under label. Call it before
// Start.
func (c *Collector) WatchDir(label, dir string) {
	c.dirs[label] = dir
}

// Start samples once and then every interval until Stop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.collect()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stop ends sampling. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
}

func (c *Collector) collect() {
	if c.dbPath != "" {
		for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
			var size int64
			if info, err := os.Stat(c.dbPath + suffix); err == nil {
				size = info.Size()
			}
			DBSizeBytes.WithLabelValues(label).Set(float64(size))
		}
	}

	labels := make([]string, 0, len(c.dirs))
	for label := range c.dirs {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		size, err := dirBytes(c.dirs[label])
		if err != nil {
			logging.Debug("Metrics: failed to size %s: %v", c.dirs[label], err)
			continue
		}
		DirectoryBytes.WithLabelValues(label).Set(float64(size))
	}

	if c.provider == nil {
		return
	}
	stats := c.provider.GetStats()
	CatalogVideosTotal.Set(float64(stats.TotalVideos))
	IngestQueueDepth.Set(float64(stats.QueueDepth))

	logging.Debug("Metrics collected: videos=%d, queued=%d", stats.TotalVideos, stats.QueueDepth)
}

// dirBytes sums the regular files directly inside dir.
func dirBytes(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
