package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"clypse/internal/logging"
	"clypse/internal/metrics"
)

// Config holds the backpressure thresholds.
type Config struct {
	// LimitBytes is the soft limit. Zero uses GOMEMLIMIT when it is set.
	LimitBytes int64

	// PauseRatio is the fraction of the limit at which waiters block.
	PauseRatio float64

	// ResumeRatio is the fraction of the limit below which waiters resume.
	ResumeRatio float64

	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		PauseRatio:    0.85,
		ResumeRatio:   0.7,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage and blocks ingestion while it is critical.
type Monitor struct {
	cfg   Config
	limit int64
	read  func() uint64

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{}

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a Monitor. Without a limit it never pauses.
func NewMonitor(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.PauseRatio <= 0 || cfg.PauseRatio > 1 {
		cfg.PauseRatio = def.PauseRatio
	}
	if cfg.ResumeRatio <= 0 || cfg.ResumeRatio >= cfg.PauseRatio {
		cfg.ResumeRatio = cfg.PauseRatio * 0.8
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}

	limit := cfg.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no limit configured, backpressure disabled")
	}

	return &Monitor{
		cfg:      cfg,
		limit:    limit,
		read:     heapAlloc,
		resume:   make(chan struct{}),
		stopChan: make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins sampling. It is a no-op without a limit.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	m.wg.Add(1)
	go m.loop()
}

// Stop ends sampling and releases every waiter.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.read()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case !m.paused && usage >= m.cfg.PauseRatio:
		logging.Warn("Memory critical (%.1f%% of limit), pausing ingestion", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.cfg.ResumeRatio:
		logging.Info("Memory recovered (%.1f%% of limit), resuming ingestion", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// WaitIfPaused blocks while usage is critical. It returns false when ctx is
// done or the monitor is stopped before usage recovers.
func (m *Monitor) WaitIfPaused(ctx context.Context) bool {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	resume := m.resume
	m.mu.RUnlock()

	select {
	case <-resume:
		return true
	case <-ctx.Done():
		return false
	case <-m.stopChan:
		return false
	}
}

// Paused reports whether waiters are currently blocked.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sample as a fraction of the limit, or 0 without one.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}

// Limit returns the limit in bytes, or 0 when backpressure is disabled.
func (m *Monitor) Limit() int64 {
	return m.limit
}
