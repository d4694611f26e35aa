package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	totalDurationMs uint64

	mu      sync.Mutex
	exports map[string]*exportStats
}

type exportStats struct {
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	Lines      uint64 `json:"lines"`
	DurationMs uint64 `json:"durationMs"`
}

func New() *Collector {
	return &Collector{exports: map[string]*exportStats{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordExportRun counts one terminal export run per target system.
func (c *Collector) RecordExportRun(system, status string, lines int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.exports[system]
	if !ok {
		stats = &exportStats{}
		c.exports[system] = stats
	}
	if status == "completed" {
		stats.Completed++
	} else {
		stats.Failed++
	}
	stats.Lines += uint64(max(lines, 0))
	stats.DurationMs += uint64(duration.Milliseconds())
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	exports := make(map[string]exportStats, len(c.exports))
	for system, stats := range c.exports {
		exports[system] = *stats
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":   total,
		"errorsTotal":     errs,
		"avgDurationMs":   avg,
		"totalDurationMs": totalMs,
		"exportRuns":      exports,
	}
}
