package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
)

// FrameStats tracks the CPU-side frame rate and memory statistics of the frame loop and logs them
// at a fixed interval. When a Ledger is attached, the last resolved GPU frame time is logged too.
type FrameStats struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	ledger         Ledger
	now            func() time.Time
}

// NewFrameStats creates a FrameStats that logs once per interval.
// A non-positive interval defaults to one second.
//
// Parameters:
//   - interval: the logging interval
//   - ledger: optional GPU ledger whose frame time is logged alongside, may be nil
//
// Returns:
//   - *FrameStats: the newly created tracker
func NewFrameStats(interval time.Duration, ledger Ledger) *FrameStats {
	if interval <= 0 {
		interval = time.Second
	}
	return &FrameStats{
		lastTime:       time.Now(),
		updateInterval: interval,
		ledger:         ledger,
		now:            time.Now,
	}
}

// Tick should be called once per frame.
// Logs FPS, heap usage, allocation rate and GC pauses when the interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *FrameStats) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a ring of the last 256 pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	gpuMs := 0.0
	if p.ledger != nil {
		gpuMs = p.ledger.Timer(SectionFrame)
	}

	logger.Info("FPS: %.2f | GPU: %.3f ms | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, gpuMs, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
