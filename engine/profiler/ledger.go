package profiler

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// banks is the number of timer and readback banks. Results recorded in one frame are read two
// resolves later, so the GPU never writes a bank the CPU is reading.
const banks = 2

// rayCountBufferSize holds a ray and a hit counter per section.
const rayCountBufferSize = uint64(SectionCount) * 2 * 4

// ledger is the implementation of the Ledger interface.
type ledger struct {
	backend renderer.Backend

	enabled      bool
	accumulating bool
	accumulated  uint32
	activeBank   int

	timers     []renderer.TimerQueryHandle
	timersUsed [SectionCount * banks]bool

	timerValues [SectionCount]float64
	rayCounts   [SectionCount]uint64
	hitCounts   [SectionCount]uint64

	rayCountBuffer   renderer.ResourceHandle
	rayCountReadback [banks]renderer.ResourceHandle
}

// Ledger keeps double-banked GPU timers and ray counters per Section. The bank flips in
// ResolvePreviousFrame, so values consumed after frame N+1 were recorded in frame N-1.
type Ledger interface {
	// Enabled reports whether sections are recorded.
	Enabled() bool

	// SetEnabled turns recording on or off. Disabled ledgers still flip banks.
	SetEnabled(enabled bool)

	// SetAccumulation switches between last-frame values and averages over accumulated frames.
	SetAccumulation(enabled bool)

	// ResetAccumulation drops every accumulated value.
	ResetAccumulation()

	// AccumulatedFrames returns how many frames the current values average over.
	AccumulatedFrames() uint32

	// BeginFrame clears the ray counters and opens the Frame section.
	//
	// Returns:
	//   - error: a recording error
	BeginFrame() error

	// EndFrame closes the Frame section and copies the ray counters into the active readback bank.
	//
	// Returns:
	//   - error: a recording error
	EndFrame() error

	// BeginSection starts the timer of s in the active bank.
	BeginSection(s Section)

	// EndSection stops the timer of s in the active bank.
	EndSection(s Section)

	// ResolvePreviousFrame flips the bank and reads back the timers and counters it holds.
	//
	// Returns:
	//   - error: a readback error
	ResolvePreviousFrame() error

	// Timer returns the time of s in milliseconds.
	Timer(s Section) float64

	// RayCount returns the rays traced by s.
	RayCount(s Section) float64

	// HitCount returns the rays of s that hit geometry.
	HitCount(s Section) float64

	// MaterialReadback returns the material index under the cursor, or -1 if none.
	MaterialReadback() int

	// RayCountBuffer returns the buffer kernels add their ray and hit counts to.
	RayCountBuffer() renderer.ResourceHandle

	// Bank returns the active bank.
	Bank() int

	// Report formats every non-empty section as text.
	//
	// Parameters:
	//   - rendererName: the backend or adapter name
	//   - width: the render width in pixels
	//   - height: the render height in pixels
	//
	// Returns:
	//   - string: the report
	Report(rendererName string, width, height uint32) string

	// Release frees the ledger's buffers.
	Release()
}

var _ Ledger = &ledger{}

// NewLedger allocates the timer queries and ray count buffers on backend.
//
// Parameters:
//   - backend: the GPU backend
//   - options: variadic list of LedgerBuilderOption functions
//
// Returns:
//   - Ledger: the ledger
//   - error: an allocation error
func NewLedger(backend renderer.Backend, options ...LedgerBuilderOption) (Ledger, error) {
	l := &ledger{
		backend: backend,
		enabled: true,
	}
	for _, opt := range options {
		opt(l)
	}

	timers, err := backend.CreateTimerQueries(int(SectionCount) * banks)
	if err != nil {
		return nil, fmt.Errorf("profiler timers: %w", err)
	}
	l.timers = timers

	l.rayCountBuffer, err = backend.CreateResource(renderer.ResourceDesc{
		Label: "RayCount",
		Kind:  renderer.ResourceKindBuffer,
		Size:  rayCountBufferSize,
		Usage: renderer.UsageStorage | renderer.UsageCopySrc | renderer.UsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("ray count buffer: %w", err)
	}
	for bank := range banks {
		l.rayCountReadback[bank], err = backend.CreateResource(renderer.ResourceDesc{
			Label: "RayCountReadback",
			Kind:  renderer.ResourceKindBuffer,
			Size:  rayCountBufferSize,
			Usage: renderer.UsageReadback,
		})
		if err != nil {
			l.Release()
			return nil, fmt.Errorf("ray count readback: %w", err)
		}
	}
	return l, nil
}

func (l *ledger) Enabled() bool {
	return l.enabled
}

func (l *ledger) SetEnabled(enabled bool) {
	l.enabled = enabled
}

func (l *ledger) SetAccumulation(enabled bool) {
	l.accumulating = enabled
}

func (l *ledger) ResetAccumulation() {
	l.accumulated = 0
	clear(l.timerValues[:])
	clear(l.rayCounts[:])
	clear(l.hitCounts[:])
}

func (l *ledger) AccumulatedFrames() uint32 {
	return l.accumulated
}

func (l *ledger) timerIndex(s Section) int {
	return int(s) + l.activeBank*int(SectionCount)
}

func (l *ledger) BeginFrame() error {
	if !l.enabled {
		return nil
	}
	if err := l.backend.ClearResource(l.rayCountBuffer); err != nil {
		return err
	}
	l.BeginSection(SectionFrame)
	return nil
}

func (l *ledger) EndFrame() error {
	l.EndSection(SectionFrame)
	if !l.enabled {
		return nil
	}
	return l.backend.CopyResource(l.rayCountBuffer, l.rayCountReadback[l.activeBank])
}

func (l *ledger) BeginSection(s Section) {
	if !l.enabled || !s.Valid() {
		return
	}
	i := l.timerIndex(s)
	l.backend.BeginTimer(l.timers[i])
	l.timersUsed[i] = true
}

func (l *ledger) EndSection(s Section) {
	if !l.enabled || !s.Valid() {
		return
	}
	l.backend.EndTimer(l.timers[l.timerIndex(s)])
}

func (l *ledger) ResolvePreviousFrame() error {
	l.activeBank ^= 1
	if !l.enabled {
		return nil
	}

	data, err := l.backend.ReadResource(l.rayCountReadback[l.activeBank])
	if err != nil {
		return fmt.Errorf("ray count readback: %w", err)
	}
	counter := func(i int) uint64 {
		if (i+1)*4 > len(data) {
			return 0
		}
		return uint64(binary.LittleEndian.Uint32(data[i*4:]))
	}

	for s := Section(0); s < SectionMaterialReadback; s++ {
		var ms float64
		var rays, hits uint64

		i := l.timerIndex(s)
		if l.timersUsed[i] {
			if d, ok := l.backend.ReadTimer(l.timers[i]); ok {
				ms = float64(d) / float64(time.Millisecond)
			}
			rays = counter(int(s) * 2)
			hits = counter(int(s)*2 + 1)
		}
		l.timersUsed[i] = false

		if l.accumulating {
			l.timerValues[s] += ms
			l.rayCounts[s] += rays
			l.hitCounts[s] += hits
		} else {
			l.timerValues[s] = ms
			l.rayCounts[s] = rays
			l.hitCounts[s] = hits
		}
	}
	l.rayCounts[SectionMaterialReadback] = counter(int(SectionMaterialReadback) * 2)

	if l.accumulating {
		l.accumulated++
	} else {
		l.accumulated = 1
	}
	return nil
}

func (l *ledger) Timer(s Section) float64 {
	if l.accumulated == 0 || !s.Valid() {
		return 0
	}
	return l.timerValues[s] / float64(l.accumulated)
}

func (l *ledger) RayCount(s Section) float64 {
	if l.accumulated == 0 || !s.Valid() {
		return 0
	}
	return float64(l.rayCounts[s]) / float64(l.accumulated)
}

func (l *ledger) HitCount(s Section) float64 {
	if l.accumulated == 0 || !s.Valid() {
		return 0
	}
	return float64(l.hitCounts[s]) / float64(l.accumulated)
}

func (l *ledger) MaterialReadback() int {
	return int(l.rayCounts[SectionMaterialReadback]) - 1
}

func (l *ledger) RayCountBuffer() renderer.ResourceHandle {
	return l.rayCountBuffer
}

func (l *ledger) Bank() int {
	return l.activeBank
}

func (l *ledger) Release() {
	if l.rayCountBuffer != 0 {
		l.backend.ReleaseResource(l.rayCountBuffer)
		l.rayCountBuffer = 0
	}
	for bank := range banks {
		if l.rayCountReadback[bank] != 0 {
			l.backend.ReleaseResource(l.rayCountReadback[bank])
			l.rayCountReadback[bank] = 0
		}
	}
}
