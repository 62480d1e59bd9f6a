package profiler

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// writeCounters emulates kernels adding to the ray count buffer.
func writeCounters(t *testing.T, b *renderer.RecordingBackend, buf renderer.ResourceHandle, values map[int]uint32) {
	t.Helper()
	for idx, v := range values {
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, v)
		require.NoError(t, b.WriteResource(buf, uint64(idx)*4, data))
	}
}

func newTestLedger(t *testing.T, options ...LedgerBuilderOption) (*renderer.RecordingBackend, Ledger) {
	t.Helper()
	backend := renderer.NewRecordingBackend(renderer.WithTimerSource(func(renderer.TimerQueryHandle) time.Duration {
		return 2 * time.Millisecond
	}))
	l, err := NewLedger(backend, options...)
	require.NoError(t, err)
	return backend, l
}

func runFrame(t *testing.T, b *renderer.RecordingBackend, l Ledger, record func()) {
	t.Helper()
	require.NoError(t, b.BeginFrame())
	require.NoError(t, l.BeginFrame())
	if record != nil {
		record()
	}
	require.NoError(t, l.EndFrame())
	require.NoError(t, b.EndFrame())
	require.NoError(t, l.ResolvePreviousFrame())
}

func TestSectionNames(t *testing.T) {
	assert.Equal(t, "Frame Time (GPU)", SectionFrame.String())
	assert.Equal(t, "(Material Readback)", SectionMaterialReadback.String())
	assert.Equal(t, "Section(-1)", NoSection.String())
	assert.Equal(t, int32(-1), NoSection.RayCountIndex())
	assert.Equal(t, int32(2*SectionInitialSamples), SectionInitialSamples.RayCountIndex())
}

func TestLedgerAllocatesBanks(t *testing.T) {
	backend, l := newTestLedger(t)
	assert.Equal(t, 1, backend.Created("RayCount"))
	assert.Equal(t, 2, backend.Created("RayCountReadback"))
	assert.NotZero(t, l.RayCountBuffer())

	l.Release()
	assert.Zero(t, backend.LiveResources())
}

func TestLedgerResultsLagOneFrame(t *testing.T) {
	backend, l := newTestLedger(t)

	// frame 0 traces 100 rays in the initial samples pass
	runFrame(t, backend, l, func() {
		l.BeginSection(SectionInitialSamples)
		rays := int(SectionInitialSamples.RayCountIndex())
		writeCounters(t, backend, l.RayCountBuffer(), map[int]uint32{rays: 100, rays + 1: 40})
		l.EndSection(SectionInitialSamples)
	})
	// bank 1 was empty, so nothing from frame 0 is visible yet
	assert.Zero(t, l.RayCount(SectionInitialSamples))
	assert.Zero(t, l.Timer(SectionInitialSamples))

	runFrame(t, backend, l, nil)
	assert.Equal(t, 100.0, l.RayCount(SectionInitialSamples))
	assert.Equal(t, 40.0, l.HitCount(SectionInitialSamples))
	assert.InDelta(t, 2.0, l.Timer(SectionInitialSamples), 1e-9)
	assert.InDelta(t, 2.0, l.Timer(SectionFrame), 1e-9)

	// frame 1 recorded nothing in the section
	runFrame(t, backend, l, nil)
	assert.Zero(t, l.RayCount(SectionInitialSamples))
	assert.Zero(t, l.Timer(SectionInitialSamples))
}

func TestLedgerBankFlips(t *testing.T) {
	backend, l := newTestLedger(t)
	assert.Equal(t, 0, l.Bank())
	runFrame(t, backend, l, nil)
	assert.Equal(t, 1, l.Bank())
	runFrame(t, backend, l, nil)
	assert.Equal(t, 0, l.Bank())
}

func TestLedgerAccumulation(t *testing.T) {
	backend, l := newTestLedger(t, WithAccumulation(true))
	for range 4 {
		runFrame(t, backend, l, func() {
			l.BeginSection(SectionSpatialResampling)
			writeCounters(t, backend, l.RayCountBuffer(), map[int]uint32{int(SectionSpatialResampling) * 2: 10})
			l.EndSection(SectionSpatialResampling)
		})
	}
	assert.Equal(t, uint32(4), l.AccumulatedFrames())
	// three of the four resolves saw a recorded frame
	assert.InDelta(t, 7.5, l.RayCount(SectionSpatialResampling), 1e-9)

	l.ResetAccumulation()
	assert.Zero(t, l.AccumulatedFrames())
	assert.Zero(t, l.RayCount(SectionSpatialResampling))
}

func TestLedgerDisabled(t *testing.T) {
	backend, l := newTestLedger(t, WithEnabled(false))
	runFrame(t, backend, l, func() {
		l.BeginSection(SectionGlass)
		l.EndSection(SectionGlass)
	})
	runFrame(t, backend, l, nil)
	assert.Zero(t, l.Timer(SectionGlass))
	assert.Zero(t, l.AccumulatedFrames())
	assert.Equal(t, 0, l.Bank())

	for _, c := range backend.Calls() {
		assert.NotEqual(t, "ClearResource", c.Op)
		assert.NotEqual(t, "CopyResource", c.Op)
	}
}

func TestLedgerMaterialReadback(t *testing.T) {
	backend, l := newTestLedger(t)
	runFrame(t, backend, l, func() {
		writeCounters(t, backend, l.RayCountBuffer(), map[int]uint32{int(SectionMaterialReadback) * 2: 8})
	})
	runFrame(t, backend, l, nil)
	assert.Equal(t, 7, l.MaterialReadback())

	runFrame(t, backend, l, nil)
	assert.Equal(t, -1, l.MaterialReadback())
}

func TestLedgerReport(t *testing.T) {
	backend, l := newTestLedger(t)
	record := func() {
		l.BeginSection(SectionInitialSamples)
		rays := int(SectionInitialSamples.RayCountIndex())
		writeCounters(t, backend, l.RayCountBuffer(), map[int]uint32{rays: 200, rays + 1: 50})
		l.EndSection(SectionInitialSamples)
	}
	runFrame(t, backend, l, record)
	runFrame(t, backend, l, record)

	report := l.Report("recording", 10, 10)
	lines := strings.Split(strings.TrimSpace(report), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Renderer: recording", lines[0])
	assert.Equal(t, "Resolution: 10 x 10", lines[1])
	assert.Equal(t, "Initial Samples: 2.000 ms (2.000 rpp, 25% hits)", lines[2])
	assert.Equal(t, "Frame Time (GPU): 2.000 ms (500.00 FPS)", lines[3])
	assert.NotContains(t, report, "Glass")
}

func TestFrameStatsTick(t *testing.T) {
	_, l := newTestLedger(t)
	stats := NewFrameStats(time.Second, l)
	base := time.Now()
	stats.lastTime = base
	stats.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	assert.False(t, stats.Tick())

	stats.now = func() time.Time { return base.Add(1500 * time.Millisecond) }
	assert.True(t, stats.Tick())
	assert.Zero(t, stats.frameCount)
}
