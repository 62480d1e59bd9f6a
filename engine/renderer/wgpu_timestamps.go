package renderer

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
)

// ResolveQuerySet destinations must be aligned to 256 bytes, so every timer resolves its
// begin/end pair into its own slot of the resolve buffer.
const (
	timestampResolveStride  = 256
	timestampReadbackStride = 16
)

// resolveOffset returns the resolve buffer offset of timer i.
func resolveOffset(i uint32) uint64 {
	return uint64(i) * timestampResolveStride
}

// readbackOffset returns the readback buffer offset of timer i.
func readbackOffset(i uint32) uint64 {
	return uint64(i) * timestampReadbackStride
}

// timestampDuration decodes a resolved begin/end pair. WebGPU timestamps are nanoseconds. A pair
// that never resolved reads as zeros.
func timestampDuration(pair []byte) (time.Duration, bool) {
	if len(pair) < timestampReadbackStride {
		return 0, false
	}
	begin := binary.LittleEndian.Uint64(pair[0:8])
	end := binary.LittleEndian.Uint64(pair[8:16])
	if end == 0 || end < begin {
		return 0, false
	}
	return time.Duration(end - begin), true
}

type wgpuTimer struct {
	pool    *timestampPool
	index   uint32
	started bool
	value   time.Duration
	done    bool
}

// timestampPool holds the query set of one CreateTimerQueries call. Timers written during a
// frame are resolved and copied into the readback buffer at EndFrame; the readback buffer is
// mapped on the first ReadTimer after that frame was submitted.
type timestampPool struct {
	set      *wgpu.QuerySet
	resolve  *wgpu.Buffer
	readback *wgpu.Buffer
	timers   []*wgpuTimer

	// written are the timers closed in the open frame.
	written []uint32
	// copied are the timers whose pair sits in the readback buffer, not yet mapped.
	copied []uint32
}

func newTimestampPool(device *wgpu.Device, count int) (*timestampPool, error) {
	n := uint32(count)
	set, err := device.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Label: "Profiler Timestamps",
		Type:  wgpu.QueryTypeTimestamp,
		Count: 2 * n,
	})
	if err != nil {
		return nil, fmt.Errorf("timestamp query set: %w", err)
	}
	p := &timestampPool{set: set, timers: make([]*wgpuTimer, count)}
	p.resolve, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Timestamp Resolve",
		Size:  max(resolveOffset(n), timestampResolveStride),
		Usage: wgpu.BufferUsageQueryResolve | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("timestamp resolve buffer: %w", err)
	}
	p.readback, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Timestamp Readback",
		Size:  max(readbackOffset(n), timestampReadbackStride),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("timestamp readback buffer: %w", err)
	}
	for i := range p.timers {
		p.timers[i] = &wgpuTimer{pool: p, index: uint32(i)}
	}
	return p, nil
}

// resolveWritten records the resolve and readback copy of every timer written this frame.
func (p *timestampPool) resolveWritten(encoder *wgpu.CommandEncoder) error {
	for _, i := range p.written {
		if err := encoder.ResolveQuerySet(p.set, 2*i, 2, p.resolve, resolveOffset(i)); err != nil {
			return err
		}
		if err := encoder.CopyBufferToBuffer(p.resolve, resolveOffset(i), p.readback, readbackOffset(i), timestampReadbackStride); err != nil {
			return err
		}
	}
	p.copied = append(p.copied, p.written...)
	p.written = p.written[:0]
	return nil
}

// collect maps the readback buffer and stores the durations of the copied timers. It blocks
// until the frames that copied them have completed.
func (p *timestampPool) collect(device *wgpu.Device) error {
	if len(p.copied) == 0 {
		return nil
	}
	size := p.readback.GetSize()
	status := wgpu.BufferMapAsyncStatusUnknown
	err := p.readback.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return err
	}
	device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("map timestamps: status %v", status)
	}

	data := p.readback.GetMappedRange(0, uint(size))
	for _, i := range p.copied {
		off := readbackOffset(i)
		if d, ok := timestampDuration(data[off : off+timestampReadbackStride]); ok {
			p.timers[i].value = d
			p.timers[i].done = true
		}
	}
	p.copied = p.copied[:0]
	return p.readback.Unmap()
}

func (p *timestampPool) release() {
	if p.readback != nil {
		p.readback.Release()
	}
	if p.resolve != nil {
		p.resolve.Release()
	}
	if p.set != nil {
		p.set.Release()
	}
}
