package renderer

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
)

// presentShaderSource draws a fullscreen triangle that copies the frame output onto the surface.
const presentShaderSource = `
@group(0) @binding(0) var frameOutput: texture_2d<f32>;

struct VertexOutput {
	@builtin(position) position: vec4f,
	@location(0) uv: vec2f,
};

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
	let uv = vec2f(f32((index << 1u) & 2u), f32(index & 2u));
	var out: VertexOutput;
	out.position = vec4f(uv * vec2f(2.0, -2.0) + vec2f(-1.0, 1.0), 0.0, 1.0);
	out.uv = uv;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
	let size = vec2f(textureDimensions(frameOutput));
	let texel = vec2i(clamp(in.uv * size, vec2f(0.0), size - vec2f(1.0)));
	return textureLoad(frameOutput, texel, 0);
}
`

type wgpuResource struct {
	desc    ResourceDesc
	buffer  *wgpu.Buffer
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (r *wgpuResource) release() {
	if r.view != nil {
		r.view.Release()
	}
	if r.texture != nil {
		r.texture.Release()
	}
	if r.buffer != nil {
		r.buffer.Release()
	}
}

// wgpuRendererBackendImpl implements Backend (and Presenter when created with a surface) on WebGPU.
type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode

	next        uint32
	resources   map[ResourceHandle]*wgpuResource
	pipelines   map[PipelineHandle]*wgpu.ComputePipeline
	bindingSets map[BindingSetHandle]*wgpu.BindGroup
	layouts     map[string]*wgpu.BindGroupLayout
	timers      map[TimerQueryHandle]*wgpuTimer
	pools       []*timestampPool
	// timestamps is false when the adapter cannot write timestamp queries; timers never complete.
	timestamps bool

	// Frame state. Dispatches between two barriers or markers share one compute pass.
	frameEncoder *wgpu.CommandEncoder
	computePass  *wgpu.ComputePassEncoder
	passLabel    string

	presentPipeline *wgpu.RenderPipeline
	presentLayout   *wgpu.BindGroupLayout
	presentGroups   map[ResourceHandle]*wgpu.BindGroup

	lost bool
}

var (
	_ Backend   = &wgpuRendererBackendImpl{}
	_ Presenter = &wgpuRendererBackendImpl{}
)

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, vsync bool) (*wgpuRendererBackendImpl, error) {
	runtime.LockOSThread()
	b := &wgpuRendererBackendImpl{
		mu:            &sync.Mutex{},
		instance:      wgpu.CreateInstance(nil),
		presentMode:   wgpu.PresentModeImmediate,
		resources:     make(map[ResourceHandle]*wgpuResource),
		pipelines:     make(map[PipelineHandle]*wgpu.ComputePipeline),
		bindingSets:   make(map[BindingSetHandle]*wgpu.BindGroup),
		layouts:       make(map[string]*wgpu.BindGroupLayout),
		timers:        make(map[TimerQueryHandle]*wgpuTimer),
		presentGroups: make(map[ResourceHandle]*wgpu.BindGroup),
	}
	if vsync {
		b.presentMode = wgpu.PresentModeFifo
	}
	if surfaceDescriptor != nil {
		b.surface = b.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	b.adapter = a

	var features []wgpu.FeatureName
	if a.HasFeature(wgpu.FeatureNameTimestampQuery) {
		features = append(features, wgpu.FeatureNameTimestampQuery)
		b.timestamps = true
	} else {
		logger.Warn("adapter has no timestamp queries, profiler timers stay empty")
	}

	// The G-Buffer and lighting sets bind more storage textures than the default limits allow.
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: features,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: a.GetLimits().Limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()
	return b, nil
}

func (b *wgpuRendererBackendImpl) Name() string {
	return "WebGPU"
}

func (b *wgpuRendererBackendImpl) handle() uint32 {
	b.next++
	return b.next
}

func wgpuTextureFormat(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case FormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float
	case FormatR32Float:
		return wgpu.TextureFormatR32Float
	case FormatRG32Float:
		return wgpu.TextureFormatRG32Float
	case FormatR32Uint:
		return wgpu.TextureFormatR32Uint
	case FormatRGBA32Uint:
		return wgpu.TextureFormatRGBA32Uint
	case FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm
	default:
		return wgpu.TextureFormatRGBA16Float
	}
}

func wgpuBufferUsage(u ResourceUsage) wgpu.BufferUsage {
	if u&UsageReadback != 0 {
		return wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}
	usage := wgpu.BufferUsageCopyDst
	if u&UsageStorage != 0 {
		usage |= wgpu.BufferUsageStorage
	}
	if u&UsageUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if u&UsageCopySrc != 0 {
		usage |= wgpu.BufferUsageCopySrc
	}
	return usage
}

func wgpuTextureUsage(u ResourceUsage) wgpu.TextureUsage {
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	if u&UsageStorage != 0 {
		usage |= wgpu.TextureUsageStorageBinding
	}
	if u&UsageCopySrc != 0 {
		usage |= wgpu.TextureUsageCopySrc
	}
	return usage
}

func (b *wgpuRendererBackendImpl) CreateResource(desc ResourceDesc) (ResourceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return 0, ErrDeviceLost
	}

	r := &wgpuResource{desc: desc}
	switch desc.Kind {
	case ResourceKindBuffer:
		// WebGPU requires buffer sizes to be a multiple of 4.
		size := (max(desc.Size, 4) + 3) &^ 3
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  size,
			Usage: wgpuBufferUsage(desc.Usage),
		})
		if err != nil {
			return 0, fmt.Errorf("create buffer %s: %w", desc.Label, err)
		}
		r.buffer = buf
	case ResourceKindTexture:
		tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label: desc.Label,
			Size: wgpu.Extent3D{
				Width:              desc.Extent.Width,
				Height:             desc.Extent.Height,
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        wgpuTextureFormat(desc.Format),
			Usage:         wgpuTextureUsage(desc.Usage),
		})
		if err != nil {
			return 0, fmt.Errorf("create texture %s: %w", desc.Label, err)
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			tex.Release()
			return 0, fmt.Errorf("create texture view %s: %w", desc.Label, err)
		}
		r.texture = tex
		r.view = view
	}

	h := ResourceHandle(b.handle())
	b.resources[h] = r
	return h, nil
}

// bindGroupLayout returns the cached layout object for l, creating it on first use. Binding sets
// and pipelines built from equal layouts share one object.
func (b *wgpuRendererBackendImpl) bindGroupLayout(label string, l BindingLayout) (*wgpu.BindGroupLayout, error) {
	key := l.Key()
	if layout, ok := b.layouts[key]; ok {
		return layout, nil
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(l))
	for _, s := range l {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    s.Slot,
			Visibility: wgpu.ShaderStageCompute,
		}
		switch s.Type {
		case BindingUniform:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case BindingStorageRead:
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		case BindingStorageReadWrite:
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		case BindingTexture:
			entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
			entry.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
			if s.Format == FormatR32Uint || s.Format == FormatRGBA32Uint {
				entry.Texture.SampleType = wgpu.TextureSampleTypeUint
			}
		case BindingStorageTexture:
			entry.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
			entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
			entry.StorageTexture.Format = wgpuTextureFormat(s.Format)
		}
		entries = append(entries, entry)
	}

	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + " Layout",
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	b.layouts[key] = layout
	return layout, nil
}

func (b *wgpuRendererBackendImpl) CreateComputePipeline(desc ComputePipelineDesc) (PipelineHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return 0, ErrDeviceLost
	}

	s, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("compile %s: %w", desc.Label, err)
	}
	defer s.Release()

	bgl, err := b.bindGroupLayout(desc.Label, desc.Layout)
	if err != nil {
		return 0, fmt.Errorf("failed to create bind group layout for %s: %w", desc.Label, err)
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return 0, err
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return 0, err
	}

	h := PipelineHandle(b.handle())
	b.pipelines[h] = created
	return h, nil
}

func (b *wgpuRendererBackendImpl) CreateBindingSet(label string, layout BindingLayout, bindings []Binding) (BindingSetHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return 0, ErrDeviceLost
	}

	bgl, err := b.bindGroupLayout(label, layout)
	if err != nil {
		return 0, err
	}

	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, bd := range bindings {
		r, ok := b.resources[bd.Resource]
		if !ok {
			return 0, fmt.Errorf("%w: binding set %s slot %d", ErrInvalidHandle, label, bd.Slot)
		}
		if r.view != nil {
			entries[i] = wgpu.BindGroupEntry{
				Binding:     bd.Slot,
				TextureView: r.view,
			}
			continue
		}
		size := uint64(wgpu.WholeSize)
		if bd.Size != 0 {
			size = bd.Size
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: bd.Slot,
			Buffer:  r.buffer,
			Offset:  bd.Offset,
			Size:    size,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " Bind Group",
		Layout:  bgl,
		Entries: entries,
	})
	if err != nil {
		return 0, err
	}

	h := BindingSetHandle(b.handle())
	b.bindingSets[h] = bindGroup
	return h, nil
}

func (b *wgpuRendererBackendImpl) WriteResource(h ResourceHandle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.resources[h]
	if !ok || r.buffer == nil {
		return fmt.Errorf("%w: buffer %d", ErrInvalidHandle, h)
	}
	b.queue.WriteBuffer(r.buffer, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) WriteTexture(h ResourceHandle, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.resources[h]
	if !ok || r.texture == nil {
		return fmt.Errorf("%w: texture %d", ErrInvalidHandle, h)
	}
	extent := r.desc.Extent
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  r.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  extent.Width * uint32(r.desc.Format.BytesPerTexel()),
			RowsPerImage: extent.Height,
		},
		&wgpu.Extent3D{
			Width:              extent.Width,
			Height:             extent.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

// endComputePass closes the open compute pass so the next command starts a new one. Pass
// boundaries are where WebGPU orders storage writes against later reads.
func (b *wgpuRendererBackendImpl) endComputePass() {
	if b.computePass == nil {
		return
	}
	b.computePass.End()
	b.computePass.Release()
	b.computePass = nil
}

func (b *wgpuRendererBackendImpl) ClearResource(h ResourceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	r, ok := b.resources[h]
	if !ok {
		return fmt.Errorf("%w: resource %d", ErrInvalidHandle, h)
	}
	if r.buffer != nil {
		b.endComputePass()
		b.frameEncoder.ClearBuffer(r.buffer, 0, r.buffer.GetSize())
		return nil
	}

	// WebGPU has no texture clear command outside render passes. The queue write lands before this
	// frame's command buffer, which is fine for targets nothing else writes in the same frame.
	zeros := make([]byte, r.desc.ByteSize())
	extent := r.desc.Extent
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: r.texture, Aspect: wgpu.TextureAspectAll},
		zeros,
		&wgpu.TextureDataLayout{
			BytesPerRow:  extent.Width * uint32(r.desc.Format.BytesPerTexel()),
			RowsPerImage: extent.Height,
		},
		&wgpu.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: 1},
	)
	return nil
}

func (b *wgpuRendererBackendImpl) CopyResource(src, dst ResourceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	s, ok := b.resources[src]
	if !ok || s.buffer == nil {
		return fmt.Errorf("%w: copy source %d", ErrInvalidHandle, src)
	}
	d, ok := b.resources[dst]
	if !ok || d.buffer == nil {
		return fmt.Errorf("%w: copy destination %d", ErrInvalidHandle, dst)
	}
	b.endComputePass()
	b.frameEncoder.CopyBufferToBuffer(s.buffer, 0, d.buffer, 0, min(s.buffer.GetSize(), d.buffer.GetSize()))
	return nil
}

func (b *wgpuRendererBackendImpl) ReadResource(h ResourceHandle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.resources[h]
	if !ok || r.buffer == nil {
		return nil, fmt.Errorf("%w: readback %d", ErrInvalidHandle, h)
	}

	size := r.buffer.GetSize()
	var status wgpu.BufferMapAsyncStatus
	err := r.buffer.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return nil, err
	}
	b.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map %s: status %v", r.desc.Label, status)
	}

	out := make([]byte, size)
	copy(out, r.buffer.GetMappedRange(0, uint(size)))
	r.buffer.Unmap()
	return out, nil
}

func (b *wgpuRendererBackendImpl) Dispatch(p PipelineHandle, bs BindingSetHandle, groups [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	computePipeline, ok := b.pipelines[p]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", ErrInvalidHandle, p)
	}
	bindGroup, ok := b.bindingSets[bs]
	if !ok {
		return fmt.Errorf("%w: binding set %d", ErrInvalidHandle, bs)
	}

	if b.computePass == nil {
		b.computePass = b.frameEncoder.BeginComputePass(&wgpu.ComputePassDescriptor{
			Label: b.passLabel,
		})
	}
	b.computePass.SetPipeline(computePipeline)
	b.computePass.SetBindGroup(0, bindGroup, nil)
	b.computePass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	return nil
}

func (b *wgpuRendererBackendImpl) Barrier(ResourceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endComputePass()
}

func (b *wgpuRendererBackendImpl) BeginMarker(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endComputePass()
	b.passLabel = name
}

func (b *wgpuRendererBackendImpl) EndMarker() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endComputePass()
	b.passLabel = ""
}

func (b *wgpuRendererBackendImpl) CreateTimerQueries(count int) ([]TimerQueryHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var pool *timestampPool
	if b.timestamps && count > 0 {
		var err error
		if pool, err = newTimestampPool(b.device, count); err != nil {
			return nil, err
		}
		b.pools = append(b.pools, pool)
	}

	out := make([]TimerQueryHandle, count)
	for i := range out {
		out[i] = TimerQueryHandle(b.handle())
		if pool != nil {
			b.timers[out[i]] = pool.timers[i]
		} else {
			b.timers[out[i]] = &wgpuTimer{index: uint32(i)}
		}
	}
	return out, nil
}

// BeginTimer and EndTimer write encoder timestamps between compute passes. The pair resolves at
// EndFrame and is read back after the frame completed.
func (b *wgpuRendererBackendImpl) BeginTimer(q TimerQueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.timers[q]
	if !ok || t.pool == nil || b.frameEncoder == nil {
		return
	}
	b.endComputePass()
	if err := b.frameEncoder.WriteTimestamp(t.pool.set, 2*t.index); err != nil {
		return
	}
	t.started = true
}

func (b *wgpuRendererBackendImpl) EndTimer(q TimerQueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.timers[q]
	if !ok || !t.started || b.frameEncoder == nil {
		return
	}
	b.endComputePass()
	t.started = false
	if err := b.frameEncoder.WriteTimestamp(t.pool.set, 2*t.index+1); err != nil {
		return
	}
	t.pool.written = append(t.pool.written, t.index)
}

func (b *wgpuRendererBackendImpl) ReadTimer(q TimerQueryHandle) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.timers[q]
	if !ok {
		return 0, false
	}
	if t.pool != nil {
		if err := t.pool.collect(b.device); err != nil {
			logger.Warn("timestamp readback: %v", err)
		}
	}
	return t.value, t.done
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return ErrDeviceLost
	}
	if b.frameEncoder != nil {
		return fmt.Errorf("previous frame not yet submitted")
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.lost = true
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	b.frameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	b.endComputePass()
	for _, p := range b.pools {
		if err := p.resolveWritten(b.frameEncoder); err != nil {
			logger.Warn("resolve timestamps: %v", err)
		}
	}

	commandBuffer, err := b.frameEncoder.Finish(nil)
	b.frameEncoder.Release()
	b.frameEncoder = nil
	if err != nil {
		return fmt.Errorf("finish frame: %w", err)
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) WaitForIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Poll(true, nil)
}

func (b *wgpuRendererBackendImpl) ReleaseResource(h ResourceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.resources[h]; ok {
		r.release()
		delete(b.resources, h)
	}
	if bg, ok := b.presentGroups[h]; ok {
		bg.Release()
		delete(b.presentGroups, h)
	}
}

func (b *wgpuRendererBackendImpl) ReleasePipeline(h PipelineHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[h]; ok {
		p.Release()
		delete(b.pipelines, h)
	}
}

func (b *wgpuRendererBackendImpl) ReleaseBindingSet(h BindingSetHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bg, ok := b.bindingSets[h]; ok {
		bg.Release()
		delete(b.bindingSets, h)
	}
}

func (b *wgpuRendererBackendImpl) DeviceLost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.surface == nil || width <= 0 || height <= 0 {
		return
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuRendererBackendImpl) ensurePresentPipeline() error {
	if b.presentPipeline != nil {
		return nil
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Present",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: presentShaderSource,
		},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	b.presentLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Present Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return err
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Present",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.presentLayout},
	})
	if err != nil {
		return err
	}
	defer pipelineLayout.Release()

	b.presentPipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Present Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    b.surfaceFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	return err
}

func (b *wgpuRendererBackendImpl) Present(h ResourceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.surface == nil {
		return nil
	}
	r, ok := b.resources[h]
	if !ok || r.view == nil {
		return fmt.Errorf("%w: present source %d", ErrInvalidHandle, h)
	}
	if err := b.ensurePresentPipeline(); err != nil {
		return fmt.Errorf("present pipeline: %w", err)
	}

	bindGroup, ok := b.presentGroups[h]
	if !ok {
		var err error
		bindGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "Present Bind Group",
			Layout:  b.presentLayout,
			Entries: []wgpu.BindGroupEntry{{Binding: 0, TextureView: r.view}},
		})
		if err != nil {
			return err
		}
		b.presentGroups[h] = bindGroup
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    view,
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: wgpu.StoreOpStore,
			},
		},
	})
	pass.SetPipeline(b.presentPipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	pass.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.surface.Present()
	return nil
}

func (b *wgpuRendererBackendImpl) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Poll(true, nil)
	for _, bg := range b.presentGroups {
		bg.Release()
	}
	for _, bg := range b.bindingSets {
		bg.Release()
	}
	for _, p := range b.pipelines {
		p.Release()
	}
	for _, l := range b.layouts {
		l.Release()
	}
	for _, r := range b.resources {
		r.release()
	}
	for _, p := range b.pools {
		p.release()
	}
	b.pools = nil
	clear(b.timers)
	clear(b.presentGroups)
	clear(b.bindingSets)
	clear(b.pipelines)
	clear(b.layouts)
	clear(b.resources)
	if b.presentPipeline != nil {
		b.presentPipeline.Release()
	}
	if b.presentLayout != nil {
		b.presentLayout.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
}
