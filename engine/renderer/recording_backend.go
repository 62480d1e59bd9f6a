package renderer

import (
	"fmt"
	"sync"
	"time"
)

// Call is one entry of a RecordingBackend trace.
type Call struct {
	Op     string
	Label  string
	Handle uint32
	Groups [3]uint32
}

func (c Call) String() string {
	if c.Op == "Dispatch" {
		return fmt.Sprintf("Dispatch(%s %dx%dx%d)", c.Label, c.Groups[0], c.Groups[1], c.Groups[2])
	}
	return fmt.Sprintf("%s(%s)", c.Op, c.Label)
}

type recordedResource struct {
	desc ResourceDesc
	data []byte
}

// bytes returns the buffer contents, allocating them on first use. Large buffers that are only
// bound and dispatched never allocate.
func (r *recordedResource) bytes() []byte {
	if r.data == nil {
		r.data = make([]byte, r.desc.Size)
	}
	return r.data
}

type recordedBindingSet struct {
	label    string
	layout   BindingLayout
	bindings []Binding
}

type recordedTimer struct {
	value time.Duration
	done  bool
}

// RecordingBackend is a headless Backend. Buffers are plain byte slices, dispatches execute
// nothing, and every call lands in a trace that tests assert against.
type RecordingBackend struct {
	mu sync.Mutex

	next        uint32
	resources   map[ResourceHandle]*recordedResource
	pipelines   map[PipelineHandle]ComputePipelineDesc
	bindingSets map[BindingSetHandle]recordedBindingSet
	timers      map[TimerQueryHandle]*recordedTimer

	calls   []Call
	created map[string]int
	frames  uint64
	inFrame bool
	lost    bool

	timerSource func(q TimerQueryHandle) time.Duration
	onDispatch  func(b *RecordingBackend, pipeline string, bindings []Binding)
}

var _ Backend = &RecordingBackend{}

// RecordingBackendOption configures a RecordingBackend.
type RecordingBackendOption func(*RecordingBackend)

// WithTimerSource sets the duration every completed timer query reports.
//
// Parameters:
//   - fn: returns the duration for a query slot
//
// Returns:
//   - RecordingBackendOption: the option
func WithTimerSource(fn func(q TimerQueryHandle) time.Duration) RecordingBackendOption {
	return func(b *RecordingBackend) {
		b.timerSource = fn
	}
}

// WithDispatchHook runs fn for every dispatch with the pipeline label and the bindings of the
// bound set. Tests use it to emulate kernels writing counters.
//
// Parameters:
//   - fn: the hook, called with the backend lock released
//
// Returns:
//   - RecordingBackendOption: the option
func WithDispatchHook(fn func(b *RecordingBackend, pipeline string, bindings []Binding)) RecordingBackendOption {
	return func(b *RecordingBackend) {
		b.onDispatch = fn
	}
}

// NewRecordingBackend creates an empty RecordingBackend.
//
// Parameters:
//   - options: optional configuration
//
// Returns:
//   - *RecordingBackend: the backend
func NewRecordingBackend(options ...RecordingBackendOption) *RecordingBackend {
	b := &RecordingBackend{
		resources:   make(map[ResourceHandle]*recordedResource),
		pipelines:   make(map[PipelineHandle]ComputePipelineDesc),
		bindingSets: make(map[BindingSetHandle]recordedBindingSet),
		timers:      make(map[TimerQueryHandle]*recordedTimer),
		created:     make(map[string]int),
		timerSource: func(TimerQueryHandle) time.Duration { return time.Millisecond },
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *RecordingBackend) record(c Call) {
	b.calls = append(b.calls, c)
}

func (b *RecordingBackend) handle() uint32 {
	b.next++
	return b.next
}

func (b *RecordingBackend) Name() string {
	return "Recording Backend"
}

func (b *RecordingBackend) CreateResource(desc ResourceDesc) (ResourceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return 0, ErrDeviceLost
	}
	h := ResourceHandle(b.handle())
	r := &recordedResource{desc: desc}
	b.resources[h] = r
	b.created[desc.Label]++
	b.record(Call{Op: "CreateResource", Label: desc.Label, Handle: uint32(h)})
	return h, nil
}

func (b *RecordingBackend) CreateComputePipeline(desc ComputePipelineDesc) (PipelineHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return 0, ErrDeviceLost
	}
	h := PipelineHandle(b.handle())
	b.pipelines[h] = desc
	b.created[desc.Label]++
	b.record(Call{Op: "CreateComputePipeline", Label: desc.Label, Handle: uint32(h)})
	return h, nil
}

func (b *RecordingBackend) CreateBindingSet(label string, layout BindingLayout, bindings []Binding) (BindingSetHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return 0, ErrDeviceLost
	}
	for _, bd := range bindings {
		if _, ok := b.resources[bd.Resource]; !ok {
			return 0, fmt.Errorf("%w: binding set %s slot %d", ErrInvalidHandle, label, bd.Slot)
		}
		if _, ok := layout.Slot(bd.Slot); !ok {
			return 0, fmt.Errorf("binding set %s: slot %d not in layout", label, bd.Slot)
		}
	}
	h := BindingSetHandle(b.handle())
	cp := make([]Binding, len(bindings))
	copy(cp, bindings)
	b.bindingSets[h] = recordedBindingSet{label: label, layout: layout, bindings: cp}
	b.created[label]++
	b.record(Call{Op: "CreateBindingSet", Label: label, Handle: uint32(h)})
	return h, nil
}

func (b *RecordingBackend) buffer(h ResourceHandle) (*recordedResource, error) {
	r, ok := b.resources[h]
	if !ok || r.desc.Kind != ResourceKindBuffer {
		return nil, fmt.Errorf("%w: buffer %d", ErrInvalidHandle, h)
	}
	return r, nil
}

func (b *RecordingBackend) WriteResource(h ResourceHandle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.buffer(h)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > r.desc.Size {
		return fmt.Errorf("write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, r.desc.Label, r.desc.Size)
	}
	copy(r.bytes()[offset:], data)
	b.record(Call{Op: "WriteResource", Label: r.desc.Label, Handle: uint32(h)})
	return nil
}

func (b *RecordingBackend) WriteTexture(h ResourceHandle, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.resources[h]
	if !ok || r.desc.Kind != ResourceKindTexture {
		return fmt.Errorf("%w: texture %d", ErrInvalidHandle, h)
	}
	b.record(Call{Op: "WriteTexture", Label: r.desc.Label, Handle: uint32(h)})
	return nil
}

func (b *RecordingBackend) ClearResource(h ResourceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return ErrNoFrame
	}
	r, ok := b.resources[h]
	if !ok {
		return fmt.Errorf("%w: resource %d", ErrInvalidHandle, h)
	}
	clear(r.data)
	b.record(Call{Op: "ClearResource", Label: r.desc.Label, Handle: uint32(h)})
	return nil
}

func (b *RecordingBackend) CopyResource(src, dst ResourceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return ErrNoFrame
	}
	s, err := b.buffer(src)
	if err != nil {
		return err
	}
	d, err := b.buffer(dst)
	if err != nil {
		return err
	}
	copy(d.bytes(), s.bytes())
	b.record(Call{Op: "CopyResource", Label: s.desc.Label + "->" + d.desc.Label, Handle: uint32(dst)})
	return nil
}

func (b *RecordingBackend) ReadResource(h ResourceHandle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.buffer(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, r.desc.Size)
	copy(out, r.data)
	return out, nil
}

func (b *RecordingBackend) Dispatch(p PipelineHandle, bs BindingSetHandle, groups [3]uint32) error {
	b.mu.Lock()
	if !b.inFrame {
		b.mu.Unlock()
		return ErrNoFrame
	}
	desc, ok := b.pipelines[p]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: pipeline %d", ErrInvalidHandle, p)
	}
	set, ok := b.bindingSets[bs]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: binding set %d for %s", ErrInvalidHandle, bs, desc.Label)
	}
	b.record(Call{Op: "Dispatch", Label: desc.Label, Handle: uint32(bs), Groups: groups})
	hook := b.onDispatch
	b.mu.Unlock()

	if hook != nil {
		hook(b, desc.Label, set.bindings)
	}
	return nil
}

func (b *RecordingBackend) Barrier(h ResourceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	label := ""
	if r, ok := b.resources[h]; ok {
		label = r.desc.Label
	}
	b.record(Call{Op: "Barrier", Label: label, Handle: uint32(h)})
}

func (b *RecordingBackend) BeginMarker(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "BeginMarker", Label: name})
}

func (b *RecordingBackend) EndMarker() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "EndMarker"})
}

func (b *RecordingBackend) CreateTimerQueries(count int) ([]TimerQueryHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TimerQueryHandle, count)
	for i := range out {
		out[i] = TimerQueryHandle(b.handle())
		b.timers[out[i]] = &recordedTimer{}
	}
	return out, nil
}

func (b *RecordingBackend) BeginTimer(q TimerQueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[q]; ok {
		t.done = false
	}
}

func (b *RecordingBackend) EndTimer(q TimerQueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[q]; ok {
		t.value = b.timerSource(q)
		t.done = true
	}
}

func (b *RecordingBackend) ReadTimer(q TimerQueryHandle) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.timers[q]
	if !ok || !t.done {
		return 0, false
	}
	return t.value, true
}

func (b *RecordingBackend) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return ErrDeviceLost
	}
	b.inFrame = true
	b.record(Call{Op: "BeginFrame"})
	return nil
}

func (b *RecordingBackend) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return ErrNoFrame
	}
	b.inFrame = false
	b.frames++
	b.record(Call{Op: "EndFrame"})
	if b.lost {
		return ErrDeviceLost
	}
	return nil
}

func (b *RecordingBackend) WaitForIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "WaitForIdle"})
}

func (b *RecordingBackend) ReleaseResource(h ResourceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.resources[h]; ok {
		b.record(Call{Op: "ReleaseResource", Label: r.desc.Label, Handle: uint32(h)})
		delete(b.resources, h)
	}
}

func (b *RecordingBackend) ReleasePipeline(h PipelineHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[h]; ok {
		b.record(Call{Op: "ReleasePipeline", Label: p.Label, Handle: uint32(h)})
		delete(b.pipelines, h)
	}
}

func (b *RecordingBackend) ReleaseBindingSet(h BindingSetHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.bindingSets[h]; ok {
		b.record(Call{Op: "ReleaseBindingSet", Label: s.label, Handle: uint32(h)})
		delete(b.bindingSets, h)
	}
}

func (b *RecordingBackend) DeviceLost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}

func (b *RecordingBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.resources)
	clear(b.pipelines)
	clear(b.bindingSets)
	clear(b.timers)
}

// SetDeviceLost simulates device removal.
func (b *RecordingBackend) SetDeviceLost(lost bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lost = lost
}

// Calls returns a copy of the trace.
func (b *RecordingBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// ResetCalls empties the trace, keeping every object alive.
func (b *RecordingBackend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = b.calls[:0]
}

// Dispatches returns the pipeline labels of every recorded dispatch, in order.
func (b *RecordingBackend) Dispatches() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		if c.Op == "Dispatch" {
			out = append(out, c.Label)
		}
	}
	return out
}

// Created returns how many objects were ever created with label.
func (b *RecordingBackend) Created(label string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[label]
}

// LiveResources returns how many buffers and textures are currently allocated.
func (b *RecordingBackend) LiveResources() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.resources)
}

// Resource returns the description of a live resource.
func (b *RecordingBackend) Resource(h ResourceHandle) (ResourceDesc, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.resources[h]
	if !ok {
		return ResourceDesc{}, false
	}
	return r.desc, true
}

// BindingSetBindings returns the bindings a live binding set was created with.
func (b *RecordingBackend) BindingSetBindings(h BindingSetHandle) []Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindingSets[h].bindings
}

// Frames returns how many frames were submitted.
func (b *RecordingBackend) Frames() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}
