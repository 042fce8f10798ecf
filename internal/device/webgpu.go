//go:build webgpu

package device

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// The WebGPU backend runs the stage kernels as WGSL compute shaders. The
// API has no device-initiated launch, so every adapter reports
// DeviceLaunch false and LaunchChain fails with ErrUnsupported.

const webgpuBuilt = true

func newWebGPU() (Backend, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("webgpu backend: create instance: %w", ErrUnavailable)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Release()
		return nil, fmt.Errorf("webgpu backend: no adapters found: %w", ErrUnavailable)
	}
	return &wgpuBackend{inst: inst, adapters: adapters}, nil
}

type wgpuBackend struct {
	inst     *wgpu.Instance
	adapters []*wgpu.Adapter
}

func (b *wgpuBackend) Name() string    { return WebGPU }
func (b *wgpuBackend) Available() bool { return len(b.adapters) > 0 }

func (b *wgpuBackend) Devices() ([]Info, error) {
	infos := make([]Info, len(b.adapters))
	for i, a := range b.adapters {
		infos[i] = adapterInfo(i, a)
	}
	return infos, nil
}

func (b *wgpuBackend) Open(index int) (Device, error) {
	if index < 0 || index >= len(b.adapters) {
		return nil, fmt.Errorf("webgpu backend: device index %d out of range (%d adapters)", index, len(b.adapters))
	}
	adapter := b.adapters[index]
	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		RequiredFeatures: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu backend: request device %d: %w", index, err)
	}
	return &wgpuDevice{
		info:      adapterInfo(index, adapter),
		dev:       dev,
		queue:     dev.GetQueue(),
		pipelines: make(map[pipelineKey]*wgpu.ComputePipeline),
		uniforms:  make(map[uniformKey]*wgpu.Buffer),
	}, nil
}

func adapterInfo(index int, a *wgpu.Adapter) Info {
	ai := a.GetInfo()
	limits := a.GetLimits()
	return Info{
		Index:        index,
		Name:         ai.Name,
		Vendor:       ai.VendorName,
		Driver:       ai.DriverDescription,
		Memory:       limits.Limits.MaxBufferSize,
		Workers:      int(limits.Limits.MaxComputeInvocationsPerWorkgroup),
		Compute:      "wgsl",
		DeviceLaunch: false,
	}
}

type pipelineKey struct {
	stage Stage
	block int
}

type uniformKey struct {
	n     int
	scale int
}

type wgpuDevice struct {
	info  Info
	dev   *wgpu.Device
	queue *wgpu.Queue

	mu        sync.Mutex
	pipelines map[pipelineKey]*wgpu.ComputePipeline
	uniforms  map[uniformKey]*wgpu.Buffer
	closed    bool
}

func (d *wgpuDevice) Info() Info { return d.info }

func (d *wgpuDevice) NewQueue() (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("create queue: device closed")
	}
	return &wgpuQueue{dev: d}, nil
}

func (d *wgpuDevice) NewBuffer(n int) (Buffer, error) {
	if n < 1 {
		return nil, fmt.Errorf("allocate buffer: element count %d", n)
	}
	// Check the raw count first so uint64(n)*4 below cannot wrap.
	if uint64(n) > d.info.Memory/4 {
		return nil, fmt.Errorf("allocate buffer: %d elements exceed device memory (%d bytes)",
			n, d.info.Memory)
	}
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("storage-%d", n),
		Size:  uint64(n) * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("allocate buffer: %w", err)
	}
	return &wgpuBuffer{dev: d, buf: buf, n: n}, nil
}

func (d *wgpuDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.dev.Poll(true, nil)
	for _, buf := range d.uniforms {
		buf.Destroy()
	}
	d.dev.Release()
	return nil
}

// pipeline compiles and caches the compute pipeline for one stage at one
// workgroup size.
func (d *wgpuDevice) pipeline(st Stage, block int) (*wgpu.ComputePipeline, error) {
	key := pipelineKey{stage: st, block: block}
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[key]; ok {
		return p, nil
	}
	label := fmt.Sprintf("%s-wg%d", st, block)
	mod, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: stageWGSL(st, block)},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", st, err)
	}
	p, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label,
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("build %s pipeline: %w", st, err)
	}
	d.pipelines[key] = p
	return p, nil
}

// uniformFor caches the 16-byte parameter block for one (n, scale) pair.
// The scale clamp mirrors Transform so both backends run the same
// iteration count.
func (d *wgpuDevice) uniformFor(ln Launch) (*wgpu.Buffer, error) {
	scale := ln.Scale
	if scale < 1 {
		scale = 1
	}
	key := uniformKey{n: ln.N, scale: scale}
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.uniforms[key]; ok {
		return buf, nil
	}
	words := []uint32{uint32(ln.N), uint32(scale), 0, 0}
	buf, err := d.dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: wgpu.ToBytes(words),
		Usage:    wgpu.BufferUsageUniform,
	})
	if err != nil {
		return nil, err
	}
	d.uniforms[key] = buf
	return buf, nil
}

// stageWGSL renders the WGSL mirror of the stage kernel. The arithmetic
// must stay mul/add only so results match Transform bit for bit.
func stageWGSL(st Stage, block int) string {
	rate := strconv.FormatFloat(float64(stageRate[st]), 'g', -1, 32)
	if st == Stage1 {
		return fmt.Sprintf(seedShaderTmpl, block, rate)
	}
	return fmt.Sprintf(stageShaderTmpl, block, rate)
}

const stageShaderTmpl = `struct Params {
    n: u32,
    scale: u32,
    pad0: u32,
    pad1: u32,
}

@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= params.n) {
        return;
    }
    var x = src[i];
    for (var k = 0u; k < params.scale; k = k + 1u) {
        x = %s * x * (1.0 - x);
    }
    dst[i] = x;
}
`

const seedShaderTmpl = `struct Params {
    n: u32,
    scale: u32,
    pad0: u32,
    pad1: u32,
}

@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= params.n) {
        return;
    }
    let h = i * 2654435761u + 0x9e3779b9u;
    var x = f32(h >> 8u) / 16777216.0;
    for (var k = 0u; k < params.scale; k = k + 1u) {
        x = %s * x * (1.0 - x);
    }
    dst[i] = x;
}
`

type wgpuQueue struct {
	dev *wgpuDevice
}

func (q *wgpuQueue) LaunchStage(st Stage, ln Launch, in, out Buffer) error {
	src, dst, err := q.stagePair(st, ln, in, out)
	if err != nil {
		return err
	}
	pipe, err := q.dev.pipeline(st, ln.Block)
	if err != nil {
		return fmt.Errorf("launch %s: %w", st, err)
	}
	params, err := q.dev.uniformFor(ln)
	if err != nil {
		return fmt.Errorf("launch %s: params: %w", st, err)
	}

	var entries []wgpu.BindGroupEntry
	if st == Stage1 {
		entries = []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: dst.buf, Size: dst.buf.GetSize()},
			{Binding: 1, Buffer: params, Size: params.GetSize()},
		}
	} else {
		entries = []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: src.buf, Size: src.buf.GetSize()},
			{Binding: 1, Buffer: dst.buf, Size: dst.buf.GetSize()},
			{Binding: 2, Buffer: params, Size: params.GetSize()},
		}
	}
	bg, err := q.dev.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   st.String(),
		Layout:  pipe.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("launch %s: bind group: %w", st, err)
	}

	enc, err := q.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("launch %s: command encoder: %w", st, err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(uint32(ln.Grid), 1, 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("launch %s: encode: %w", st, err)
	}
	q.dev.queue.Submit(cmd)
	return nil
}

func (q *wgpuQueue) LaunchChain(ln Launch, chain []StageLaunch) error {
	return fmt.Errorf("launch chain: %w", ErrUnsupported)
}

func (q *wgpuQueue) stagePair(st Stage, ln Launch, in, out Buffer) (src, dst *wgpuBuffer, err error) {
	if !st.valid() {
		return nil, nil, fmt.Errorf("launch: invalid stage %d", st)
	}
	if ln.Grid < 1 {
		return nil, nil, fmt.Errorf("launch %s: grid %d", st, ln.Grid)
	}
	if ln.Block < 1 || ln.Block > MaxBlock {
		return nil, nil, fmt.Errorf("launch %s: block %d outside 1..%d", st, ln.Block, MaxBlock)
	}
	if ln.N < 1 {
		return nil, nil, fmt.Errorf("launch %s: element count %d", st, ln.N)
	}
	if dst, err = q.deviceBuffer(out); err != nil {
		return nil, nil, fmt.Errorf("launch %s: output %w", st, err)
	}
	if ln.N > dst.n {
		return nil, nil, fmt.Errorf("launch %s: %d elements exceed output length %d", st, ln.N, dst.n)
	}
	if st != Stage1 {
		if src, err = q.deviceBuffer(in); err != nil {
			return nil, nil, fmt.Errorf("launch %s: input %w", st, err)
		}
		if ln.N > src.n {
			return nil, nil, fmt.Errorf("launch %s: %d elements exceed input length %d", st, ln.N, src.n)
		}
		if in == out {
			return nil, nil, fmt.Errorf("launch %s: input aliases output", st)
		}
	}
	return src, dst, nil
}

func (q *wgpuQueue) deviceBuffer(b Buffer) (*wgpuBuffer, error) {
	wb, ok := b.(*wgpuBuffer)
	if !ok || wb == nil {
		return nil, fmt.Errorf("buffer not resident on this device")
	}
	if wb.dev != q.dev {
		return nil, fmt.Errorf("buffer belongs to another device")
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if wb.buf == nil {
		return nil, fmt.Errorf("buffer already freed")
	}
	return wb, nil
}

// Record blocks until all submitted work is done, then stamps the host
// clock. The binding exposes no device timestamp queries, so event pairs
// measure submit-to-completion at the host boundary.
func (q *wgpuQueue) Record() (Event, error) {
	q.dev.dev.Poll(true, nil)
	return &wgpuEvent{at: time.Now()}, nil
}

func (q *wgpuQueue) Synchronize() error {
	q.dev.dev.Poll(true, nil)
	return nil
}

func (q *wgpuQueue) Close() error {
	q.dev.dev.Poll(true, nil)
	return nil
}

// wgpuEvent is complete the moment Record returns.
type wgpuEvent struct {
	at time.Time
}

func (e *wgpuEvent) Wait() error { return nil }

func (e *wgpuEvent) Time() (time.Time, error) { return e.at, nil }

type wgpuBuffer struct {
	dev *wgpuDevice
	n   int

	mu  sync.Mutex
	buf *wgpu.Buffer
}

func (b *wgpuBuffer) Len() int { return b.n }

func (b *wgpuBuffer) CopyFromHost(src []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf == nil {
		return fmt.Errorf("copy to device: buffer freed")
	}
	if len(src) != b.n {
		return fmt.Errorf("copy to device: %d elements into buffer of %d", len(src), b.n)
	}
	b.dev.queue.WriteBuffer(b.buf, 0, wgpu.ToBytes(src))
	return nil
}

func (b *wgpuBuffer) CopyToHost(dst []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf == nil {
		return fmt.Errorf("copy from device: buffer freed")
	}
	if len(dst) != b.n {
		return fmt.Errorf("copy from device: %d elements from buffer of %d", len(dst), b.n)
	}

	sizeBytes := uint64(b.n) * 4
	staging, err := b.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("copy from device: staging buffer: %w", err)
	}
	defer staging.Destroy()

	enc, err := b.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("copy from device: command encoder: %w", err)
	}
	enc.CopyBufferToBuffer(b.buf, 0, staging, 0, sizeBytes)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("copy from device: encode: %w", err)
	}
	b.dev.queue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map status %v", status)
		}
		close(done)
	})
	if err != nil {
		return fmt.Errorf("copy from device: map: %w", err)
	}
	for {
		b.dev.dev.Poll(true, nil)
		select {
		case <-done:
		default:
			continue
		}
		break
	}
	if mapErr != nil {
		return fmt.Errorf("copy from device: %w", mapErr)
	}

	raw := staging.GetMappedRange(0, uint(sizeBytes))
	if raw == nil {
		staging.Unmap()
		return fmt.Errorf("copy from device: mapped range unavailable")
	}
	copy(dst, wgpu.FromBytes[float32](raw))
	staging.Unmap()
	return nil
}

func (b *wgpuBuffer) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf == nil {
		return
	}
	b.buf.Destroy()
	b.buf = nil
}
