package device

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultCompute = "7.5"
	// fallbackMemory sizes the modeled device when the host total is
	// unknown.
	fallbackMemory = 8 << 30
	// deviceLaunchMajor/Minor is the minimum compute capability with
	// device-initiated launch.
	deviceLaunchMajor = 3
	deviceLaunchMinor = 5
)

// NewVirtual builds the in-process modeled accelerator: one device whose
// identity comes from the host, with the worker count, compute capability
// and memory taken from opts when set.
func NewVirtual(opts Options) (Backend, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	compute := opts.Compute
	if compute == "" {
		compute = defaultCompute
	}
	major, minor, err := parseCompute(compute)
	if err != nil {
		return nil, fmt.Errorf("virtual backend: %w", err)
	}
	memory := opts.Memory
	if memory == 0 {
		memory = hostMemory()
	}
	if memory == 0 {
		memory = fallbackMemory
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("Virtual Accelerator (%s)", hostMachine())
	}
	dev := &virtDevice{
		workers: workers,
		info: Info{
			Name:    name,
			Vendor:  "virtual",
			Driver:  runtime.Version(),
			Memory:  memory,
			Workers: workers,
			Compute: fmt.Sprintf("%d.%d", major, minor),
			DeviceLaunch: major > deviceLaunchMajor ||
				(major == deviceLaunchMajor && minor >= deviceLaunchMinor),
		},
	}
	return &virtBackend{dev: dev}, nil
}

func parseCompute(s string) (major, minor int, err error) {
	majStr, minStr, ok := strings.Cut(s, ".")
	if ok {
		minor, err = strconv.Atoi(minStr)
	}
	if err == nil {
		major, err = strconv.Atoi(majStr)
	}
	if err != nil || major < 0 || minor < 0 {
		return 0, 0, fmt.Errorf("compute capability %q: expected major.minor", s)
	}
	return major, minor, nil
}

type virtBackend struct {
	dev *virtDevice
}

func (b *virtBackend) Name() string    { return Virtual }
func (b *virtBackend) Available() bool { return true }

func (b *virtBackend) Devices() ([]Info, error) {
	return []Info{b.dev.info}, nil
}

func (b *virtBackend) Open(index int) (Device, error) {
	if index != 0 {
		return nil, fmt.Errorf("virtual backend: device index %d out of range (1 device)", index)
	}
	return b.dev, nil
}

// virtDevice models one accelerator: a worker pool, a memory budget, and
// any number of queues.
type virtDevice struct {
	info    Info
	workers int

	mu        sync.Mutex
	allocated uint64
	queues    []*virtQueue
	closed    bool
}

func (d *virtDevice) Info() Info { return d.info }

func (d *virtDevice) NewQueue() (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("create queue: device closed")
	}
	q := newVirtQueue(d)
	d.queues = append(d.queues, q)
	return q, nil
}

func (d *virtDevice) NewBuffer(n int) (Buffer, error) {
	if n < 1 {
		return nil, fmt.Errorf("allocate buffer: element count %d", n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("allocate buffer: device closed")
	}
	// Check the raw count first so uint64(n)*4 below cannot wrap.
	if uint64(n) > d.info.Memory/4 {
		return nil, fmt.Errorf("allocate buffer: %d elements exceed device memory (%d bytes)",
			n, d.info.Memory)
	}
	size := uint64(n) * 4
	if size > d.info.Memory-d.allocated {
		return nil, fmt.Errorf("allocate buffer: %d bytes exceed device memory (%d of %d in use)",
			size, d.allocated, d.info.Memory)
	}
	d.allocated += size
	return &virtBuffer{dev: d, data: make([]float32, n)}, nil
}

func (d *virtDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	queues := d.queues
	d.queues = nil
	d.mu.Unlock()
	for _, q := range queues {
		_ = q.Close()
	}
	return nil
}

// virtBuffer is device memory backed by a float32 slice.
type virtBuffer struct {
	dev *virtDevice

	mu   sync.Mutex
	data []float32
}

func (b *virtBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *virtBuffer) CopyFromHost(src []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return fmt.Errorf("copy to device: buffer freed")
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("copy to device: %d elements into buffer of %d", len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

func (b *virtBuffer) CopyToHost(dst []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return fmt.Errorf("copy from device: buffer freed")
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("copy from device: %d elements from buffer of %d", len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *virtBuffer) Free() {
	b.mu.Lock()
	if b.data == nil {
		b.mu.Unlock()
		return
	}
	size := uint64(len(b.data)) * 4
	b.data = nil
	b.mu.Unlock()

	b.dev.mu.Lock()
	b.dev.allocated -= size
	b.dev.mu.Unlock()
}
