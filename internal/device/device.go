// Package device models the accelerator that launchbench drives: devices
// exposing fixed-size float32 buffers and in-order execution queues onto
// which the pipeline stages are launched.
//
// The virtual backend is a complete in-process model with a real FIFO
// queue, a worker pool and device-initiated tail-launching. The webgpu
// backend (build tag "webgpu") drives real hardware through WGSL compute
// shaders; it reports device-initiated launch as unsupported.
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	Virtual = "virtual"
	WebGPU  = "webgpu"
	Auto    = "auto"
)

// MaxBlock is the largest accepted block size (threads per block).
const MaxBlock = 1024

var (
	// ErrUnsupported is returned when a device cannot perform
	// device-initiated launches.
	ErrUnsupported = errors.New("device-initiated launch not supported")
	// ErrUnavailable is returned when a backend cannot be used in this
	// build or environment.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrQueueClosed is returned for submissions to a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrEventPending is returned by Event.Time before the queue has
	// reached the event.
	ErrEventPending = errors.New("event has not completed")
)

// Info describes one selectable device.
type Info struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Vendor  string `json:"vendor"`
	Driver  string `json:"driver,omitempty"`
	Memory  uint64 `json:"memory_bytes"`
	Workers int    `json:"workers,omitempty"`
	Compute string `json:"compute"`
	// DeviceLaunch reports whether tasks running on the device may
	// enqueue further launches onto their own queue.
	DeviceLaunch bool `json:"device_launch"`
}

// Stage identifies one of the four pipeline stages.
type Stage uint8

const (
	Stage1 Stage = iota + 1
	Stage2
	Stage3
	Stage4
)

func (s Stage) String() string { return fmt.Sprintf("stage%d", uint8(s)) }

func (s Stage) valid() bool { return s >= Stage1 && s <= Stage4 }

// Launch carries the 1-D launch geometry and the uniform kernel arguments
// shared by every stage launch of one pipeline invocation.
type Launch struct {
	Grid  int
	Block int
	N     int
	Scale int
}

// StageLaunch is one link of a device-side launch chain. In is ignored by
// Stage1, which seeds from the element index.
type StageLaunch struct {
	Stage Stage
	In    Buffer
	Out   Buffer
}

// Backend enumerates and opens devices.
type Backend interface {
	Name() string
	Available() bool
	Devices() ([]Info, error)
	Open(index int) (Device, error)
}

// Device owns buffers and queues. Callers must Close it when done.
type Device interface {
	Info() Info
	NewQueue() (Queue, error)
	NewBuffer(n int) (Buffer, error)
	Close() error
}

// Buffer is a fixed-length float32 array in device memory.
type Buffer interface {
	Len() int
	CopyFromHost(src []float32) error
	CopyToHost(dst []float32) error
	Free()
}

// Queue is an in-order FIFO execution queue. Enqueued items execute in
// submission order; a later item never begins before an earlier one
// completes, transitively including work those items launch themselves.
type Queue interface {
	// LaunchStage enqueues one stage launch and returns without waiting.
	// The returned error is the non-blocking launch-issue check
	// (geometry and argument validation), never a completion status.
	LaunchStage(st Stage, ln Launch, in, out Buffer) error
	// LaunchChain enqueues a single bootstrap task that tail-launches
	// every chain link, in order, from the device side. The caller
	// observes the bootstrap complete only once the entire chain has
	// (nested completion). Fails with ErrUnsupported when the device
	// lacks device-initiated launch.
	LaunchChain(ln Launch, chain []StageLaunch) error
	// Record enqueues a timing marker that captures the time at which
	// the queue reaches it.
	Record() (Event, error)
	// Synchronize blocks until every previously enqueued item, and all
	// work launched by those items, has completed.
	Synchronize() error
	Close() error
}

// Event is a queue-ordered timing marker.
type Event interface {
	// Wait blocks until the queue has executed past the marker.
	Wait() error
	// Time returns when the queue reached the marker, or
	// ErrEventPending if it has not yet.
	Time() (time.Time, error)
}

// Normalize maps a user-supplied backend name to its canonical constant.
// Unknown names normalize to the empty string.
func Normalize(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Auto:
		return Auto
	case Virtual, "virt", "sim":
		return Virtual
	case WebGPU, "wgpu", "gpu":
		return WebGPU
	default:
		return ""
	}
}

// Options parameterize the virtual device model. Zero values select the
// host defaults (NumCPU workers, compute capability 7.5, host memory).
type Options struct {
	Workers int
	Compute string
	Memory  uint64
	Name    string
}

// New constructs the named backend. Auto resolves to webgpu when the
// build includes it and an adapter is present, otherwise to the virtual
// backend.
func New(name string, opts Options) (Backend, error) {
	switch Normalize(name) {
	case Virtual:
		return NewVirtual(opts)
	case WebGPU:
		return newWebGPU()
	case Auto:
		if b, err := newWebGPU(); err == nil && b.Available() {
			return b, nil
		}
		return NewVirtual(opts)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// Backends lists the backend names compiled into this binary.
func Backends() []string {
	names := []string{Virtual}
	if webgpuBuilt {
		names = append(names, WebGPU)
	}
	return names
}
