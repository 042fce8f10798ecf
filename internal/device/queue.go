package device

import (
	"fmt"
	"sync"
	"time"
)

const (
	// queueDepth bounds how many items may sit unexecuted on a queue
	// before submission blocks.
	queueDepth = 1024
	// maxLaunchDepth caps device-initiated launch nesting.
	maxLaunchDepth = 24
)

// kernelFunc is the body of a modeled kernel, invoked once per thread of
// the launch grid.
type kernelFunc func(t workerThread)

// launchTask is one launch on the queue: a grid of kernel invocations
// plus the chain of launches its body tail-enqueued. The task counts as
// complete only when the whole chain has executed.
type launchTask struct {
	name  string
	grid  int
	block int
	depth int
	body  kernelFunc

	tailMu sync.Mutex
	tail   []*launchTask
}

type queueItem struct {
	launch *launchTask
	event  *virtEvent
	sync   chan struct{}
}

// virtQueue executes items strictly in submission order: one dispatcher
// goroutine drains the channel, and each launch is fanned out over the
// device worker pool and fully drained (tail chain included) before the
// next item starts.
type virtQueue struct {
	dev *virtDevice

	mu      sync.RWMutex
	closed  bool
	items   chan *queueItem
	drained chan struct{}
}

func newVirtQueue(dev *virtDevice) *virtQueue {
	q := &virtQueue{
		dev:     dev,
		items:   make(chan *queueItem, queueDepth),
		drained: make(chan struct{}),
	}
	go q.dispatch()
	return q
}

func (q *virtQueue) dispatch() {
	defer close(q.drained)
	for it := range q.items {
		switch {
		case it.launch != nil:
			q.execute(it.launch)
		case it.event != nil:
			it.event.fire(time.Now())
		default:
			close(it.sync)
		}
	}
}

// execute runs one launch to full completion: the grid first, then every
// launch the body tail-chained, in enqueue order.
func (q *virtQueue) execute(l *launchTask) {
	q.fanOut(l)
	for _, child := range l.tail {
		q.execute(child)
	}
}

// fanOut splits the grid's blocks across the device workers and waits for
// all of them. Threads within a block run sequentially on one worker.
func (q *virtQueue) fanOut(l *launchTask) {
	if l.grid < 1 || l.block < 1 {
		return
	}
	workers := min(q.dev.workers, l.grid)
	per := (l.grid + workers - 1) / workers

	var wg sync.WaitGroup
	for w := range workers {
		lo := w * per
		hi := min(lo+per, l.grid)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := lo; b < hi; b++ {
				for i := range l.block {
					l.body(workerThread{
						block:    b,
						index:    i,
						gridDim:  l.grid,
						blockDim: l.block,
						launch:   l,
						queue:    q,
					})
				}
			}
		}()
	}
	wg.Wait()
}

func (q *virtQueue) enqueue(it *queueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items <- it
	return nil
}

func (q *virtQueue) LaunchStage(st Stage, ln Launch, in, out Buffer) error {
	task, err := q.stageTask(st, ln, in, out)
	if err != nil {
		return err
	}
	return q.enqueue(&queueItem{launch: task})
}

func (q *virtQueue) LaunchChain(ln Launch, chain []StageLaunch) error {
	if !q.dev.info.DeviceLaunch {
		return fmt.Errorf("launch chain: %w", ErrUnsupported)
	}
	if len(chain) == 0 {
		return fmt.Errorf("launch chain: empty chain")
	}
	links := make([]*launchTask, len(chain))
	for i, sl := range chain {
		task, err := q.stageTask(sl.Stage, ln, sl.In, sl.Out)
		if err != nil {
			return fmt.Errorf("launch chain link %d: %w", i, err)
		}
		links[i] = task
	}
	bootstrap := &launchTask{
		name:  "bootstrap",
		grid:  1,
		block: 1,
		body: func(t workerThread) {
			if t.global() != 0 {
				return
			}
			for _, link := range links {
				if t.tailLaunch(link) != nil {
					return
				}
			}
		},
	}
	return q.enqueue(&queueItem{launch: bootstrap})
}

// stageTask validates one stage launch and builds its task. The checks
// here are the non-blocking launch-issue diagnostics: they fail the
// enqueue, never the queue.
func (q *virtQueue) stageTask(st Stage, ln Launch, in, out Buffer) (*launchTask, error) {
	if !st.valid() {
		return nil, fmt.Errorf("launch: invalid stage %d", st)
	}
	if ln.Grid < 1 {
		return nil, fmt.Errorf("launch %s: grid %d", st, ln.Grid)
	}
	if ln.Block < 1 || ln.Block > MaxBlock {
		return nil, fmt.Errorf("launch %s: block %d outside 1..%d", st, ln.Block, MaxBlock)
	}
	if ln.N < 1 {
		return nil, fmt.Errorf("launch %s: element count %d", st, ln.N)
	}
	dst, err := q.deviceSlice(out)
	if err != nil {
		return nil, fmt.Errorf("launch %s: output %w", st, err)
	}
	if ln.N > len(dst) {
		return nil, fmt.Errorf("launch %s: %d elements exceed output length %d", st, ln.N, len(dst))
	}
	var src []float32
	if st != Stage1 {
		if src, err = q.deviceSlice(in); err != nil {
			return nil, fmt.Errorf("launch %s: input %w", st, err)
		}
		if ln.N > len(src) {
			return nil, fmt.Errorf("launch %s: %d elements exceed input length %d", st, ln.N, len(src))
		}
		if in == out {
			return nil, fmt.Errorf("launch %s: input aliases output", st)
		}
	}
	return &launchTask{
		name:  st.String(),
		grid:  ln.Grid,
		block: ln.Block,
		body:  stageKernel(st, src, dst, ln),
	}, nil
}

// stageKernel is the modeled device program for one stage: a guarded
// elementwise application of the stage transform.
func stageKernel(st Stage, src, dst []float32, ln Launch) kernelFunc {
	n, scale := ln.N, ln.Scale
	return func(t workerThread) {
		i := t.global()
		if i >= n {
			return
		}
		var x float32
		if st != Stage1 {
			x = src[i]
		}
		dst[i] = Transform(st, x, i, scale)
	}
}

func (q *virtQueue) deviceSlice(b Buffer) ([]float32, error) {
	vb, ok := b.(*virtBuffer)
	if !ok || vb == nil {
		return nil, fmt.Errorf("buffer not resident on this device")
	}
	if vb.dev != q.dev {
		return nil, fmt.Errorf("buffer belongs to another device")
	}
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if vb.data == nil {
		return nil, fmt.Errorf("buffer already freed")
	}
	return vb.data, nil
}

func (q *virtQueue) Record() (Event, error) {
	ev := &virtEvent{done: make(chan struct{})}
	if err := q.enqueue(&queueItem{event: ev}); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	return ev, nil
}

func (q *virtQueue) Synchronize() error {
	done := make(chan struct{})
	if err := q.enqueue(&queueItem{sync: done}); err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}
	<-done
	return nil
}

// Close drains already-enqueued work, then stops the dispatcher.
func (q *virtQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()
	<-q.drained
	return nil
}

// workerThread identifies one kernel-body invocation and carries the
// device-side controls available to it.
type workerThread struct {
	block    int
	index    int
	gridDim  int
	blockDim int
	launch   *launchTask
	queue    *virtQueue
}

func (t workerThread) global() int { return t.block*t.blockDim + t.index }

// tailLaunch appends lt to the running launch's chain. The chain executes
// in append order after the current grid finishes; the enqueuing task is
// observed complete only once the chain is.
func (t workerThread) tailLaunch(lt *launchTask) error {
	if !t.queue.dev.info.DeviceLaunch {
		return fmt.Errorf("tail launch %s: %w", lt.name, ErrUnsupported)
	}
	if t.launch.depth+1 > maxLaunchDepth {
		return fmt.Errorf("tail launch %s: nesting depth %d exceeds %d", lt.name, t.launch.depth+1, maxLaunchDepth)
	}
	lt.depth = t.launch.depth + 1
	t.launch.tailMu.Lock()
	t.launch.tail = append(t.launch.tail, lt)
	t.launch.tailMu.Unlock()
	return nil
}

// virtEvent completes when the dispatcher reaches it, capturing the
// wall-clock time at that point.
type virtEvent struct {
	done chan struct{}
	at   time.Time
}

func (e *virtEvent) fire(at time.Time) {
	e.at = at
	close(e.done)
}

func (e *virtEvent) Wait() error {
	<-e.done
	return nil
}

func (e *virtEvent) Time() (time.Time, error) {
	select {
	case <-e.done:
		return e.at, nil
	default:
		return time.Time{}, ErrEventPending
	}
}
