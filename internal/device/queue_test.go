package device

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDevice(workers int, deviceLaunch bool) *virtDevice {
	return &virtDevice{
		workers: workers,
		info: Info{
			Name:         "test",
			Memory:       1 << 30,
			Workers:      workers,
			Compute:      "7.5",
			DeviceLaunch: deviceLaunch,
		},
	}
}

func markTask(name string, mu *sync.Mutex, order *[]string) *launchTask {
	return &launchTask{name: name, grid: 1, block: 1, body: func(th workerThread) {
		mu.Lock()
		*order = append(*order, name)
		mu.Unlock()
	}}
}

func TestQueueFIFO(t *testing.T) {
	q := newVirtQueue(newTestDevice(4, true))
	defer q.Close()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c", "d"} {
		if err := q.enqueue(&queueItem{launch: markTask(name, &mu, &order)}); err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if got := strings.Join(order, ""); got != "abcd" {
		t.Fatalf("execution order %q, want abcd", got)
	}
}

func TestQueueFanOutCoversGrid(t *testing.T) {
	q := newVirtQueue(newTestDevice(3, true))
	defer q.Close()

	const grid, block = 17, 8
	hits := make([]atomic.Int32, grid*block)
	task := &launchTask{name: "cover", grid: grid, block: block, body: func(th workerThread) {
		hits[th.global()].Add(1)
	}}
	if err := q.enqueue(&queueItem{launch: task}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	for i := range hits {
		if got := hits[i].Load(); got != 1 {
			t.Fatalf("thread %d ran %d times, want once", i, got)
		}
	}
}

func TestEventOrderAndTimes(t *testing.T) {
	q := newVirtQueue(newTestDevice(2, true))
	defer q.Close()

	slow := &launchTask{name: "slow", grid: 1, block: 1, body: func(th workerThread) {
		time.Sleep(20 * time.Millisecond)
	}}

	start, err := q.Record()
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	if err := q.enqueue(&queueItem{launch: slow}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	end, err := q.Record()
	if err != nil {
		t.Fatalf("record end: %v", err)
	}
	if err := end.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	t0, err := start.Time()
	if err != nil {
		t.Fatalf("start time: %v", err)
	}
	t1, err := end.Time()
	if err != nil {
		t.Fatalf("end time: %v", err)
	}
	if d := t1.Sub(t0); d < 20*time.Millisecond {
		t.Fatalf("event pair spans %v, want at least the launch duration", d)
	}
}

func TestEventPendingBeforeReached(t *testing.T) {
	q := newVirtQueue(newTestDevice(1, true))
	defer q.Close()

	release := make(chan struct{})
	gate := &launchTask{name: "gate", grid: 1, block: 1, body: func(th workerThread) {
		<-release
	}}
	if err := q.enqueue(&queueItem{launch: gate}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ev, err := q.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := ev.Time(); !errors.Is(err, ErrEventPending) {
		t.Fatalf("Time before completion: %v, want ErrEventPending", err)
	}
	close(release)
	if err := ev.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if _, err := ev.Time(); err != nil {
		t.Fatalf("Time after completion: %v", err)
	}
}

func TestTailChainCompletesBeforeNextItem(t *testing.T) {
	q := newVirtQueue(newTestDevice(4, true))
	defer q.Close()

	var done atomic.Bool
	inner := &launchTask{name: "inner", grid: 1, block: 1, body: func(th workerThread) {
		time.Sleep(10 * time.Millisecond)
		done.Store(true)
	}}
	boot := &launchTask{name: "boot", grid: 1, block: 1, body: func(th workerThread) {
		if err := th.tailLaunch(inner); err != nil {
			t.Errorf("tail launch: %v", err)
		}
	}}
	if err := q.enqueue(&queueItem{launch: boot}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ev, err := q.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ev.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !done.Load() {
		t.Fatal("event fired before the tail chain finished")
	}
}

func TestTailChainRunsInAppendOrder(t *testing.T) {
	q := newVirtQueue(newTestDevice(4, true))
	defer q.Close()

	var mu sync.Mutex
	var order []string
	boot := &launchTask{name: "boot", grid: 1, block: 1, body: func(th workerThread) {
		for _, name := range []string{"s1", "s2", "s3", "s4"} {
			if err := th.tailLaunch(markTask(name, &mu, &order)); err != nil {
				t.Errorf("tail launch %s: %v", name, err)
				return
			}
		}
	}}
	if err := q.enqueue(&queueItem{launch: boot}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if got := strings.Join(order, " "); got != "s1 s2 s3 s4" {
		t.Fatalf("chain order %q, want s1 s2 s3 s4", got)
	}
}

func TestSingleThreadIssuesChain(t *testing.T) {
	q := newVirtQueue(newTestDevice(8, true))
	defer q.Close()

	var ran atomic.Int32
	inner := &launchTask{name: "inner", grid: 2, block: 3, body: func(th workerThread) {
		ran.Add(1)
	}}
	// Wide bootstrap geometry with the same guard the chain launcher
	// uses: only global thread 0 may enqueue.
	boot := &launchTask{name: "boot", grid: 4, block: 8, body: func(th workerThread) {
		if th.global() != 0 {
			return
		}
		if err := th.tailLaunch(inner); err != nil {
			t.Errorf("tail launch: %v", err)
		}
	}}
	if err := q.enqueue(&queueItem{launch: boot}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if got := ran.Load(); got != 6 {
		t.Fatalf("inner grid ran %d threads, want 6 (launched once)", got)
	}
}

func TestTailLaunchDepthCap(t *testing.T) {
	q := newVirtQueue(newTestDevice(2, true))
	defer q.Close()

	var deepest atomic.Int32
	var mk func() *launchTask
	mk = func() *launchTask {
		return &launchTask{name: "rec", grid: 1, block: 1, body: func(th workerThread) {
			if err := th.tailLaunch(mk()); err != nil {
				deepest.Store(int32(th.launch.depth))
			}
		}}
	}
	if err := q.enqueue(&queueItem{launch: mk()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if got := deepest.Load(); got != maxLaunchDepth {
		t.Fatalf("recursion stopped at depth %d, want %d", got, maxLaunchDepth)
	}
}

func TestTailLaunchRequiresCapability(t *testing.T) {
	q := newVirtQueue(newTestDevice(2, false))
	defer q.Close()

	var tailErr error
	boot := &launchTask{name: "boot", grid: 1, block: 1, body: func(th workerThread) {
		tailErr = th.tailLaunch(&launchTask{name: "inner", grid: 1, block: 1, body: func(workerThread) {}})
	}}
	if err := q.enqueue(&queueItem{launch: boot}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if !errors.Is(tailErr, ErrUnsupported) {
		t.Fatalf("tail launch on incapable device: %v, want ErrUnsupported", tailErr)
	}
}

func TestLaunchStageValidation(t *testing.T) {
	dev := newTestDevice(2, true)
	q := newVirtQueue(dev)
	defer q.Close()

	a, err := dev.NewBuffer(64)
	if err != nil {
		t.Fatalf("buffer a: %v", err)
	}
	b, err := dev.NewBuffer(64)
	if err != nil {
		t.Fatalf("buffer b: %v", err)
	}
	small, err := dev.NewBuffer(8)
	if err != nil {
		t.Fatalf("buffer small: %v", err)
	}
	ok := Launch{Grid: 2, Block: 32, N: 64, Scale: 1}

	tests := []struct {
		name string
		st   Stage
		ln   Launch
		in   Buffer
		out  Buffer
		frag string
	}{
		{"invalid stage", Stage(9), ok, a, b, "invalid stage"},
		{"zero grid", Stage2, Launch{Grid: 0, Block: 32, N: 64}, a, b, "grid"},
		{"zero block", Stage2, Launch{Grid: 2, Block: 0, N: 64}, a, b, "block"},
		{"oversized block", Stage2, Launch{Grid: 2, Block: MaxBlock + 1, N: 64}, a, b, "block"},
		{"zero n", Stage2, Launch{Grid: 2, Block: 32, N: 0}, a, b, "element count"},
		{"output too small", Stage1, ok, nil, small, "output length"},
		{"input too small", Stage3, ok, small, b, "input length"},
		{"missing input", Stage2, ok, nil, b, "input"},
		{"aliased buffers", Stage4, ok, a, a, "aliases"},
		{"missing output", Stage1, ok, nil, nil, "output"},
	}
	for _, tt := range tests {
		err := q.LaunchStage(tt.st, tt.ln, tt.in, tt.out)
		if err == nil {
			t.Fatalf("%s: launch accepted", tt.name)
		}
		if !strings.Contains(err.Error(), tt.frag) {
			t.Fatalf("%s: error %q missing %q", tt.name, err, tt.frag)
		}
	}

	// The queue survives rejected launches.
	if err := q.LaunchStage(Stage1, ok, nil, a); err != nil {
		t.Fatalf("valid launch after rejections: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
}

func TestLaunchStageComputes(t *testing.T) {
	dev := newTestDevice(4, true)
	q := newVirtQueue(dev)
	defer q.Close()

	const n = 100
	a, _ := dev.NewBuffer(n)
	b, _ := dev.NewBuffer(n)
	ln := Launch{Grid: (n + 31) / 32, Block: 32, N: n, Scale: 2}

	if err := q.LaunchStage(Stage1, ln, nil, a); err != nil {
		t.Fatalf("stage1: %v", err)
	}
	if err := q.LaunchStage(Stage2, ln, a, b); err != nil {
		t.Fatalf("stage2: %v", err)
	}
	if err := q.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}

	got := make([]float32, n)
	if err := b.CopyToHost(got); err != nil {
		t.Fatalf("copy: %v", err)
	}
	for i := range n {
		want := Transform(Stage2, Transform(Stage1, 0, i, 2), i, 2)
		if got[i] != want {
			t.Fatalf("element %d: got %v want %v", i, got[i], want)
		}
	}
}

func TestLaunchChainUnsupported(t *testing.T) {
	dev := newTestDevice(2, false)
	q := newVirtQueue(dev)
	defer q.Close()

	a, _ := dev.NewBuffer(8)
	b, _ := dev.NewBuffer(8)
	chain := []StageLaunch{{Stage: Stage1, Out: a}, {Stage: Stage2, In: a, Out: b}}
	err := q.LaunchChain(Launch{Grid: 1, Block: 8, N: 8}, chain)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("chain on incapable device: %v, want ErrUnsupported", err)
	}
}

func TestLaunchChainEmpty(t *testing.T) {
	q := newVirtQueue(newTestDevice(2, true))
	defer q.Close()
	if err := q.LaunchChain(Launch{Grid: 1, Block: 1, N: 1}, nil); err == nil {
		t.Fatal("empty chain accepted")
	}
}

func TestQueueClosed(t *testing.T) {
	q := newVirtQueue(newTestDevice(2, true))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := q.enqueue(&queueItem{sync: make(chan struct{})}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close: %v, want ErrQueueClosed", err)
	}
	if _, err := q.Record(); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("record after close: %v, want ErrQueueClosed", err)
	}
	if err := q.Synchronize(); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("synchronize after close: %v, want ErrQueueClosed", err)
	}
}

func BenchmarkLaunchStage(b *testing.B) {
	dev := newTestDevice(4, true)
	q := newVirtQueue(dev)
	defer q.Close()

	const n = 1024
	buf, err := dev.NewBuffer(n)
	if err != nil {
		b.Fatalf("buffer: %v", err)
	}
	ln := Launch{Grid: n / 256, Block: 256, N: n, Scale: 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := q.LaunchStage(Stage1, ln, nil, buf); err != nil {
			b.Fatalf("launch: %v", err)
		}
	}
	if err := q.Synchronize(); err != nil {
		b.Fatalf("synchronize: %v", err)
	}
}

func TestCloseDrainsPendingItems(t *testing.T) {
	q := newVirtQueue(newTestDevice(1, true))

	release := make(chan struct{})
	gate := &launchTask{name: "gate", grid: 1, block: 1, body: func(th workerThread) {
		<-release
	}}
	if err := q.enqueue(&queueItem{launch: gate}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ev, err := q.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	close(release)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close returns only after the dispatcher drained the queue, so the
	// event must have fired.
	if _, err := ev.Time(); err != nil {
		t.Fatalf("event after close: %v", err)
	}
}
