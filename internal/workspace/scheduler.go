package workspace

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/types"
)

// Scheduler debounces validation requests per root. Scheduling a root again
// cancels its running validation; a cancelled run publishes nothing.
type Scheduler struct {
	run func(ctx context.Context, root types.FileID) error

	// Debounce settings
	debounceTime time.Duration
	workers      int
	timer        *time.Timer
	mu           sync.Mutex
	closed       bool

	// Roots waiting for the timer
	pending map[types.FileID]bool
	// Cancel functions of running validations
	running map[types.FileID]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Optional callback for test synchronization
	onBatchComplete func()
}

// NewScheduler creates a scheduler running run for each due root, at most
// workers at a time
func NewScheduler(run func(ctx context.Context, root types.FileID) error, debounceMs, workers int) *Scheduler {
	if debounceMs <= 0 {
		debounceMs = 50
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:          run,
		debounceTime: time.Duration(debounceMs) * time.Millisecond,
		workers:      workers,
		pending:      make(map[types.FileID]bool),
		running:      make(map[types.FileID]context.CancelFunc),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Schedule queues root and restarts the debounce timer
func (sc *Scheduler) Schedule(root types.FileID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}

	sc.pending[root] = true
	if cancel, ok := sc.running[root]; ok {
		cancel()
		delete(sc.running, root)
	}

	if sc.timer != nil {
		sc.timer.Stop()
	}
	sc.timer = time.AfterFunc(sc.debounceTime, sc.fire)

	debug.LogValidate("scheduled validation of %d (pending: %d)\n", root, len(sc.pending))
}

// Cancel drops root from the queue and stops its running validation
func (sc *Scheduler) Cancel(root types.FileID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.pending, root)
	if cancel, ok := sc.running[root]; ok {
		cancel()
		delete(sc.running, root)
	}
}

func (sc *Scheduler) fire() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.wg.Add(1)
	sc.mu.Unlock()
	defer sc.wg.Done()
	sc.Flush()
}

// Flush validates every pending root now and waits for the batch
func (sc *Scheduler) Flush() {
	sc.mu.Lock()
	if sc.timer != nil {
		sc.timer.Stop()
	}
	roots := make([]types.FileID, 0, len(sc.pending))
	ctxs := make(map[types.FileID]context.Context, len(sc.pending))
	for root := range sc.pending {
		ctx, cancel := context.WithCancel(sc.ctx)
		sc.running[root] = cancel
		ctxs[root] = ctx
		roots = append(roots, root)
	}
	sc.pending = make(map[types.FileID]bool)
	callback := sc.onBatchComplete
	sc.mu.Unlock()

	if len(roots) == 0 {
		return
	}

	debug.LogValidate("validating %d roots\n", len(roots))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(sc.workers)
	for _, root := range roots {
		root, ctx := root, ctxs[root]
		g.Go(func() error {
			defer sc.finish(root, ctx)
			if err := sc.run(ctx, root); err != nil {
				debug.LogValidate("validation of %d: %v\n", root, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	debug.LogValidate("validated %d roots in %v\n", len(roots), time.Since(start))
	if callback != nil {
		callback()
	}
}

// finish forgets the cancel func of a run unless a newer run replaced it
func (sc *Scheduler) finish(root types.FileID, ctx context.Context) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if cancel, ok := sc.running[root]; ok {
		cancel()
		delete(sc.running, root)
	}
}

// PendingCount returns the number of roots waiting for the timer
func (sc *Scheduler) PendingCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.pending)
}

// SetOnBatchComplete sets a callback invoked after each batch (for testing)
func (sc *Scheduler) SetOnBatchComplete(callback func()) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onBatchComplete = callback
}

// Shutdown cancels running validations and waits for them
func (sc *Scheduler) Shutdown() {
	sc.mu.Lock()
	sc.closed = true
	if sc.timer != nil {
		sc.timer.Stop()
	}
	sc.pending = make(map[types.FileID]bool)
	sc.mu.Unlock()

	sc.cancel()
	sc.wg.Wait()
}
