// Package parallel provides the task scheduler abstraction used by the broad phase,
// the narrow phase and the character update, along with free-list object pools.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Scheduler runs queued tasks and blocks on a barrier until they complete. Components
// never start goroutines of their own; they go through a Scheduler.
type Scheduler interface {
	EnqueueTask(task func(state any), state any)
	WaitForTaskCompletion()
	ThreadCount() int
}

// TaskPool is a Scheduler backed by a bounded errgroup.
type TaskPool struct {
	threads int
	group   errgroup.Group
}

// NewTaskPool creates a pool running at most threads tasks at once. Zero or a negative
// value picks GOMAXPROCS.
func NewTaskPool(threads int) *TaskPool {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	p := &TaskPool{threads: threads}
	p.group.SetLimit(threads)
	return p
}

// EnqueueTask blocks while the pool is saturated. Tasks must not enqueue further tasks.
func (p *TaskPool) EnqueueTask(task func(state any), state any) {
	p.group.Go(func() error {
		task(state)
		return nil
	})
}

func (p *TaskPool) WaitForTaskCompletion() {
	_ = p.group.Wait()
}

func (p *TaskPool) ThreadCount() int {
	return p.threads
}

// InlineScheduler runs every task synchronously on the caller's goroutine.
type InlineScheduler struct{}

func (InlineScheduler) EnqueueTask(task func(state any), state any) { task(state) }
func (InlineScheduler) WaitForTaskCompletion()                      {}
func (InlineScheduler) ThreadCount() int                            { return 1 }

// For runs body for every index in [0, n), spreading contiguous chunks over the scheduler
// and returning after the barrier.
func For(s Scheduler, n int, body func(i int)) {
	if n == 0 {
		return
	}
	threads := s.ThreadCount()
	if threads <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			body(i)
		}
		return
	}
	chunk := (n + threads - 1) / threads
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		s.EnqueueTask(func(any) {
			for i := start; i < end; i++ {
				body(i)
			}
		}, nil)
	}
	s.WaitForTaskCompletion()
}
