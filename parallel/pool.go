package parallel

import "sync"

// Pool is a free list of reusable objects. It is not safe for concurrent use; see
// LockingPool for the variant shared between tasks.
type Pool[T any] struct {
	free  []*T
	newFn func() *T
	reset func(*T)

	created int
}

// NewPool builds a pool. newFn may be nil, in which case new(T) is used; reset runs on
// every object handed back and may also be nil.
func NewPool[T any](newFn func() *T, reset func(*T)) *Pool[T] {
	if newFn == nil {
		newFn = func() *T { return new(T) }
	}
	return &Pool[T]{newFn: newFn, reset: reset}
}

// Take pops a free object or grows the pool.
func (p *Pool[T]) Take() *T {
	if n := len(p.free); n > 0 {
		item := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return item
	}
	p.created++
	return p.newFn()
}

func (p *Pool[T]) GiveBack(item *T) {
	if item == nil {
		return
	}
	if p.reset != nil {
		p.reset(item)
	}
	p.free = append(p.free, item)
}

// Free returns the number of idle objects.
func (p *Pool[T]) Free() int { return len(p.free) }

// Created returns how many objects the pool ever allocated.
func (p *Pool[T]) Created() int { return p.created }

// LockingPool guards a Pool with a mutex so tasks can share it.
type LockingPool[T any] struct {
	mu   sync.Mutex
	pool *Pool[T]
}

func NewLockingPool[T any](newFn func() *T, reset func(*T)) *LockingPool[T] {
	return &LockingPool[T]{pool: NewPool(newFn, reset)}
}

func (p *LockingPool[T]) Take() *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.Take()
}

func (p *LockingPool[T]) GiveBack(item *T) {
	p.mu.Lock()
	p.pool.GiveBack(item)
	p.mu.Unlock()
}

func (p *LockingPool[T]) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.Free()
}
