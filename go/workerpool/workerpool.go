// Package workerpool provides a simple fixed-size pool of worker goroutines.
package workerpool

import (
	"sync"
)

// Pool runs submitted functions on a fixed number of worker goroutines. Once
// Wait() has been called the pool is finished and may not be reused.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	done  bool
	mtx   sync.Mutex
}

// New returns a Pool which runs tasks on the given number of goroutines.
func New(workers int) *Pool {
	p := &Pool{
		tasks: make(chan func()),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Go submits a task to the pool. It blocks until a worker is available to
// accept the task. Go panics if called after Wait().
func (p *Pool) Go(task func()) {
	p.mtx.Lock()
	if p.done {
		p.mtx.Unlock()
		panic("workerpool.Pool may not be used after Wait()")
	}
	p.mtx.Unlock()
	p.tasks <- task
}

// Wait blocks until all submitted tasks have finished. The pool may not be
// used afterward; Wait panics if called twice.
func (p *Pool) Wait() {
	p.mtx.Lock()
	if p.done {
		p.mtx.Unlock()
		panic("workerpool.Pool may not be used after Wait()")
	}
	p.done = true
	p.mtx.Unlock()
	close(p.tasks)
	p.wg.Wait()
}
