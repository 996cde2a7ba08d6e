// Package workers runs detached background tasks with bounded concurrency.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrPoolClosed = errors.New("worker pool shut down")

// Task is a unit of background work. The context is cancelled when the pool is shut down.
type Task func(ctx context.Context)

// Pool executes submitted tasks on goroutines, at most `size` at a time.
// Submit never blocks the caller; tasks wait for a slot inside their own goroutine.
type Pool struct {
	sem    chan struct{}
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(size int, log zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    make(chan struct{}, size),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules fn and returns immediately.
func (p *Pool) Submit(name string, fn Task) error {
	return p.SubmitWithDrop(name, fn, nil)
}

// SubmitWithDrop is Submit with a callback for the case where fn never gets a slot
// because the pool shut down first. dropped receives ErrPoolClosed.
func (p *Pool) SubmitWithDrop(name string, fn Task, dropped func(error)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			p.log.Warn().Str("task", name).Msg("task dropped, pool shutting down")
			if dropped != nil {
				dropped(ErrPoolClosed)
			}
			return
		}
		defer func() { <-p.sem }()

		p.run(name, fn)
	}()
	return nil
}

func (p *Pool) run(name string, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Str("task", name).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("background task panicked")
		}
	}()
	fn(p.ctx)
}

// Wait blocks until every submitted task, including tasks submitted by running tasks, has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting work and waits up to timeout for running tasks.
// Tasks still running after the timeout see their context cancelled.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}
