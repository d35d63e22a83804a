// Package taskrunner is the cooperative task runtime every swap's state
// machine and its update forwarder run on (btsieve polls and peer I/O
// run in their own goroutines): a fixed pool
// of goroutines draining one shared queue, which gives every idle worker
// an equal shot at the next runnable task (same effect as work-stealing
// for a queue this shape, without a per-worker deque).
package taskrunner

import (
	"context"
	"sync"

	"github.com/klingon-exchange/cnd/pkg/logging"
)

// Task is a unit of cooperative work. It must not perform blocking
// syscalls directly; I/O goes through context-aware calls that yield to
// the runtime at suspension points (latest-block polls, receipt
// lookups, the peer response channel, inter-task event channels).
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool draining a single shared queue.
type Pool struct {
	queue chan Task
	wg    sync.WaitGroup
	log   *logging.Logger

	cancel context.CancelFunc
}

// NewPool starts workers goroutines, each pulling tasks off a shared
// queue of the given depth until the pool is stopped.
func NewPool(ctx context.Context, workers, queueDepth int) *Pool {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		queue:  make(chan Task, queueDepth),
		log:    logging.GetDefault().Component("taskrunner"),
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(ctx, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "recover", r)
		}
	}()
	task(ctx)
}

// Submit enqueues a task, blocking if the queue is full. Submitting
// after Stop has no effect: the task is silently dropped, mirroring
// "dropping the spawned task aborts its event subscriptions."
func (p *Pool) Submit(task Task) {
	defer func() { recover() }() // queue may already be closed by Stop
	p.queue <- task
}

// Stop cancels every running task's context and waits for workers to
// drain in-flight work; outstanding RPC calls complete or error out and
// their results are discarded.
func (p *Pool) Stop() {
	p.cancel()
	close(p.queue)
	p.wg.Wait()
}
