package lmdbstore

import (
	"context"
	"runtime"
	"sync"
)

// task runs on a worker; shard is the worker's lock shard.
type task func(shard int)

// workerPool is a fixed set of goroutines draining one FIFO queue.
// Submitted tasks always run to completion, even if the submitter stops waiting.
type workerPool struct {
	jobs chan task
	wg   sync.WaitGroup
	// pinned workers hold runtime.LockOSThread for their whole life.
	pinned bool
}

// newWorkerPool starts workers goroutines using shards firstShard..firstShard+workers-1.
// lockThread pins each worker to an OS thread for engines with thread-affine write transactions.
func newWorkerPool(workers, queueCapacity, firstShard int, lockThread bool) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = workers * 64
	}
	p := &workerPool{jobs: make(chan task, queueCapacity), pinned: lockThread}
	for i := 0; i < workers; i++ {
		shard := firstShard + i
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if lockThread {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
			}
			for t := range p.jobs {
				t(shard)
			}
		}()
	}
	return p
}

// submit enqueues t, giving up only if ctx ends before the queue has room.
func (p *workerPool) submit(ctx context.Context, t task) error {
	select {
	case p.jobs <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *workerPool) depth() int { return len(p.jobs) }

// stop closes the queue and waits for queued tasks to finish. No submit may follow.
func (p *workerPool) stop() {
	close(p.jobs)
	p.wg.Wait()
}
