package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nimasrn/group-factory/pkg/logger"
)

var (
	ErrPoolStopped = errors.New("worker pool is stopped")
	ErrQueueFull   = errors.New("worker pool queue is full")
)

// Job is one unit of background work. The context is cancelled when the pool stops.
type Job func(ctx context.Context)

// Pool
// is a job manager based on go routines. Define the number of internal
// workers, and start submitting jobs using Submit(). Jobs are distributed
// among the workers in FIFO order. Stop() cancels the context handed to
// running jobs, waits for them to return and then hands every job still
// queued the cancelled context so it can record that it never ran.
type Pool struct {
	jobs           chan Job
	numberOfWorker int
	ctx            context.Context
	cancel         context.CancelFunc
	waiter         sync.WaitGroup
	mu             sync.RWMutex
	started        bool
	stopped        bool
}

func NewPool(bufferSize, numberOfWorkers int) *Pool {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:           make(chan Job, bufferSize),
		numberOfWorker: numberOfWorkers,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Start
// starts off the workers as many as defined
// by numberOfWorker. It does not block.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.waiter.Add(p.numberOfWorker)
	for i := 0; i < p.numberOfWorker; i++ {
		go p.run(i)
	}
	logger.Info("worker pool started", "workers", p.numberOfWorker, "buffer", cap(p.jobs))
}

func (p *Pool) run(index int) {
	defer p.waiter.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.execute(index, job)
		}
	}
}

func (p *Pool) execute(index int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker recovered from panic", "worker", index, "panic", fmt.Sprint(r))
		}
	}()
	job(p.ctx)
}

// Submit enqueues a job without blocking the caller.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels running jobs and waits for every worker to exit. Jobs still
// queued then run on the caller's goroutine with the cancelled context.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	logger.Info("worker pool is going to be shutdown", "pending", len(p.jobs))
	p.cancel()
	p.waiter.Wait()
	p.drain()
}

func (p *Pool) drain() {
	drained := 0
	for {
		select {
		case job := <-p.jobs:
			p.execute(-1, job)
			drained++
		default:
			if drained > 0 {
				logger.Info("worker pool drained queued jobs", "jobs", drained)
			}
			return
		}
	}
}
