package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/pkg/models"
)

// Completion is the outcome of one task execution, delivered on the pool's
// completion channel. Exactly one of Result and Err is set.
type Completion struct {
	TaskID string
	Result *models.Result
	Err    error
}

// PoolConfig contains configuration options for the Pool.
type PoolConfig struct {
	// Executor runs individual tasks.
	Executor executor.Executor
	// Workers is the number of concurrent workers. Defaults to 4.
	Workers int
	// TaskTimeout bounds a single execution. Zero means no timeout.
	TaskTimeout time.Duration
	// OnStart is called from the worker goroutine when execution begins.
	OnStart func(taskID string)
}

type job struct {
	ctx context.Context
	req executor.Request
}

// Pool is a bounded worker pool executing tasks with per-task cancellation.
// Submissions beyond the worker count queue until a worker frees up.
type Pool struct {
	cfg PoolConfig

	jobs        chan job
	completions chan Completion

	// cancels tracks the per-task cancel functions of queued and running work.
	cancels map[string]context.CancelFunc
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool. Call Start before submitting work.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		cfg:         cfg,
		jobs:        make(chan job, cfg.Workers*2),
		completions: make(chan Completion, cfg.Workers*3),
		cancels:     make(map[string]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit queues a task for execution. The task gets its own cancellable
// context so a single execution can be stopped without touching the rest of
// the pool.
func (p *Pool) Submit(t *models.Task) error {
	var taskCtx context.Context
	var taskCancel context.CancelFunc
	if p.cfg.TaskTimeout > 0 {
		taskCtx, taskCancel = context.WithTimeout(p.ctx, p.cfg.TaskTimeout)
	} else {
		taskCtx, taskCancel = context.WithCancel(p.ctx)
	}

	p.mu.Lock()
	p.cancels[t.ID] = taskCancel
	p.mu.Unlock()

	j := job{
		ctx: taskCtx,
		req: executor.Request{
			TaskID:     t.ID,
			Type:       t.Type,
			Params:     t.Params,
			DataHandle: t.DataHandle,
		},
	}

	select {
	case p.jobs <- j:
		return nil
	case <-p.ctx.Done():
		p.remove(t.ID)
		return p.ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.jobs:
			if p.cfg.OnStart != nil {
				p.cfg.OnStart(j.req.TaskID)
			}

			result, err := p.cfg.Executor.Execute(j.ctx, j.req)
			p.remove(j.req.TaskID)

			// The buffer covers every task the pool can hold, so this
			// normally never blocks; outcomes of cancelled executions are
			// delivered too and remain readable after Stop.
			comp := Completion{TaskID: j.req.TaskID, Result: result, Err: err}
			select {
			case p.completions <- comp:
			default:
				select {
				case p.completions <- comp:
				case <-p.ctx.Done():
					return
				}
			}
		}
	}
}

func (p *Pool) remove(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.cancels[taskID]; ok {
		cancel()
		delete(p.cancels, taskID)
	}
}

// Cancel stops a queued or running task. Returns false if the task is not
// in flight.
func (p *Pool) Cancel(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[taskID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Contains reports whether a task is queued or running.
func (p *Pool) Contains(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cancels[taskID]
	return ok
}

// Inflight returns the number of queued and running tasks.
func (p *Pool) Inflight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

// Completions returns the channel of execution outcomes.
func (p *Pool) Completions() <-chan Completion {
	return p.completions
}

// Stop cancels all in-flight work and waits for the workers to exit.
// Completions already delivered remain readable after Stop.
func (p *Pool) Stop() {
	p.mu.Lock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
