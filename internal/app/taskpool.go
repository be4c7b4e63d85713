package app

import (
	"context"
	"fmt"
	"sync"

	"volumeSpikeBot/internal/adapters/metrics"
	"volumeSpikeBot/internal/ports"
)

// Task is a best-effort side effect such as a ledger append or an alert.
type Task func(ctx context.Context)

type namedTask struct {
	name string
	fn   Task
}

// TaskPool runs side effects on a fixed number of goroutines behind a bounded queue.
// Submitting to a full queue drops the task.
type TaskPool struct {
	logger  ports.Logger
	metrics *metrics.Metrics
	tasks   chan namedTask
	wg      sync.WaitGroup

	mu     sync.RWMutex // Guards closed against concurrent Submit/Close
	closed bool
}

// NewTaskPool starts workers goroutines. Tasks run with a context detached from
// ctx's cancellation so queued work still drains on shutdown.
func NewTaskPool(ctx context.Context, workers, queueSize int, logger ports.Logger, m *metrics.Metrics) *TaskPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &TaskPool{
		logger:  logger,
		metrics: m,
		tasks:   make(chan namedTask, queueSize),
	}
	taskCtx := context.WithoutCancel(ctx)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(taskCtx)
	}
	return p
}

func (p *TaskPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(ctx, t)
	}
}

func (p *TaskPool) run(ctx context.Context, t namedTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Recovered from panic in background task", map[string]interface{}{"task": t.name})
		}
	}()
	t.fn(ctx)
}

// Submit queues fn without blocking. It reports false when the task was dropped.
func (p *TaskPool) Submit(name string, fn Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn(context.Background(), "Task submitted after shutdown, dropping", map[string]interface{}{"task": name})
		p.metrics.TaskDropped()
		return false
	}
	select {
	case p.tasks <- namedTask{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn(context.Background(), "Task queue full, dropping task", map[string]interface{}{"task": name, "capacity": cap(p.tasks)})
		p.metrics.TaskDropped()
		return false
	}
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (p *TaskPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
