package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
)

// Ошибки локальной очереди.
var (
	ErrQueueFull   = errors.New("analysis queue is full")
	ErrQueueClosed = errors.New("analysis queue is closed")
)

// Processor обрабатывает одну задачу.
type Processor interface {
	Process(ctx context.Context, task Task) error
}

// LocalQueue - пул исполнителей внутри процесса с ограниченной очередью.
type LocalQueue struct {
	tasks  chan Task
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewLocalQueue создаёт очередь ёмкостью size.
func NewLocalQueue(size int, log *slog.Logger) *LocalQueue {
	if size <= 0 {
		size = 1
	}
	return &LocalQueue{
		tasks: make(chan Task, size),
		log:   log,
	}
}

// Start запускает workers исполнителей. ctx передаётся в каждый вызов Process.
func (q *LocalQueue) Start(ctx context.Context, workers int, p Processor) {
	if workers <= 0 {
		workers = 1
	}
	for i := range workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				if err := p.Process(ctx, task); err != nil {
					q.log.Warn("task processing failed",
						slog.Int("worker", i),
						slog.String("job_id", task.JobID),
						sl.Err(err),
					)
				}
			}
		}()
	}
}

// Dispatch ставит задачу в очередь, не блокируясь. При заполненной очереди возвращает ErrQueueFull.
func (q *LocalQueue) Dispatch(ctx context.Context, task Task) error {
	const op = "analysis.LocalQueue.Dispatch"
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("%s: %w", op, ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%s: %w", op, ErrQueueFull)
	}
}

// Close перестаёт принимать задачи и ждёт, пока исполнители разберут очередь.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
