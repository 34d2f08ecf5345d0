package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const taskTimeout = 10 * time.Second

type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Queue runs background writes (cloud saves, result recording) off the
// mutation path. Failed tasks are logged and dropped.
type Queue struct {
	tasks chan Task
	log   *zap.Logger
}

func NewQueue(size int, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{tasks: make(chan Task, size), log: log}
}

// Submit enqueues t without blocking. It reports false when the queue is full.
func (q *Queue) Submit(t Task) bool {
	select {
	case q.tasks <- t:
		return true
	default:
		q.log.Warn("task queue full, dropping task", zap.String("task", t.Name))
		return false
	}
}

// Run processes tasks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-q.tasks:
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(parent context.Context, t Task) {
	ctx, cancel := context.WithTimeout(parent, taskTimeout)
	defer cancel()
	if err := t.Fn(ctx); err != nil {
		q.log.Warn("background task failed", zap.String("task", t.Name), zap.Error(err))
	}
}

// Flush blocks until every task submitted before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case q.tasks <- Task{Name: "flush", Fn: func(context.Context) error { close(done); return nil }}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
