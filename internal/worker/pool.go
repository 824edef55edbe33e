// Package worker runs fire-and-forget tasks with bounded concurrency.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task is one unit of background work. Its error is logged, never returned.
type Task func(ctx context.Context) error

// Pool runs tasks on at most `size` goroutines at once. Submitting never
// blocks the caller.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a pool; size below one is treated as one.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{sem: make(chan struct{}, size), logger: logger}
}

// Go schedules task. The task context keeps the caller's values but not its
// cancellation, since the work must outlive the request that caused it.
func (p *Pool) Go(ctx context.Context, name string, task Task, fields ...zap.Field) {
	taskCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background task panicked",
					append(fields, zap.String("task", name), zap.Any("panic", r))...)
			}
		}()

		if err := task(taskCtx); err != nil {
			p.logger.Warn("background task failed",
				append(fields, zap.String("task", name), zap.Error(err))...)
		}
	}()
}

// Wait blocks until every scheduled task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
