package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type StartOptions[J any] struct {
	Ctx         context.Context
	Concurrency int
	Jobs        <-chan J
	Handle      func(context.Context, J)
	Logger      *slog.Logger
}

// Start consumes Jobs until the channel is closed or Ctx is done, running at
// most Concurrency handlers at once. A panicking handler is logged and does
// not take the pool down. The returned func blocks until every started
// handler has returned.
func Start[J any](opts StartOptions[J]) (wait func()) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case job, ok := <-opts.Jobs:
				if !ok {
					return
				}
				select {
				case sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					defer func() {
						if r := recover(); r != nil {
							logger.Error("worker_handler_panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
						}
					}()
					opts.Handle(opts.Ctx, job)
				}()
			}
		}
	}()

	return func() {
		<-done
		wg.Wait()
	}
}

func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}
