// internal/fetch/executor.go
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/metrics"
)

// Executor runs planned tasks concurrently, one goroutine each, and joins
// before returning. A failed or panicking task is recorded as unavailable
// for its capability and never aborts siblings: the assembler sees a
// complete result set, with gaps.
type Executor struct {
	fetchers map[Capability]Fetcher
	logger   logger.Logger
}

func NewExecutor(fetchers map[Capability]Fetcher, log logger.Logger) *Executor {
	return &Executor{
		fetchers: fetchers,
		logger: log.With(map[string]interface{}{
			"component": "executor",
		}),
	}
}

func (e *Executor) Execute(ctx context.Context, tasks []Task) Results {
	results := make(Results, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()

			data, err := e.runOne(ctx, t)

			mu.Lock()
			results[t.Capability] = Result{Data: data, Err: err}
			mu.Unlock()
		}(task)
	}

	wg.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, t Task) (data map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panic: %v", r)
			e.logger.Error("fetch task panicked", map[string]interface{}{
				"capability": string(t.Capability),
				"panic":      fmt.Sprintf("%v", r),
			})
		}
	}()

	fetcher, ok := e.fetchers[t.Capability]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for capability %q", t.Capability)
	}

	metrics.FetchTasksExecuted.WithLabelValues(string(t.Capability)).Inc()

	data, err = fetcher.Fetch(ctx, t)
	if err != nil {
		metrics.FetchTasksFailed.WithLabelValues(string(t.Capability)).Inc()
		fields := map[string]interface{}{
			"capability": string(t.Capability),
			"error":      err.Error(),
		}
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			fields["category"] = apperrors.GetErrorCategory(stdErr.Code)
			fields["retryable"] = apperrors.IsRetryableErrorCode(stdErr.Code)
		}
		e.logger.Warn("fetch task failed, capability unavailable", fields)
		return nil, err
	}

	return data, nil
}
