// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package executor runs tasks through a bounded-concurrency priority
// queue with per-task timeout, retry with exponential backoff, and
// metrics broadcast to subscribers after every completion.
package executor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	// DefaultConcurrency is used when the config leaves MaxConcurrency zero.
	DefaultConcurrency = 5

	// MinConcurrency and MaxConcurrency bound SetConcurrency.
	MinConcurrency = 1
	MaxConcurrency = 20
)

// backoffBase controls the base duration for retry backoff: the delay
// before attempt n is 2^(n-1) * backoffBase. Tests override this to
// avoid real sleeps.
var backoffBase = 200 * time.Millisecond

// Worker computes one result from one input.
type Worker[T, R any] func(ctx context.Context, input T) (R, error)

// Options tunes one submission.
type Options struct {
	// Priority orders tasks in the queue; higher dequeues first.
	Priority int

	// Retries is how many times a failing task is re-run before its
	// error is surfaced.
	Retries int

	// Timeout bounds a single attempt; zero means no per-attempt limit.
	Timeout time.Duration

	// OnProgress, when set, is called after each task completes with the
	// number completed so far and the submission total.
	OnProgress func(completed, total int)
}

// TaskError ties a failed input to its error.
type TaskError struct {
	// Index is the input's position in the submitted slice.
	Index int

	// ID is the failed task's identifier.
	ID string

	// Err is the surfaced error (the worker's own error once retries are
	// exhausted).
	Err error
}

func (e TaskError) Error() string { return fmt.Sprintf("task %s (input %d): %v", e.ID, e.Index, e.Err) }

func (e TaskError) Unwrap() error { return e.Err }

// Results holds the outcome of an ExecuteAll call. Results is indexed
// like the input slice; entries for failed inputs hold the zero value
// and appear in Errors instead.
type Results[R any] struct {
	Results []R
	Errors  []TaskError
}

// task is one queued unit of work.
type task[T, R any] struct {
	id       string
	index    int
	priority int
	seq      uint64
	input    T
	worker   Worker[T, R]
	retries  int
	timeout  time.Duration
	ctx      context.Context
	done     func(id string, index int, result R, err error, duration time.Duration, retried int)
}

// Executor is a bounded-concurrency priority task queue. All state is
// guarded by one mutex; completions re-dispatch queued work, so at most
// maxConcurrency workers run at any instant.
type Executor[T, R any] struct {
	mu             sync.Mutex
	queue          taskHeap[T, R]
	running        int
	maxConcurrency int
	seq            uint64
	startedAt      time.Time
	totalBusy      time.Duration

	metrics     Metrics
	subscribers []func(Metrics)

	logger    *zap.Logger
	collector *Collector
}

// New builds an Executor. A nil logger defaults to zap.NewNop; a nil
// collector disables Prometheus export.
func New[T, R any](cfg types.ExecutorConfig, logger *zap.Logger, collector *Collector) *Executor[T, R] {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cfg.MaxConcurrency
	if c == 0 {
		c = DefaultConcurrency
	}
	return &Executor[T, R]{
		maxConcurrency: clampConcurrency(c),
		logger:         logger,
		collector:      collector,
	}
}

// SetConcurrency adjusts the worker bound, clamped to [1,20]. Lowering
// the bound does not interrupt tasks already running.
func (e *Executor[T, R]) SetConcurrency(n int) {
	e.mu.Lock()
	e.maxConcurrency = clampConcurrency(n)
	e.mu.Unlock()
	e.dispatch()
}

// Concurrency returns the current worker bound.
func (e *Executor[T, R]) Concurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxConcurrency
}

// Subscribe registers fn to receive a metrics snapshot synchronously
// after every task completion.
func (e *Executor[T, R]) Subscribe(fn func(Metrics)) {
	e.mu.Lock()
	e.subscribers = append(e.subscribers, fn)
	e.mu.Unlock()
}

// Snapshot returns the current metrics.
func (e *Executor[T, R]) Snapshot() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// ExecuteAll runs worker over every input under the concurrency bound
// and waits for all of them. Each input's worker runs at most once
// concurrently; failed inputs are retried opts.Retries times with
// exponential backoff before their error is surfaced in Errors.
func (e *Executor[T, R]) ExecuteAll(ctx context.Context, inputs []T, worker Worker[T, R], opts Options) Results[R] {
	out := Results[R]{Results: make([]R, len(inputs))}
	if len(inputs) == 0 {
		return out
	}

	var (
		wg        sync.WaitGroup
		outMu     sync.Mutex
		completed int
	)
	wg.Add(len(inputs))

	for i, input := range inputs {
		e.enqueue(ctx, i, input, worker, opts, func(id string, index int, result R, err error, _ time.Duration, _ int) {
			outMu.Lock()
			if err != nil {
				out.Errors = append(out.Errors, TaskError{Index: index, ID: id, Err: err})
			} else {
				out.Results[index] = result
			}
			completed++
			done := completed
			outMu.Unlock()

			if opts.OnProgress != nil {
				opts.OnProgress(done, len(inputs))
			}
			wg.Done()
		})
	}

	wg.Wait()
	return out
}

// ExecuteBatched chunks inputs into batches of batchSize and runs them
// sequentially, invoking onBatch after each batch completes.
func (e *Executor[T, R]) ExecuteBatched(ctx context.Context, inputs []T, batchSize int, worker Worker[T, R], opts Options, onBatch func(batch int, results Results[R])) {
	if batchSize <= 0 {
		batchSize = e.Concurrency()
	}
	for batch := 0; batch*batchSize < len(inputs); batch++ {
		start := batch * batchSize
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		results := e.ExecuteAll(ctx, inputs[start:end], worker, opts)
		if onBatch != nil {
			onBatch(batch, results)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Enqueue submits one input without waiting. The returned channel
// receives the task's outcome once, then closes.
func (e *Executor[T, R]) Enqueue(ctx context.Context, input T, worker Worker[T, R], opts Options) <-chan TaskOutcome[R] {
	ch := make(chan TaskOutcome[R], 1)
	e.enqueue(ctx, 0, input, worker, opts, func(_ string, _ int, result R, err error, duration time.Duration, retried int) {
		ch <- TaskOutcome[R]{Result: result, Err: err, Duration: duration, Retries: retried}
		close(ch)
	})
	return ch
}

// TaskOutcome is the completion report for one enqueued task.
type TaskOutcome[R any] struct {
	Result   R
	Err      error
	Duration time.Duration
	Retries  int
}

func (e *Executor[T, R]) enqueue(ctx context.Context, index int, input T, worker Worker[T, R], opts Options, done func(string, int, R, error, time.Duration, int)) {
	e.mu.Lock()
	e.seq++
	if e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}
	t := &task[T, R]{
		id:       uuid.NewString(),
		index:    index,
		priority: opts.Priority,
		seq:      e.seq,
		input:    input,
		worker:   worker,
		retries:  opts.Retries,
		timeout:  opts.Timeout,
		ctx:      ctx,
		done:     done,
	}
	e.queue.push(t)
	e.metrics.TotalTasks++
	e.mu.Unlock()

	if e.collector != nil {
		e.collector.tasksSubmitted.Inc()
	}
	e.dispatch()
}

// dispatch starts queued tasks while capacity remains.
func (e *Executor[T, R]) dispatch() {
	for {
		e.mu.Lock()
		if e.running >= e.maxConcurrency || e.queue.Len() == 0 {
			e.mu.Unlock()
			return
		}
		t := e.queue.pop()
		e.running++
		e.mu.Unlock()

		if e.collector != nil {
			e.collector.running.Inc()
		}
		go e.run(t)
	}
}

// run executes one task with retries, then records completion and
// re-dispatches.
func (e *Executor[T, R]) run(t *task[T, R]) {
	start := time.Now()
	var (
		result  R
		err     error
		retried int
	)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			retried++
			e.noteRetry()
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			e.logger.Debug("retrying task",
				zap.String("task", t.id),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-t.ctx.Done():
				err = t.ctx.Err()
			case <-time.After(backoff):
			}
			if err != nil {
				break
			}
		}

		result, err = e.invoke(t)
		if err == nil {
			break
		}
		if attempt >= t.retries {
			break
		}
	}

	duration := time.Since(start)
	e.complete(t, result, err, duration, retried)
}

// invoke races one worker attempt against its timeout.
func (e *Executor[T, R]) invoke(t *task[T, R]) (R, error) {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	type outcome struct {
		result R
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := t.worker(ctx, t.input)
		ch <- outcome{result: r, err: err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		var zero R
		if ctx.Err() == context.DeadlineExceeded {
			return zero, types.Errorf(types.ErrTimeout, "task %s exceeded %v", t.id, t.timeout)
		}
		return zero, ctx.Err()
	}
}

// complete updates metrics under the lock, then notifies subscribers
// synchronously with a snapshot, then re-dispatches queued work.
func (e *Executor[T, R]) complete(t *task[T, R], result R, err error, duration time.Duration, retried int) {
	e.mu.Lock()
	e.running--
	e.totalBusy += duration
	if err != nil {
		e.metrics.FailedTasks++
	} else {
		e.metrics.CompletedTasks++
	}
	finished := e.metrics.CompletedTasks + e.metrics.FailedTasks
	if finished > 0 {
		e.metrics.AverageTaskTime = e.totalBusy / time.Duration(finished)
	}
	elapsed := time.Since(e.startedAt)
	if elapsed > 0 {
		e.metrics.ParallelEfficiency = types.Clamp01(
			float64(e.totalBusy) / (float64(elapsed) * float64(e.maxConcurrency)))
	}
	snapshot := e.metrics
	subscribers := make([]func(Metrics), len(e.subscribers))
	copy(subscribers, e.subscribers)
	e.mu.Unlock()

	if e.collector != nil {
		e.collector.running.Dec()
		e.collector.taskDuration.Observe(duration.Seconds())
		if err != nil {
			e.collector.tasksFailed.Inc()
		} else {
			e.collector.tasksCompleted.Inc()
		}
	}
	if err != nil {
		e.logger.Debug("task failed",
			zap.String("task", t.id),
			zap.Int("retries", retried),
			zap.Error(err))
	}

	for _, fn := range subscribers {
		fn(snapshot)
	}

	t.done(t.id, t.index, result, err, duration, retried)
	e.dispatch()
}

func (e *Executor[T, R]) noteRetry() {
	e.mu.Lock()
	e.metrics.RetryCount++
	e.mu.Unlock()
	if e.collector != nil {
		e.collector.retries.Inc()
	}
}

func clampConcurrency(n int) int {
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
