package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ankala/maestro/pkg/api"
)

// DefaultMaxConcurrency bounds in-flight steps when no limit is configured.
const DefaultMaxConcurrency = 4

// Hooks receives executor callbacks from step goroutines. OnStepStart fires
// before every attempt; OnStepDone fires once per step with its final result.
// Either field may be nil.
type Hooks struct {
	OnStepStart func(stepID string, attempt int)
	OnStepDone  func(res api.StepResult)
}

// Executor runs one execution level: a group of mutually independent steps.
// Steps are launched as concurrent tasks admitted against a shared semaphore;
// steps beyond the limit queue for a free slot. The semaphore is owned by the
// executor, so the bound holds across jobs sharing it.
type Executor struct {
	sem *semaphore.Weighted
}

// NewExecutor creates an Executor admitting at most maxConcurrency steps at
// a time. Values <= 0 select DefaultMaxConcurrency.
func NewExecutor(maxConcurrency int) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Executor{sem: semaphore.NewWeighted(int64(maxConcurrency))}
}

// ExecuteLevel runs every step of a level against a shared read-only view
// and returns one result per step. It blocks until each step has succeeded,
// failed, or timed out; it never returns early on first completion, so the
// caller gets a deterministic level boundary to checkpoint at. A step's
// timeout or failure never affects its siblings.
func (x *Executor) ExecuteLevel(ctx context.Context, steps []*api.CompiledStep, view api.StepContext, hooks Hooks) map[string]api.StepResult {
	results := make(map[string]api.StepResult, len(steps))
	if len(steps) == 0 {
		return results
	}

	// One mutex per mutual-exclusion tag, scoped to this level call:
	// same-tag siblings serialize, everything else runs freely.
	locks := make(map[string]*sync.Mutex)
	for _, st := range steps {
		if st.Exclusive != "" && locks[st.Exclusive] == nil {
			locks[st.Exclusive] = &sync.Mutex{}
		}
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, st := range steps {
		wg.Add(1)
		go func(st *api.CompiledStep) {
			defer wg.Done()

			res := x.runStep(ctx, st, locks[st.Exclusive], view, hooks)

			mu.Lock()
			results[st.ID] = res
			mu.Unlock()

			if hooks.OnStepDone != nil {
				hooks.OnStepDone(res)
			}
		}(st)
	}
	wg.Wait()

	return results
}

// runStep executes a single step with admission control, mutual exclusion,
// per-attempt timeout and the step's retry policy.
func (x *Executor) runStep(ctx context.Context, st *api.CompiledStep, lock *sync.Mutex, view api.StepContext, hooks Hooks) api.StepResult {
	start := time.Now()
	res := api.StepResult{StepID: st.ID}

	if err := x.sem.Acquire(ctx, 1); err != nil {
		res.Status = api.StepFailed
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}
	defer x.sem.Release(1)

	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}

	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	if st.Retry != nil {
		if st.Retry.MaxAttempts > 0 {
			maxAttempts = st.Retry.MaxAttempts
		}
		backoff = st.Retry.InitialBackoff
		maxBackoff = st.Retry.MaxBackoff

		// Backoff multiplier:
		//   - If explicitly set to > 0, use it.
		//   - Otherwise default to 2.0 (standard exponential backoff).
		multiplier = st.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	var lastErr error
	timedOut := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			res.Attempts = attempt - 1
			break
		}

		if hooks.OnStepStart != nil {
			hooks.OnStepStart(st.ID, attempt)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if st.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, st.Timeout)
		}

		out, err := st.Runner.Run(attemptCtx, view.WithStep(st.ID))
		if cancel != nil {
			cancel()
		}

		if err == nil {
			res.Status = api.StepSucceeded
			res.Output = out
			res.Attempts = attempt
			res.Duration = time.Since(start)
			return res
		}

		lastErr = err
		res.Attempts = attempt
		// Only a per-step deadline counts as a timeout; a cancelled job
		// context is a plain failure.
		timedOut = errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil

		if attempt == maxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(delay):
			}
			if ctx.Err() != nil {
				break
			}

			next := time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && next > maxBackoff {
				backoff = maxBackoff
			} else {
				backoff = next
			}
		}
	}

	res.Err = lastErr
	res.Duration = time.Since(start)
	if timedOut {
		res.Status = api.StepTimedOut
	} else {
		res.Status = api.StepFailed
	}
	return res
}
