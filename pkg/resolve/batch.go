package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultMaxParallel   = 8
	defaultBatchRetries  = 2
	defaultBatchRetryGap = 50 * time.Millisecond
)

// BatchResult holds the outcome of a batch resolution.
type BatchResult struct {
	// Resolved maps external ID to internal ID for every success.
	Resolved map[string]string `json:"resolved"`

	// Failed lists external IDs that could not be resolved, with the
	// error each lookup ended on.
	Failed []BatchFailure `json:"failed,omitempty"`
}

// BatchFailure is one unresolvable external ID and why it failed.
type BatchFailure struct {
	MemoryID string `json:"memory_id"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// BatchOptions controls batch resolution.
type BatchOptions struct {
	// MaxParallel bounds concurrent lookups. Defaults to 8.
	MaxParallel int

	// Retries per ID beyond the first attempt. Defaults to 2.
	Retries int

	// RetryDelay is the initial delay between attempts; it doubles each
	// retry. Defaults to 50ms.
	RetryDelay time.Duration

	// FailFast turns the first failure into an error instead of
	// collecting it in Failed.
	FailFast bool
}

func (o *BatchOptions) fill() {
	if o.MaxParallel <= 0 {
		o.MaxParallel = defaultMaxParallel
	}
	if o.Retries < 0 {
		o.Retries = defaultBatchRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultBatchRetryGap
	}
}

// ResolveBatch resolves many external IDs concurrently. Duplicates are
// collapsed before lookup. Not-found IDs are never retried; transient
// errors are retried with a doubling delay.
func (r *Resolver) ResolveBatch(ctx context.Context, memoryIDs []string, opts BatchOptions) (*BatchResult, error) {
	opts.fill()

	seen := make(map[string]struct{}, len(memoryIDs))
	unique := make([]string, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	result := &BatchResult{Resolved: make(map[string]string, len(unique))}
	if len(unique) == 0 {
		return result, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		sem      = make(chan struct{}, opts.MaxParallel)
	)

	for _, id := range unique {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			internal, err := r.resolveWithRetry(ctx, id, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, BatchFailure{MemoryID: id, Reason: err.Error(), Err: err})
				if firstErr == nil {
					firstErr = fmt.Errorf("resolve: batch: %s: %w", id, err)
				}
				return
			}
			result.Resolved[id] = internal
		}()
	}
	wg.Wait()

	if opts.FailFast && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func (r *Resolver) resolveWithRetry(ctx context.Context, id string, opts BatchOptions) (string, error) {
	delay := opts.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		internal, err := r.Resolve(ctx, id)
		if err == nil {
			return internal, nil
		}
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
