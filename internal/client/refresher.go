package client

import (
	"context"
	"sync"
)

const (
	triggerExpiry       = "expiry"
	triggerUnauthorized = "unauthorized"
)

type refreshResult struct {
	token string
	err   error
}

// refreshCall describes one caller's need for a fresh token.
type refreshCall struct {
	trigger string
	// needed reports whether a refresh is still required. It is evaluated
	// under the refresher lock, after any refresh that was in flight settled.
	needed func() bool
	// current returns the token to use when no refresh is needed.
	current func() (string, error)
	// run performs the refresh. It is only ever called by the leader.
	run func(ctx context.Context) (string, error)
	// failed is called once by the leader after every waiter was settled
	// with a failure.
	failed func(ctx context.Context, err error)
}

// refresher deduplicates concurrent token refreshes for one credential.
// refreshing and waiters change together under mu: the queue is non-empty
// only while a refresh is in flight, and settling every waiter happens in
// the same critical section that clears the flag.
type refresher struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
	metrics    *Metrics
}

// do returns a token that satisfies call. At most one call.run executes at a
// time; callers arriving while it runs wait for and share its result.
func (r *refresher) do(ctx context.Context, call refreshCall) (string, error) {
	r.mu.Lock()

	if r.refreshing {
		ch := make(chan refreshResult, 1)
		r.waiters = append(r.waiters, ch)
		r.metrics.addWaiters(1)
		r.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			// The slot stays queued; the buffered channel absorbs the result.
			return "", ctx.Err()
		}
	}

	if !call.needed() {
		r.mu.Unlock()
		return call.current()
	}

	r.refreshing = true
	r.mu.Unlock()

	// Detached so that one cancelled caller cannot fail the waiters behind it.
	token, err := call.run(context.WithoutCancel(ctx))
	r.metrics.observeRefresh(call.trigger, err)

	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	r.refreshing = false
	r.metrics.addWaiters(-len(waiters))
	r.mu.Unlock()

	if err != nil && call.failed != nil {
		call.failed(ctx, err)
	}
	return token, err
}

// state reports whether a refresh is in flight and how many callers wait on it.
func (r *refresher) state() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshing, len(r.waiters)
}
