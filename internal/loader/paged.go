package loader

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// PageFetcher loads up to limit items starting at offset. more reports
// whether items exist past the returned page.
type PageFetcher[T any] func(ctx context.Context, offset, limit int) (items []T, more bool, err error)

// SliceFetcher serves pages out of a resident slice.
func SliceFetcher[T any](all []T) PageFetcher[T] {
	return func(_ context.Context, offset, limit int) ([]T, bool, error) {
		if offset >= len(all) {
			return nil, false, nil
		}
		end := min(offset+limit, len(all))
		return all[offset:end], end < len(all), nil
	}
}

// Paged reveals a remote collection by fetching one page per batch.
//
// At most one fetch runs at a time. Results that arrive after Close or
// Reset are discarded, so a torn-down view is never mutated. A fetch error
// ends the collection (Exhausted) instead of retrying; Err reports it.
type Paged[T any] struct {
	mu     sync.Mutex
	fetch  PageFetcher[T]
	items  []T
	batch  int
	state  State
	err    error
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	log    logrus.FieldLogger
}

// NewPaged returns an Idle paged loader. The first RequestMore fetches the
// first page. log may be nil.
func NewPaged[T any](fetch PageFetcher[T], batchSize int, log logrus.FieldLogger) *Paged[T] {
	log = loggerOrDefault(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Paged[T]{
		fetch:  fetch,
		batch:  normalizeBatchSize(batchSize, log),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// RequestMore starts fetching the next page and returns a channel closed
// once the fetch has settled. It returns nil, doing nothing, while a fetch
// is in flight, after the collection is exhausted, or after Close.
func (p *Paged[T]) RequestMore() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.state == LoadingMore || p.state == Exhausted {
		return nil
	}

	p.state = LoadingMore
	done := make(chan struct{})
	go p.load(p.ctx, p.gen, p.fetch, len(p.items), done)
	return done
}

func (p *Paged[T]) load(ctx context.Context, gen uint64, fetch PageFetcher[T], offset int, done chan struct{}) {
	defer close(done)

	items, more, err := fetch(ctx, offset, p.batch)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || gen != p.gen {
		p.log.WithField("offset", offset).Debug("Discarding stale page")
		return
	}

	if err != nil {
		p.log.WithError(err).WithField("offset", offset).Debug("Page fetch failed, treating collection as exhausted")
		p.err = err
		p.state = Exhausted
		return
	}

	if len(items) > p.batch {
		items = items[:p.batch]
		more = true
	}
	p.items = append(p.items, items...)

	if more && len(items) > 0 {
		p.state = Showing
	} else {
		p.state = Exhausted
	}
}

// Reset discards everything loaded so far, cancels any in-flight fetch and
// returns to Idle. A non-nil fetch replaces the page source, e.g. for a new
// search term.
func (p *Paged[T]) Reset(fetch PageFetcher[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.cancel()
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.gen++
	if fetch != nil {
		p.fetch = fetch
	}
	p.items = nil
	p.err = nil
	p.state = Idle
}

// Close tears the loader down. An in-flight fetch is cancelled and its
// result ignored. Close is idempotent.
func (p *Paged[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.gen++
	p.cancel()
}

// Displayed returns a copy of the items fetched so far.
func (p *Paged[T]) Displayed() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

// HasMore reports whether another page may exist.
func (p *Paged[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != Exhausted
}

// IsLoadingMore reports whether a fetch is in flight.
func (p *Paged[T]) IsLoadingMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == LoadingMore
}

// State returns the current state.
func (p *Paged[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the fetch error that exhausted the collection, if any.
func (p *Paged[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Snapshot returns a consistent view of the loader.
func (p *Paged[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot[T]{
		Items:         append(make([]T, 0, len(p.items)), p.items...),
		Displayed:     len(p.items),
		BatchSize:     p.batch,
		HasMore:       p.state != Exhausted,
		IsLoadingMore: p.state == LoadingMore,
		State:         p.state,
	}
}
