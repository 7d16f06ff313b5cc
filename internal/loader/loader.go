package loader

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// Loader reveals a resident collection batch by batch. The displayed items
// are always a prefix of the collection. It is safe for concurrent use.
type Loader[T any] struct {
	mu    sync.Mutex
	all   []T
	shown int
	batch int
	state State
	log   logrus.FieldLogger
}

// NewLoader returns an Idle loader. log may be nil.
func NewLoader[T any](log logrus.FieldLogger) *Loader[T] {
	return &Loader[T]{log: loggerOrDefault(log)}
}

// Initialize displays the first batch of items. The loader keeps its own
// copy of items.
func (l *Loader[T]) Initialize(items []T, batchSize int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.batch = normalizeBatchSize(batchSize, l.log)
	l.reset(items)
}

// Replace swaps in a new collection, e.g. after the search term changed,
// and goes back to showing the first batch.
func (l *Loader[T]) Replace(items []T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.batch <= 0 {
		l.batch = normalizeBatchSize(l.batch, l.log)
	}
	l.reset(items)
}

// Reset drops the collection and returns to Idle.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.all = nil
	l.shown = 0
	l.state = Idle
}

func (l *Loader[T]) reset(items []T) {
	l.all = slices.Clone(items)
	l.shown = min(len(l.all), l.batch)
	l.settle()
}

// settle derives the resting state from the displayed prefix.
func (l *Loader[T]) settle() {
	if l.shown < len(l.all) {
		l.state = Showing
	} else {
		l.state = Exhausted
	}
}

// RequestMore reveals the next batch. It is a no-op, returning false, while
// a batch is being revealed or when nothing more remains.
func (l *Loader[T]) RequestMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Showing {
		return false
	}

	l.state = LoadingMore
	l.shown = min(l.shown+l.batch, len(l.all))
	l.settle()
	return true
}

// Displayed returns a copy of the displayed prefix.
func (l *Loader[T]) Displayed() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.all[:l.shown])
}

// HasMore reports whether items remain undisplayed.
func (l *Loader[T]) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shown < len(l.all)
}

// IsLoadingMore reports whether a batch is being revealed.
func (l *Loader[T]) IsLoadingMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == LoadingMore
}

// State returns the current state.
func (l *Loader[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// BatchSize returns the effective batch size.
func (l *Loader[T]) BatchSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batch
}

// Snapshot returns a consistent view of the loader.
func (l *Loader[T]) Snapshot() Snapshot[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot[T]{
		Items:         append(make([]T, 0, l.shown), l.all[:l.shown]...),
		Displayed:     l.shown,
		Total:         len(l.all),
		BatchSize:     l.batch,
		HasMore:       l.shown < len(l.all),
		IsLoadingMore: l.state == LoadingMore,
		State:         l.state,
	}
}
