package loader

import "sync"

// Proximity is one observation of how far the end-of-list sentinel is from
// the visible area. Zero or less means the sentinel is visible.
type Proximity struct {
	Distance int
}

// Feed delivers proximity observations. The returned function removes the
// subscription and may be called any number of times.
type Feed interface {
	Subscribe(fn func(Proximity)) (unsubscribe func())
}

// Broadcaster is a Feed fed by explicit Publish calls. The zero value is ready to use.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[uint64]func(Proximity)
	next uint64
}

// Subscribe registers fn for every future Publish.
func (b *Broadcaster) Subscribe(fn func(Proximity)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[uint64]func(Proximity))
	}
	id := b.next
	b.next++
	b.subs[id] = fn

	return sync.OnceFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	})
}

// Publish delivers p to every subscriber, synchronously.
func (b *Broadcaster) Publish(p Proximity) {
	b.mu.Lock()
	fns := make([]func(Proximity), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Watch calls onReach each time the sentinel comes within threshold of the
// visible area. Repeated observations while it stays near do not fire
// again. The returned stop function unsubscribes; it is idempotent and
// safe to defer on every exit path.
func Watch(feed Feed, threshold int, onReach func()) (stop func()) {
	var (
		mu      sync.Mutex
		near    bool
		stopped bool
	)

	unsubscribe := feed.Subscribe(func(p Proximity) {
		mu.Lock()
		isNear := p.Distance <= threshold
		fire := isNear && !near && !stopped
		near = isNear
		mu.Unlock()

		if fire {
			onReach()
		}
	})

	return sync.OnceFunc(func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		unsubscribe()
	})
}
