package catalog

// ResultStatus classifies the outcome of a list fetch.
type ResultStatus int

const (
	// Loaded means the fetch succeeded and returned at least one item.
	Loaded ResultStatus = iota
	// Empty means the fetch succeeded and the collection has no items.
	Empty
	// Failed means the fetch did not succeed.
	Failed
)

func (s ResultStatus) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Empty:
		return "empty"
	default:
		return "failed"
	}
}

// ListResult is the outcome of a list fetch. An empty collection and a
// failed fetch are distinct; callers that prefer to degrade to an empty
// list use OrEmpty.
type ListResult[T any] struct {
	Items []T
	Err   error
}

func loaded[T any](items []T) ListResult[T] {
	if items == nil {
		items = []T{}
	}
	return ListResult[T]{Items: items}
}

func failed[T any](err error) ListResult[T] {
	return ListResult[T]{Err: err}
}

// Status reports whether the result is Loaded, Empty or Failed.
func (r ListResult[T]) Status() ResultStatus {
	switch {
	case r.Err != nil:
		return Failed
	case len(r.Items) == 0:
		return Empty
	default:
		return Loaded
	}
}

// Failed reports whether the fetch failed.
func (r ListResult[T]) Failed() bool {
	return r.Err != nil
}

// OrEmpty returns the items, or an empty non-nil slice when the fetch failed.
func (r ListResult[T]) OrEmpty() []T {
	if r.Err != nil || r.Items == nil {
		return []T{}
	}
	return r.Items
}
