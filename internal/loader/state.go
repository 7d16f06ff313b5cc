// Package loader reveals a long ordered collection in batches, driven by a
// proximity signal ("the user scrolled near the end").
//
// Loader works on a collection already held in memory; Paged fetches its
// pages on demand. Both expose the same explicit state machine:
//
//	Idle -> Showing -> LoadingMore -> Showing ... -> Exhausted
//
// Exhausted is terminal until the collection is replaced.
package loader

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultBatchSize replaces a non-positive batch size.
const DefaultBatchSize = 1

// State is the loader's position in its lifecycle.
type State int

const (
	// Idle means nothing has been loaded and nothing is displayed.
	Idle State = iota
	// Showing means a prefix is displayed and more items remain.
	Showing
	// LoadingMore means the next batch is being revealed or fetched.
	LoadingMore
	// Exhausted means everything available is displayed.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Showing:
		return "showing"
	case LoadingMore:
		return "loading_more"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consistent view of a loader at one instant.
type Snapshot[T any] struct {
	Items         []T   `json:"items"`
	Displayed     int   `json:"displayed"`
	Total         int   `json:"total,omitempty"`
	BatchSize     int   `json:"batch_size"`
	HasMore       bool  `json:"has_more"`
	IsLoadingMore bool  `json:"is_loading_more"`
	State         State `json:"state"`
}

// normalizeBatchSize treats a non-positive size as a configuration error.
func normalizeBatchSize(size int, log logrus.FieldLogger) int {
	if size > 0 {
		return size
	}
	log.WithFields(logrus.Fields{
		"batch_size": size,
		"fallback":   DefaultBatchSize,
	}).Warn("Invalid loader batch size, using fallback")
	return DefaultBatchSize
}

func loggerOrDefault(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}
