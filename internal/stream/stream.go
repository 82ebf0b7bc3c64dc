// Package stream defines the push-subscription abstraction the synchronizers
// depend on. A Source delivers the full current state of a collection on every
// notification; it never delivers diffs.
package stream

import (
	"errors"
	"fmt"
)

// Source is a live collection.
type Source[T any] interface {
	// Subscribe registers onNext for every snapshot and onError for subscription
	// failures. Calls for a single subscription are never concurrent and arrive in
	// order. The returned function unregisters and is safe to call more than once.
	Subscribe(onNext func([]T), onError func(error)) (unsubscribe func(), err error)
}

// Func adapts a plain subscribe function to Source.
type Func[T any] func(onNext func([]T), onError func(error)) (func(), error)

// Subscribe implements Source.
func (f Func[T]) Subscribe(onNext func([]T), onError func(error)) (func(), error) {
	return f(onNext, onError)
}

// StreamError reports a subscription failure, or a single record that failed
// validation when ItemID is set. It is never fatal: observers keep their last
// known snapshot.
type StreamError struct {
	Collection string
	ItemID     string
	Err        error
}

func (e *StreamError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s stream: record %q: %v", e.Collection, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s stream: %v", e.Collection, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// IsStreamError reports whether err is or wraps a *StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}
