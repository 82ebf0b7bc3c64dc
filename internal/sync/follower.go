// Package sync keeps local views of the live message and profile collections.
// Every notification replaces the view wholesale; nothing is applied locally
// ahead of the backend.
package sync

import (
	"errors"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/stream"
)

// follower owns the single subscription of a synchronizer. Callbacks from a
// subscription that was replaced or stopped are ignored.
type follower[T any] struct {
	source       stream.Source[T]
	collection   string
	snapshotKind string
	errorKind    string
	validate     func(T) (id string, err error)
	apply        func(valid []T) any // returns the bus payload
	reset        func()
	bus          *bus.Bus
	logger       *zap.Logger

	mu      gosync.Mutex
	gen     uint64
	unsub   func()
	lastErr error
}

func (f *follower[T]) start() error {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	prev := f.unsub
	f.unsub = nil
	f.mu.Unlock()
	if prev != nil {
		prev()
	}

	unsub, err := f.source.Subscribe(
		func(items []T) { f.onNext(gen, items) },
		func(err error) { f.onError(gen, err) },
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.collection, err)
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		unsub()
		return nil
	}
	f.unsub = unsub
	f.mu.Unlock()
	f.logger.Debug("subscription started", zap.String("collection", f.collection))
	return nil
}

// stop closes the subscription and discards the view, which belongs to the
// session that opened it.
func (f *follower[T]) stop() {
	f.mu.Lock()
	f.gen++
	unsub := f.unsub
	f.unsub = nil
	f.lastErr = nil
	if f.reset != nil {
		f.reset()
	}
	f.mu.Unlock()
	if unsub != nil {
		unsub()
		f.logger.Debug("subscription stopped", zap.String("collection", f.collection))
	}
}

func (f *follower[T]) active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsub != nil
}

func (f *follower[T]) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *follower[T]) onNext(gen uint64, items []T) {
	valid := make([]T, 0, len(items))
	var rejected []*stream.StreamError
	for _, it := range items {
		if id, err := f.validate(it); err != nil {
			rejected = append(rejected, &stream.StreamError{Collection: f.collection, ItemID: id, Err: err})
			continue
		}
		valid = append(valid, it)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return
	}
	f.lastErr = nil
	payload := f.apply(valid)
	for _, se := range rejected {
		f.logger.Warn("dropped invalid record", zap.String("collection", f.collection), zap.String("id", se.ItemID), zap.Error(se.Err))
		f.bus.Emit(f.errorKind, se)
	}
	f.bus.Emit(f.snapshotKind, payload)
}

func (f *follower[T]) onError(gen uint64, err error) {
	var se *stream.StreamError
	if !errors.As(err, &se) {
		se = &stream.StreamError{Collection: f.collection, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return
	}
	f.lastErr = se
	f.logger.Warn("subscription error, keeping last snapshot", zap.String("collection", f.collection), zap.Error(err))
	f.bus.Emit(f.errorKind, se)
}
