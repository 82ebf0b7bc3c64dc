package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/chitchat/internal/fanout"
	"github.com/matheus3301/chitchat/internal/stream"
)

// Messages returns the message collection as a live source ordered by server timestamp.
func (db *DB) Messages() stream.Source[Message] {
	return &feed[Message]{notifier: db.notifier, collection: fanout.Messages, load: db.ListMessages}
}

// Profiles returns the profile collection as a live source.
func (db *DB) Profiles() stream.Source[UserProfile] {
	return &feed[UserProfile]{notifier: db.notifier, collection: fanout.Profiles, load: db.ListProfiles}
}

// feed re-reads a collection whenever it changes and delivers the full result.
// Bursts of changes collapse into a single read.
type feed[T any] struct {
	notifier   fanout.Notifier
	collection string
	load       func(context.Context) ([]T, error)
}

func (f *feed[T]) Subscribe(onNext func([]T), onError func(error)) (func(), error) {
	if onNext == nil {
		return nil, errors.New("subscribe: onNext is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	pending := make(chan struct{}, 1)
	poke := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}

	stopWatch, err := f.notifier.Watch(f.collection, poke)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", f.collection, err)
	}
	poke() // initial snapshot

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
			}
			items, err := f.load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if onError != nil {
					onError(&stream.StreamError{Collection: f.collection, Err: err})
				}
				continue
			}
			onNext(items)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopWatch()
			cancel()
		})
	}, nil
}
