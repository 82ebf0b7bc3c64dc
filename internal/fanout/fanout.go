// Package fanout carries collection-change notifications from writers to live
// subscriptions. Notifications carry no data; watchers re-read the collection.
package fanout

import (
	"sync"

	"github.com/matheus3301/chitchat/internal/bus"
)

// Collection names.
const (
	Messages = "messages"
	Profiles = "profiles"
)

// Notifier announces and observes collection changes.
type Notifier interface {
	Notify(collection string) error
	Watch(collection string, fn func()) (stop func(), err error)
}

// Local fans out over the in-process bus. Only writers in the same process are seen.
type Local struct {
	bus *bus.Bus
}

// NewLocal creates a bus-backed notifier. A nil bus gets a private one.
func NewLocal(b *bus.Bus) *Local {
	if b == nil {
		b = bus.New()
	}
	return &Local{bus: b}
}

// Notify implements Notifier.
func (l *Local) Notify(collection string) error {
	l.bus.Emit(bus.CollectionChanged+collection, nil)
	return nil
}

// Watch implements Notifier. fn runs on a dedicated goroutine, one call at a time.
func (l *Local) Watch(collection string, fn func()) (func(), error) {
	ch, unsub := l.bus.Subscribe(bus.CollectionChanged+collection, 16)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}, nil
}
