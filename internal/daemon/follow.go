package daemon

import (
	"sync"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/status"
	"go.uber.org/zap"
)

// synchronizer is a collection follower that runs only while signed in.
type synchronizer interface {
	Start() error
	Stop()
	Active() bool
}

type stater interface {
	State() status.State
}

// sessionFollower starts the synchronizers on Authenticated and stops them
// when the session leaves it.
type sessionFollower struct {
	bus     *bus.Bus
	session stater
	syncs   []synchronizer
	logger  *zap.Logger

	once   sync.Once
	stopCh chan struct{}
	done   chan struct{}
}

func newSessionFollower(b *bus.Bus, s stater, msgs, roster synchronizer, logger *zap.Logger) *sessionFollower {
	return &sessionFollower{
		bus:     b,
		session: s,
		syncs:   []synchronizer{msgs, roster},
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (f *sessionFollower) start() {
	ch, unsub := f.bus.Subscribe(bus.SessionStatusChanged, 16)
	f.apply(f.session.State())
	go func() {
		defer close(f.done)
		defer unsub()
		for {
			select {
			case <-ch:
				// Events can be dropped under load; the current state is
				// authoritative, the payload only wakes us.
				f.apply(f.session.State())
			case <-f.stopCh:
				return
			}
		}
	}()
}

func (f *sessionFollower) apply(s status.State) {
	for _, sy := range f.syncs {
		switch {
		case s == status.Authenticated && !sy.Active():
			if err := sy.Start(); err != nil {
				f.logger.Error("synchronizer failed to start", zap.Error(err))
			}
		case s != status.Authenticated && sy.Active():
			sy.Stop()
		}
	}
}

// stop ends following and stops the synchronizers. It must follow start.
func (f *sessionFollower) stop() {
	f.once.Do(func() {
		close(f.stopCh)
		<-f.done
		for _, sy := range f.syncs {
			sy.Stop()
		}
	})
}
