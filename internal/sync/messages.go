package sync

import (
	gosync "sync"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/fanout"
	"github.com/matheus3301/chitchat/internal/store"
	"github.com/matheus3301/chitchat/internal/stream"
)

// MessageStream is the ordered view of the message collection.
type MessageStream struct {
	f *follower[store.Message]

	mu    gosync.RWMutex
	msgs  []store.Message
	ready bool
}

// NewMessageStream creates a stopped synchronizer over src.
func NewMessageStream(src stream.Source[store.Message], b *bus.Bus, logger *zap.Logger) *MessageStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MessageStream{}
	s.f = &follower[store.Message]{
		source:       src,
		collection:   fanout.Messages,
		snapshotKind: bus.MessagesSnapshot,
		errorKind:    bus.MessagesStreamError,
		validate:     func(m store.Message) (string, error) { return m.ID, m.Validate() },
		apply:        s.apply,
		reset:        s.reset,
		bus:          b,
		logger:       logger,
	}
	return s
}

// Start opens the subscription, closing any previous one first.
func (s *MessageStream) Start() error { return s.f.start() }

// Stop closes the subscription and clears the view.
func (s *MessageStream) Stop() { s.f.stop() }

// Active reports whether a subscription is open.
func (s *MessageStream) Active() bool { return s.f.active() }

// Err returns the last subscription error, cleared by the next snapshot.
func (s *MessageStream) Err() error { return s.f.err() }

// Ready reports whether at least one snapshot has arrived.
func (s *MessageStream) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Messages returns the current ordered messages.
func (s *MessageStream) Messages() []store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *MessageStream) apply(valid []store.Message) any {
	ordered := orderMessages(valid)
	s.mu.Lock()
	s.msgs = ordered
	s.ready = true
	s.mu.Unlock()

	out := make([]store.Message, len(ordered))
	copy(out, ordered)
	return out
}

func (s *MessageStream) reset() {
	s.mu.Lock()
	s.msgs = nil
	s.ready = false
	s.mu.Unlock()
}

func lessMessage(a, b store.Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// orderMessages sorts by (timestamp, seq, id). Records with identical keys
// collapse into one.
func orderMessages(msgs []store.Message) []store.Message {
	tree := btree.NewG(32, lessMessage)
	for _, m := range msgs {
		tree.ReplaceOrInsert(m)
	}
	out := make([]store.Message, 0, tree.Len())
	tree.Ascend(func(m store.Message) bool {
		out = append(out, m)
		return true
	})
	return out
}
