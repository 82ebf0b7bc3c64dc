package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/store"
	"github.com/matheus3301/chitchat/internal/stream"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeSource hands the test direct control over notifications.
type fakeSource[T any] struct {
	mu      gosync.Mutex
	subs    map[int]*fakeSub[T]
	next    int
	opened  int
	failErr error
}

type fakeSub[T any] struct {
	onNext  func([]T)
	onError func(error)
}

func newFakeSource[T any]() *fakeSource[T] {
	return &fakeSource[T]{subs: make(map[int]*fakeSub[T])}
}

func (s *fakeSource[T]) Subscribe(onNext func([]T), onError func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	id := s.next
	s.next++
	s.opened++
	s.subs[id] = &fakeSub[T]{onNext: onNext, onError: onError}
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *fakeSource[T]) live() []*fakeSub[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fakeSub[T], 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *fakeSource[T]) push(items []T) {
	for _, sub := range s.live() {
		sub.onNext(items)
	}
}

func (s *fakeSource[T]) fail(err error) {
	for _, sub := range s.live() {
		sub.onError(err)
	}
}

func msg(id string, ts, seq int64, body string) store.Message {
	return store.Message{ID: id, Seq: seq, Timestamp: ts, Author: "a", Body: body}
}

func bodies(msgs []store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func TestMessageStreamReplacesSnapshotWholesale(t *testing.T) {
	src := newFakeSource[store.Message]()
	s := NewMessageStream(src, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	src.push([]store.Message{msg("1", 100, 1, "a"), msg("2", 200, 2, "b")})
	src.push([]store.Message{msg("2", 200, 2, "b")})

	got := s.Messages()
	if len(got) != 1 || got[0].ID != "2" {
		t.Errorf("messages = %v, want only message 2", bodies(got))
	}
	if !s.Ready() {
		t.Error("Ready() = false after a snapshot")
	}
}

func TestMessageStreamToleratesUnorderedBackend(t *testing.T) {
	src := newFakeSource[store.Message]()
	s := NewMessageStream(src, nil, nil)
	_ = s.Start()

	src.push([]store.Message{
		msg("c", 300, 3, "third"),
		msg("a", 100, 1, "first"),
		msg("b2", 200, 5, "second-b"),
		msg("b1", 200, 4, "second-a"),
	})

	want := []string{"first", "second-a", "second-b", "third"}
	got := bodies(s.Messages())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestMessageStreamDropsInvalidRecords(t *testing.T) {
	src := newFakeSource[store.Message]()
	b := bus.New()
	ch, unsub := b.Subscribe("messages.", 10)
	defer unsub()

	s := NewMessageStream(src, b, nil)
	_ = s.Start()
	src.push([]store.Message{msg("ok", 100, 1, "fine"), {ID: "bad", Timestamp: 200, Seq: 2}})

	if got := s.Messages(); len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("messages = %+v", got)
	}

	var sawError, sawSnapshot bool
	for !(sawError && sawSnapshot) {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case bus.MessagesStreamError:
				se, ok := evt.Payload.(*stream.StreamError)
				if !ok || se.ItemID != "bad" {
					t.Errorf("stream error payload = %#v", evt.Payload)
				}
				sawError = true
			case bus.MessagesSnapshot:
				sawSnapshot = true
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout: error=%v snapshot=%v", sawError, sawSnapshot)
		}
	}
}

func TestMessageStreamKeepsSnapshotOnError(t *testing.T) {
	src := newFakeSource[store.Message]()
	s := NewMessageStream(src, nil, nil)
	_ = s.Start()

	src.push([]store.Message{msg("1", 100, 1, "kept")})
	src.fail(errors.New("permission denied"))

	if got := s.Messages(); len(got) != 1 {
		t.Errorf("snapshot cleared on error: %v", got)
	}
	if !stream.IsStreamError(s.Err()) {
		t.Errorf("Err() = %v, want a StreamError", s.Err())
	}

	src.push([]store.Message{msg("1", 100, 1, "kept")})
	if s.Err() != nil {
		t.Errorf("Err() = %v after recovery, want nil", s.Err())
	}
}

func TestRestartClosesPriorSubscription(t *testing.T) {
	src := newFakeSource[store.Message]()
	s := NewMessageStream(src, nil, nil)

	for range 3 {
		if err := s.Start(); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(src.live()); n != 1 {
		t.Errorf("live subscriptions = %d, want 1", n)
	}
	if src.opened != 3 {
		t.Errorf("opened = %d, want 3", src.opened)
	}

	s.Stop()
	if n := len(src.live()); n != 0 {
		t.Errorf("live subscriptions after Stop = %d, want 0", n)
	}
	if s.Active() {
		t.Error("Active() = true after Stop")
	}
}

func TestStopClearsView(t *testing.T) {
	msgs := newFakeSource[store.Message]()
	s := NewMessageStream(msgs, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	msgs.push([]store.Message{msg("1", 100, 1, "a")})

	profiles := newFakeSource[store.UserProfile]()
	r := NewRoster(profiles, nil, nil)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	profiles.push([]store.UserProfile{{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: store.RoleAdmin, Status: store.StatusOnline}})
	if !r.IsAdmin("ana@example.com") {
		t.Fatal("IsAdmin() = false before Stop")
	}

	s.Stop()
	r.Stop()

	if got := s.Messages(); len(got) != 0 {
		t.Errorf("messages after Stop = %v, want none", bodies(got))
	}
	if s.Ready() {
		t.Error("MessageStream.Ready() = true after Stop")
	}
	if v := r.View(); v.Total() != 0 {
		t.Errorf("roster total after Stop = %d, want 0", v.Total())
	}
	if r.Ready() || r.IsAdmin("ana@example.com") {
		t.Error("roster still holds the previous session's view")
	}
}

func TestStaleCallbacksIgnored(t *testing.T) {
	src := newFakeSource[store.Message]()
	s := NewMessageStream(src, nil, nil)
	_ = s.Start()
	stale := src.live()[0]

	_ = s.Start()
	stale.onNext([]store.Message{msg("ghost", 1, 1, "ghost")})

	if got := s.Messages(); len(got) != 0 {
		t.Errorf("stale subscription changed the view: %v", bodies(got))
	}
}

func TestStartFailure(t *testing.T) {
	src := newFakeSource[store.Message]()
	src.failErr = errors.New("offline")
	s := NewMessageStream(src, nil, nil)
	if err := s.Start(); err == nil {
		t.Fatal("expected Start to fail")
	}
	if s.Active() {
		t.Error("Active() = true after failed Start")
	}
}

func TestMessageStreamRoundTrip(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	snaps, unsub := b.Subscribe(bus.MessagesSnapshot, 64)
	defer unsub()

	s := NewMessageStream(db.Messages(), b, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	ctx := context.Background()
	const n = 5
	for i := range n {
		if _, err := db.AppendMessage(ctx, store.NewMessage{Author: "Ana", Body: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-snaps:
			msgs := evt.Payload.([]store.Message)
			if len(msgs) < n {
				continue
			}
			want := "[m0 m1 m2 m3 m4]"
			if got := fmt.Sprint(bodies(msgs)); got != want {
				t.Fatalf("snapshot = %s, want %s", got, want)
			}
			return
		case <-deadline:
			t.Fatalf("timeout; view = %v", bodies(s.Messages()))
		}
	}
}

func TestPartitionIsExhaustiveAndDisjoint(t *testing.T) {
	profiles := []store.UserProfile{
		{ID: "1", Status: store.StatusOnline},
		{ID: "2", Status: store.StatusOffline},
		{ID: "3", Status: "In a meeting"},
		{ID: "4", Status: ""},
		{ID: "5", Status: store.StatusOffline},
	}
	v := Partition(profiles)

	if v.Total() != len(profiles) {
		t.Fatalf("total = %d, want %d", v.Total(), len(profiles))
	}
	seen := map[string]int{}
	for _, p := range v.Online {
		if p.Status == store.StatusOffline {
			t.Errorf("offline profile %s in online group", p.ID)
		}
		seen[p.ID]++
	}
	for _, p := range v.Offline {
		if p.Status != store.StatusOffline {
			t.Errorf("profile %s with status %q in offline group", p.ID, p.Status)
		}
		seen[p.ID]++
	}
	for _, p := range profiles {
		if seen[p.ID] != 1 {
			t.Errorf("profile %s appears %d times", p.ID, seen[p.ID])
		}
	}
}

func TestRosterFollowsStore(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	snaps, unsub := b.Subscribe(bus.RosterSnapshot, 64)
	defer unsub()

	r := NewRoster(db.Profiles(), b, nil)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	ctx := context.Background()
	if _, err := db.CreateProfileIfAbsent(ctx, store.UserProfile{ID: "u1", Name: "Ana", Email: "Ana@Example.com", Role: store.RoleAdmin}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateProfileIfAbsent(ctx, store.UserProfile{ID: "u2", Name: "Budi"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateProfileStatus(ctx, "u2", store.StatusOffline); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-snaps:
			v := evt.Payload.(RosterView)
			if len(v.Online) != 1 || len(v.Offline) != 1 {
				continue
			}
			if v.Online[0].ID != "u1" || v.Offline[0].ID != "u2" {
				t.Fatalf("view = %+v", v)
			}
			if !r.IsAdmin("ana@example.com") {
				t.Error("IsAdmin(ana) = false")
			}
			if r.IsAdmin("budi@example.com") || r.IsAdmin("") {
				t.Error("IsAdmin true for non-admin")
			}
			return
		case <-deadline:
			t.Fatalf("timeout; view = %+v", r.View())
		}
	}
}
