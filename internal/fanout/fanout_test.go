package fanout

import (
	"testing"
	"time"
)

func TestLocalNotifyReachesWatcher(t *testing.T) {
	l := NewLocal(nil)
	hits := make(chan struct{}, 4)
	stop, err := l.Watch(Messages, func() { hits <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := l.Notify(Messages); err != nil {
		t.Fatal(err)
	}

	select {
	case <-hits:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change notification")
	}
}

func TestLocalCollectionsAreIsolated(t *testing.T) {
	l := NewLocal(nil)
	hits := make(chan struct{}, 4)
	stop, err := l.Watch(Profiles, func() { hits <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	_ = l.Notify(Messages)

	select {
	case <-hits:
		t.Fatal("profiles watcher received a messages notification")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalStopIsIdempotent(t *testing.T) {
	l := NewLocal(nil)
	hits := make(chan struct{}, 4)
	stop, err := l.Watch(Messages, func() { hits <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	stop()
	stop()

	_ = l.Notify(Messages)
	select {
	case <-hits:
		t.Fatal("notification delivered after stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix, collection, want string
	}{
		{"chitchat", Messages, "chitchat.messages.changed"},
		{"team.", Profiles, "team.profiles.changed"},
	}
	for _, tt := range tests {
		if got := Subject(tt.prefix, tt.collection); got != tt.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tt.prefix, tt.collection, got, tt.want)
		}
	}
}
