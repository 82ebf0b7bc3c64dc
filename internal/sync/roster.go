package sync

import (
	"strings"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/fanout"
	"github.com/matheus3301/chitchat/internal/store"
	"github.com/matheus3301/chitchat/internal/stream"
)

// RosterView is the roster split by presence.
type RosterView struct {
	Online  []store.UserProfile `json:"online"`
	Offline []store.UserProfile `json:"offline"`
}

// Total is the number of profiles in the view.
func (v RosterView) Total() int { return len(v.Online) + len(v.Offline) }

// Partition splits profiles into online and offline, keeping their order.
func Partition(profiles []store.UserProfile) RosterView {
	v := RosterView{Online: []store.UserProfile{}, Offline: []store.UserProfile{}}
	for _, p := range profiles {
		if p.IsOnline() {
			v.Online = append(v.Online, p)
		} else {
			v.Offline = append(v.Offline, p)
		}
	}
	return v
}

// Roster is the live view of the profile collection.
type Roster struct {
	f *follower[store.UserProfile]

	mu       gosync.RWMutex
	profiles []store.UserProfile
	admins   map[string]bool
	ready    bool
}

// NewRoster creates a stopped synchronizer over src.
func NewRoster(src stream.Source[store.UserProfile], b *bus.Bus, logger *zap.Logger) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Roster{admins: map[string]bool{}}
	r.f = &follower[store.UserProfile]{
		source:       src,
		collection:   fanout.Profiles,
		snapshotKind: bus.RosterSnapshot,
		errorKind:    bus.RosterStreamError,
		validate:     func(p store.UserProfile) (string, error) { return p.ID, p.Validate() },
		apply:        r.apply,
		reset:        r.reset,
		bus:          b,
		logger:       logger,
	}
	return r
}

// Start opens the subscription, closing any previous one first.
func (r *Roster) Start() error { return r.f.start() }

// Stop closes the subscription and clears the view.
func (r *Roster) Stop() { r.f.stop() }

// Active reports whether a subscription is open.
func (r *Roster) Active() bool { return r.f.active() }

// Err returns the last subscription error, cleared by the next snapshot.
func (r *Roster) Err() error { return r.f.err() }

// Ready reports whether at least one snapshot has arrived.
func (r *Roster) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// View returns the current partitioned roster.
func (r *Roster) View() RosterView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Partition(r.profiles)
}

// IsAdmin reports whether email belongs to a profile with the admin role.
func (r *Roster) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[email]
}

func (r *Roster) apply(valid []store.UserProfile) any {
	admins := make(map[string]bool)
	for _, p := range valid {
		if p.IsAdmin() && p.Email != "" {
			admins[strings.ToLower(p.Email)] = true
		}
	}
	r.mu.Lock()
	r.profiles = valid
	r.admins = admins
	r.ready = true
	r.mu.Unlock()
	return Partition(valid)
}

func (r *Roster) reset() {
	r.mu.Lock()
	r.profiles = nil
	r.admins = map[string]bool{}
	r.ready = false
	r.mu.Unlock()
}
