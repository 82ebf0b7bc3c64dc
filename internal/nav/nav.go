// Package nav decides which screen the session may show.
package nav

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/matheus3301/chitchat/internal/status"
)

// Screen is a logical screen.
type Screen string

const (
	Landing Screen = "landing"
	Login   Screen = "login"
	Verify  Screen = "verify-otp"
	Chat    Screen = "chat"
)

// Route is a screen plus its parameters.
type Route struct {
	Screen      Screen
	PhoneNumber string // Verify only
}

// String renders the route as a path, e.g. "verify-otp?phoneNumber=%2B62812...".
func (r Route) String() string {
	if r.Screen == Verify && r.PhoneNumber != "" {
		return string(r.Screen) + "?" + url.Values{"phoneNumber": {r.PhoneNumber}}.Encode()
	}
	return string(r.Screen)
}

// ParseRoute parses the form produced by Route.String.
func ParseRoute(s string) (Route, error) {
	path, query, _ := strings.Cut(strings.TrimPrefix(s, "/"), "?")
	r := Route{Screen: Screen(path)}
	switch r.Screen {
	case Landing, Login, Chat:
	case Verify:
		q, err := url.ParseQuery(query)
		if err != nil {
			return Route{}, fmt.Errorf("parse route %q: %w", s, err)
		}
		r.PhoneNumber = q.Get("phoneNumber")
	default:
		return Route{}, fmt.Errorf("unknown screen %q", path)
	}
	return r, nil
}

// Decide applies the navigation policy. It returns the screen to redirect to,
// or false when current may stay. Nothing moves while the state is unresolved.
func Decide(state status.State, current Screen) (Screen, bool) {
	if !state.Resolved() {
		return "", false
	}
	if state == status.Authenticated {
		switch current {
		case Login, Verify, Landing:
			return Chat, true
		}
		return "", false
	}
	switch current {
	case Login, Verify:
		return "", false
	}
	return Login, true
}

// Navigator re-applies the policy on every state or screen change and reports
// redirects to onRedirect. Re-applying it on the target screen does nothing.
type Navigator struct {
	mu         sync.Mutex
	state      status.State
	route      Route
	onRedirect func(Route)
}

// NewNavigator starts on the landing screen in the Loading state.
func NewNavigator(onRedirect func(Route)) *Navigator {
	if onRedirect == nil {
		onRedirect = func(Route) {}
	}
	return &Navigator{state: status.Loading, route: Route{Screen: Landing}, onRedirect: onRedirect}
}

// Route returns the current route.
func (n *Navigator) Route() Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// SetState records a session state change.
func (n *Navigator) SetState(s status.State) {
	n.mu.Lock()
	n.state = s
	n.apply()
}

// Go records a user-initiated screen change.
func (n *Navigator) Go(r Route) {
	n.mu.Lock()
	n.route = r
	n.apply()
}

// apply must be called with n.mu held; it releases it.
func (n *Navigator) apply() {
	target, ok := Decide(n.state, n.route.Screen)
	if !ok {
		n.mu.Unlock()
		return
	}
	n.route = Route{Screen: target}
	r := n.route
	n.mu.Unlock()
	n.onRedirect(r)
}
