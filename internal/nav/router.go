// Package nav is the navigation surface: the route table, the
// authentication guard on protected routes, and the current navigation
// target.
package nav

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Paths of the fixed routes.
const (
	PathRoot   = "/"
	PathLogin  = "/login"
	PathSignup = "/signup"
	PathChat   = "/chat"
)

// Kind identifies a route.
type Kind int

const (
	Login Kind = iota
	Signup
	Chat
)

// Route is a resolved navigation target.
type Route struct {
	Kind Kind
	// ConversationID is set for /chat/{id}.
	ConversationID string
}

// Path renders r back to its canonical path.
func (r Route) Path() string {
	switch r.Kind {
	case Login:
		return PathLogin
	case Signup:
		return PathSignup
	default:
		if r.ConversationID != "" {
			return ChatPath(r.ConversationID)
		}
		return PathChat
	}
}

// Protected reports whether r requires an authenticated session.
func (r Route) Protected() bool {
	return r.Kind == Chat
}

// ChatPath returns the conversation-scoped path for id.
func ChatPath(id string) string {
	return PathChat + "/" + url.PathEscape(id)
}

// Parse resolves path to a Route. "/" resolves to /chat.
func Parse(path string) (Route, error) {
	p := strings.TrimRight(path, "/")
	switch p {
	case "", PathChat:
		return Route{Kind: Chat}, nil
	case PathLogin:
		return Route{Kind: Login}, nil
	case PathSignup:
		return Route{Kind: Signup}, nil
	}
	if rest, ok := strings.CutPrefix(p, PathChat+"/"); ok && rest != "" && !strings.Contains(rest, "/") {
		id, err := url.PathUnescape(rest)
		if err != nil {
			return Route{}, fmt.Errorf("nav: bad conversation id in %q: %w", path, err)
		}
		return Route{Kind: Chat, ConversationID: id}, nil
	}
	return Route{}, fmt.Errorf("nav: unknown route %q", path)
}

// Router tracks the current route. Protected routes redirect to /login while
// the guard reports no session.
type Router struct {
	guard func() bool

	mu        sync.Mutex
	stack     []Route
	listeners []func(Route)
}

// NewRouter creates a Router positioned at /login. authenticated is consulted
// on every navigation to a protected route; nil treats every session as
// authenticated.
func NewRouter(authenticated func() bool) *Router {
	if authenticated == nil {
		authenticated = func() bool { return true }
	}
	return &Router{guard: authenticated, stack: []Route{{Kind: Login}}}
}

// OnNavigate registers fn to be called with the effective route after every
// navigation.
func (r *Router) OnNavigate(fn func(Route)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Navigate moves to path, pushing a history entry or replacing the current
// one. It returns the route actually reached, which is /login when a
// protected route was refused.
func (r *Router) Navigate(path string, replace bool) (Route, error) {
	route, err := Parse(path)
	if err != nil {
		return Route{}, err
	}
	if route.Protected() && !r.guard() {
		route = Route{Kind: Login}
		replace = true
	}

	r.mu.Lock()
	if replace {
		r.stack[len(r.stack)-1] = route
	} else {
		r.stack = append(r.stack, route)
	}
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(route)
	}
	return route, nil
}

// Back returns to the previous entry, if any, re-applying the guard.
func (r *Router) Back() (Route, bool) {
	r.mu.Lock()
	if len(r.stack) < 2 {
		r.mu.Unlock()
		return Route{}, false
	}
	r.stack = r.stack[:len(r.stack)-1]
	prev := r.stack[len(r.stack)-1]
	r.mu.Unlock()

	route, err := r.Navigate(prev.Path(), true)
	if err != nil {
		return Route{}, false
	}
	return route, true
}

// Current returns the current route.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack[len(r.stack)-1]
}

// Target returns the conversation id named by the current route, or "".
func (r *Router) Target() string {
	return r.Current().ConversationID
}
