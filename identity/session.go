package identity

import (
	"maps"
	"slices"
	"sync"

	"github.com/heartbeatlive/go-heartbeat/core"
)

type Provider = core.IdentityProvider

// Session holds the signed-in identity and its session token, and fans
// identity changes out to subscribers. Listeners run synchronously on the
// goroutine that changed the session.
type Session struct {
	mu        sync.RWMutex
	identity  core.Identity
	token     string
	listeners map[int]func(core.Identity)
	nextID    int
}

func NewSession() *Session {
	return &Session{listeners: map[int]func(core.Identity){}}
}

func (s *Session) Current() (core.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, !s.identity.IsZero()
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the identity and token. Subscribers are notified only when
// the identity actually changed.
func (s *Session) Set(identity core.Identity, token string) {
	s.mu.Lock()
	changed := s.identity != identity
	s.identity = identity
	s.token = token
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		notify(listeners, identity)
	}
}

func (s *Session) Clear() {
	s.Set(core.Identity{}, "")
}

// Subscribe registers listener and returns a function that removes it.
func (s *Session) Subscribe(listener func(core.Identity)) func() {
	if listener == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = map[int]func(core.Identity){}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) snapshotListeners() []func(core.Identity) {
	ids := slices.Sorted(maps.Keys(s.listeners))
	out := make([]func(core.Identity), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

func notify(listeners []func(core.Identity), identity core.Identity) {
	for _, listener := range listeners {
		listener(identity)
	}
}
