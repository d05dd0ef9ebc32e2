package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/store"
)

var errSessionNotFound = errors.New("session not found")

// session is the state of one client: its uploaded images and an engine
// writing into the shared output directory. Requests on a session are
// serialised by mu.
type session struct {
	id     string
	mu     sync.Mutex
	store  *store.Store
	engine *engine.Engine
}

type registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) add(newSession func(id string) *session) *session {
	s := newSession(uuid.NewString())
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

func (r *registry) get(id string) (*session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errSessionNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return s, nil
}

func (r *registry) remove(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	delete(r.sessions, id)
	return s, nil
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
