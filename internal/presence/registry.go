// Package presence tracks who is connected and which terminal room each
// connection currently occupies.
package presence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrDuplicateConnection = errors.New("connection already registered")

// AnonymousUsername is used when a connection does not supply a display name.
const AnonymousUsername = "Anonymous"

// Connection is a snapshot of one live participant. Scope is "" when the
// connection is only in the global audience.
type Connection struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Scope       string    `json:"active_terminal,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry is the authoritative connection table. Membership per terminal is
// indexed incrementally so MembersOf does not scan every connection.
//
// A connection's scope and its entry in byScope are always updated under the
// same lock, so a connection is a member of at most one terminal.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	byScope map[string]map[string]struct{}
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*Connection),
		byScope: make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Add registers id with no active scope. Registering an id twice is rejected
// and leaves the existing entry untouched.
func (r *Registry) Add(id, username string) (Connection, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = AnonymousUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		return Connection{}, fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	c := &Connection{ID: id, Username: username, ConnectedAt: r.now()}
	r.conns[id] = c
	return *c, nil
}

// Remove deletes id and returns its last state.
func (r *Registry) Remove(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	r.vacate(id, c.Scope)
	delete(r.conns, id)
	return *c, true
}

// SetScope moves id into scope ("" leaves every terminal) and returns the
// scope it occupied before. ok is false when id is unknown.
func (r *Registry) SetScope(id, scope string) (prev string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return "", false
	}
	prev = c.Scope
	if prev == scope {
		return prev, true
	}

	r.vacate(id, prev)
	c.Scope = scope
	if scope != "" {
		members := r.byScope[scope]
		if members == nil {
			members = make(map[string]struct{})
			r.byScope[scope] = members
		}
		members[id] = struct{}{}
	}
	return prev, true
}

// vacate drops id from scope's index. Callers hold r.mu.
func (r *Registry) vacate(id, scope string) {
	if scope == "" {
		return
	}
	members := r.byScope[scope]
	delete(members, id)
	if len(members) == 0 {
		delete(r.byScope, scope)
	}
}

func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// All returns a snapshot of every connection, oldest first.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, *c)
	}
	r.mu.RUnlock()

	sortConnections(out)
	return out
}

// IDs returns the ids of every registered connection.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// MembersOf returns the ids of connections whose active scope is scope.
func (r *Registry) MembersOf(scope string) []string {
	if scope == "" {
		return nil
	}

	r.mu.RLock()
	members := r.byScope[scope]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// ConnectionsIn returns snapshots of the connections occupying scope.
func (r *Registry) ConnectionsIn(scope string) []Connection {
	if scope == "" {
		return []Connection{}
	}

	r.mu.RLock()
	members := r.byScope[scope]
	out := make([]Connection, 0, len(members))
	for id := range members {
		out = append(out, *r.conns[id])
	}
	r.mu.RUnlock()

	sortConnections(out)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func sortConnections(cs []Connection) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].ConnectedAt.Equal(cs[j].ConnectedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].ConnectedAt.Before(cs[j].ConnectedAt)
	})
}
