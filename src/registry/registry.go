// Package registry tracks which users are online and which live
// connections belong to each of them.
//
// State is split into shards keyed by a hash of the user id (for user
// records) or the connection id (for the reverse binding), so unrelated
// users never contend on the same lock.
package registry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

const shardCount = 64

var (
	// ErrInvalidIdentity is returned when identify is called without a user id.
	ErrInvalidIdentity = errors.New("registry: user id is required")
	// ErrBoundElsewhere is returned when a connection is already bound to a
	// different user. Callers must drop the old binding first.
	ErrBoundElsewhere = errors.New("registry: connection is bound to another user")
)

// User is a snapshot of a user record.
type User struct {
	ID          string
	Name        string
	ConnectedAt time.Time
	Connections int
}

// Drop reports the outcome of removing a connection.
type Drop struct {
	User    User
	WasLast bool
}

type userRecord struct {
	id          string
	name        string
	connectedAt time.Time
	conns       map[string]struct{}
}

func (u *userRecord) snapshot() User {
	return User{ID: u.id, Name: u.name, ConnectedAt: u.connectedAt, Connections: len(u.conns)}
}

type userShard struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

type connShard struct {
	mu    sync.RWMutex
	conns map[string]string // connection id -> user id
}

// Registry maps user identities to their open connections.
type Registry struct {
	users  [shardCount]userShard
	conns  [shardCount]connShard
	total  atomic.Int64
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	r := &Registry{
		now:    time.Now,
		logger: logger.With().Str("component", "registry").Logger(),
	}
	for i := range r.users {
		r.users[i].users = make(map[string]*userRecord)
		r.conns[i].conns = make(map[string]string)
	}
	return r
}

func (r *Registry) userShard(userID string) *userShard {
	return &r.users[xxhash.Sum64String(userID)%shardCount]
}

func (r *Registry) connShard(connID string) *connShard {
	return &r.conns[xxhash.Sum64String(connID)%shardCount]
}

// Identify binds connID to userID. If the user is already present the
// connection is attached to the existing record and created is false; the
// stored name is kept. Identifying the same connection twice with the same
// user is a no-op.
func (r *Registry) Identify(connID, userID, name string) (user User, created bool, err error) {
	if userID == "" {
		return User{}, false, ErrInvalidIdentity
	}
	if bound, ok := r.ResolveUser(connID); ok && bound != userID {
		return User{}, false, ErrBoundElsewhere
	}

	us := r.userShard(userID)
	us.mu.Lock()
	rec, exists := us.users[userID]
	if !exists {
		rec = &userRecord{
			id:          userID,
			name:        name,
			connectedAt: r.now(),
			conns:       make(map[string]struct{}),
		}
		us.users[userID] = rec
		r.total.Add(1)
	}
	rec.conns[connID] = struct{}{}
	user = rec.snapshot()
	us.mu.Unlock()

	cs := r.connShard(connID)
	cs.mu.Lock()
	cs.conns[connID] = userID
	cs.mu.Unlock()

	if !exists {
		r.logger.Debug().Str("user_id", userID).Str("conn_id", connID).Msg("user created")
	} else {
		r.logger.Debug().
			Str("user_id", userID).
			Str("conn_id", connID).
			Int("connections", user.Connections).
			Msg("connection attached")
	}
	return user, !exists, nil
}

// ResolveUser returns the user a connection is bound to.
func (r *Registry) ResolveUser(connID string) (string, bool) {
	cs := r.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	userID, ok := cs.conns[connID]
	return userID, ok
}

// DropConnection removes a connection from its user. When it was the last
// one the user record is deleted and WasLast is set. The bool result is
// false for connections that were never identified.
func (r *Registry) DropConnection(connID string) (Drop, bool) {
	cs := r.connShard(connID)
	cs.mu.Lock()
	userID, ok := cs.conns[connID]
	delete(cs.conns, connID)
	cs.mu.Unlock()
	if !ok {
		return Drop{}, false
	}

	us := r.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	rec, ok := us.users[userID]
	if !ok {
		return Drop{}, false
	}
	delete(rec.conns, connID)
	d := Drop{User: rec.snapshot()}
	if len(rec.conns) == 0 {
		delete(us.users, userID)
		r.total.Add(-1)
		d.WasLast = true
	}
	return d, true
}

// Lookup returns a snapshot of a user record.
func (r *Registry) Lookup(userID string) (User, bool) {
	us := r.userShard(userID)
	us.mu.RLock()
	defer us.mu.RUnlock()
	rec, ok := us.users[userID]
	if !ok {
		return User{}, false
	}
	return rec.snapshot(), true
}

// Connections returns the ids of all open connections of a user.
func (r *Registry) Connections(userID string) []string {
	us := r.userShard(userID)
	us.mu.RLock()
	defer us.mu.RUnlock()
	rec, ok := us.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rec.conns))
	for id := range rec.conns {
		ids = append(ids, id)
	}
	return ids
}

// Users returns every online user ordered by first connection time.
func (r *Registry) Users() []User {
	out := make([]User, 0, r.Count())
	for i := range r.users {
		s := &r.users[i]
		s.mu.RLock()
		for _, rec := range s.users {
			out = append(out, rec.snapshot())
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	return int(r.total.Load())
}
