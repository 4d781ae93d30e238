// Package rooms maps room keys to the users currently subscribed to them.
//
// A user is a member of a room while at least one of their connections has
// joined it, so membership is tracked per (user, connection) pair. Each room
// has its own lock; the directory index is sharded and only touched when a
// room is created or removed.
package rooms

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/orchestra-mcp/presence/src/types"
)

const shardCount = 64

type room struct {
	key types.RoomKey

	mu      sync.RWMutex
	members map[string]map[string]struct{} // user id -> connection ids
	dead    bool                           // removed from the index, must not be reused

	// fanout orders broadcasts that need a single sequence per room.
	fanout sync.Mutex
}

func (r *room) memberIDs(excluded string) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != excluded {
			ids = append(ids, id)
		}
	}
	return ids
}

type shard struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// Directory is a concurrent room membership index.
type Directory struct {
	shards [shardCount]shard
	count  atomic.Int64
}

// New creates an empty directory.
func New() *Directory {
	d := &Directory{}
	for i := range d.shards {
		d.shards[i].rooms = make(map[string]*room)
	}
	return d
}

func (d *Directory) shard(key string) *shard {
	return &d.shards[xxhash.Sum64String(key)%shardCount]
}

func (d *Directory) lookup(key types.RoomKey) *room {
	s := d.shard(key.String())
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[key.String()]
}

func (d *Directory) getOrCreate(key types.RoomKey) *room {
	k := key.String()
	s := d.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[k]
	if !ok {
		r = &room{key: key, members: make(map[string]map[string]struct{})}
		s.rooms[k] = r
		d.count.Add(1)
	}
	return r
}

func (d *Directory) remove(r *room) {
	k := r.key.String()
	s := d.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[k] == r {
		delete(s.rooms, k)
		d.count.Add(-1)
	}
}

// Join adds a connection of userID to the room, creating the room if
// needed. It reports whether the user was not a member before. Joining
// twice from the same connection has no further effect.
func (d *Directory) Join(key types.RoomKey, userID, connID string) bool {
	for {
		r := d.getOrCreate(key)
		r.mu.Lock()
		if r.dead {
			// Lost a race with the last leave; the index now points elsewhere.
			r.mu.Unlock()
			continue
		}
		conns, ok := r.members[userID]
		if !ok {
			conns = make(map[string]struct{})
			r.members[userID] = conns
		}
		conns[connID] = struct{}{}
		r.mu.Unlock()
		return !ok
	}
}

// Leave removes a connection of userID from the room. It reports whether
// the user has no connection left in the room. Rooms without members are
// deleted. Leaving a room or membership that does not exist returns false.
func (d *Directory) Leave(key types.RoomKey, userID, connID string) bool {
	r := d.lookup(key)
	if r == nil {
		return false
	}
	r.mu.Lock()
	conns, ok := r.members[userID]
	if !ok || r.dead {
		r.mu.Unlock()
		return false
	}
	if _, joined := conns[connID]; !joined {
		r.mu.Unlock()
		return false
	}
	delete(conns, connID)
	gone := len(conns) == 0
	if gone {
		delete(r.members, userID)
	}
	empty := len(r.members) == 0
	if empty {
		r.dead = true
	}
	r.mu.Unlock()

	if empty {
		d.remove(r)
	}
	return gone
}

// IsMember reports whether userID is subscribed to the room.
func (d *Directory) IsMember(key types.RoomKey, userID string) bool {
	r := d.lookup(key)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[userID]
	return ok
}

// Members returns the users subscribed to the room.
func (d *Directory) Members(key types.RoomKey) []string {
	return d.MembersExcept(key, "")
}

// MembersExcept returns the users subscribed to the room other than
// excluded. It never contains excluded.
func (d *Directory) MembersExcept(key types.RoomKey, excluded string) []string {
	r := d.lookup(key)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memberIDs(excluded)
}

// Sequence runs fn with a membership snapshot while holding the room's
// broadcast lock, so that broadcasts sequenced through it reach every
// recipient in the same order. It returns false if the room does not exist.
func (d *Directory) Sequence(key types.RoomKey, fn func(members []string)) bool {
	r := d.lookup(key)
	if r == nil {
		return false
	}
	r.fanout.Lock()
	defer r.fanout.Unlock()

	r.mu.RLock()
	if r.dead {
		r.mu.RUnlock()
		return false
	}
	members := r.memberIDs("")
	r.mu.RUnlock()

	fn(members)
	return true
}

// Summary describes one room.
type Summary struct {
	Key     types.RoomKey
	Members int
}

// Rooms returns every room with its member count, ordered by key.
func (d *Directory) Rooms() []Summary {
	var out []Summary
	for i := range d.shards {
		s := &d.shards[i]
		s.mu.RLock()
		rs := make([]*room, 0, len(s.rooms))
		for _, r := range s.rooms {
			rs = append(rs, r)
		}
		s.mu.RUnlock()

		for _, r := range rs {
			r.mu.RLock()
			out = append(out, Summary{Key: r.key, Members: len(r.members)})
			r.mu.RUnlock()
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Count returns the number of live rooms.
func (d *Directory) Count() int {
	return int(d.count.Load())
}
