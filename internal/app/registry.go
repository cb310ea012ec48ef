package app

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

// connEntry is the registry-owned record of one live connection.
type connEntry struct {
	id     core.ConnectionID
	tenant domain.TenantID
	user   domain.UserID
	role   domain.Role
	conn   core.ClientConnection
	rooms  map[domain.RoomName]struct{}
}

// Registry is the membership index: connection records plus the mirrored
// room-to-members map. One mutex covers both directions, so membersOf
// always observes a state where every membership has its mirror entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnectionID]*connEntry
	rooms map[domain.RoomName]map[core.ConnectionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnectionID]*connEntry),
		rooms: make(map[domain.RoomName]map[core.ConnectionID]struct{}),
	}
}

// Register admits a connection and places it in its tenant-wide room.
// The tenant is fixed here for the connection's lifetime.
func (r *Registry) Register(id core.ConnectionID, tenant domain.TenantID, user domain.UserID, role domain.Role, conn core.ClientConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return fmt.Errorf("%w: %s", core.ErrDuplicateConnection, id)
	}
	entry := &connEntry{
		id:     id,
		tenant: tenant,
		user:   user,
		role:   role,
		conn:   conn,
		rooms:  make(map[domain.RoomName]struct{}),
	}
	r.conns[id] = entry
	r.addToRoom(entry, domain.TenantRoom(tenant))
	log.Info().Str("module", "app.registry").Str("sid", string(id)).
		Int64("tenant_id", int64(tenant)).Int64("user_id", int64(user)).
		Str("user_type", string(role)).Msg("connection registered")
	return nil
}

// Unregister removes the connection from every room it joined. Absent ids
// are a no-op: disconnect can race with other cleanup.
func (r *Registry) Unregister(id core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return
	}
	for room := range entry.rooms {
		r.dropFromRoom(id, room)
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).
		Int64("tenant_id", int64(entry.tenant)).Msg("connection unregistered")
}

// JoinRoom adds the connection to a room. Joining a room twice is a no-op.
func (r *Registry) JoinRoom(id core.ConnectionID, room domain.RoomName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownConnection, id)
	}
	if _, ok := entry.rooms[room]; ok {
		return nil
	}
	r.addToRoom(entry, room)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).
		Str("room", string(room)).Msg("joined room")
	return nil
}

// LeaveRoom removes the connection from a room. Leaving a room it is not
// in is a no-op; leaving the tenant-wide room is forbidden.
func (r *Registry) LeaveRoom(id core.ConnectionID, room domain.RoomName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownConnection, id)
	}
	if room == domain.TenantRoom(entry.tenant) {
		return core.ErrForbiddenLeave
	}
	if _, ok := entry.rooms[room]; !ok {
		return nil
	}
	delete(entry.rooms, room)
	r.dropFromRoom(id, room)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).
		Str("room", string(room)).Msg("left room")
	return nil
}

// Member pairs a connection id with its transport endpoint for fan-out.
type Member struct {
	ID   core.ConnectionID
	Conn core.ClientConnection
}

// MembersOf returns the current members of a room. Unknown rooms yield an
// empty slice, never an error.
func (r *Registry) MembersOf(room domain.RoomName) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]Member, 0, len(ids))
	for id := range ids {
		out = append(out, Member{ID: id, Conn: r.conns[id].conn})
	}
	return out
}

// TenantOf reports the tenant the connection was admitted into.
func (r *Registry) TenantOf(id core.ConnectionID) (domain.TenantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[id]
	if !ok {
		return 0, false
	}
	return entry.tenant, true
}

// Snapshot returns a summary of every live connection for introspection.
// Ordering is only stable within one call.
func (r *Registry) Snapshot() []core.ConnectionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnectionSummary, 0, len(r.conns))
	for id, entry := range r.conns {
		rooms := make([]domain.RoomName, 0, len(entry.rooms))
		for room := range entry.rooms {
			rooms = append(rooms, room)
		}
		out = append(out, core.ConnectionSummary{
			ID:       id,
			TenantID: entry.tenant,
			UserID:   entry.user,
			Role:     entry.role,
			Rooms:    rooms,
		})
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// addToRoom and dropFromRoom keep both index directions in step.
// Callers hold the write lock.
func (r *Registry) addToRoom(entry *connEntry, room domain.RoomName) {
	entry.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[core.ConnectionID]struct{})
		r.rooms[room] = members
	}
	members[entry.id] = struct{}{}
}

func (r *Registry) dropFromRoom(id core.ConnectionID, room domain.RoomName) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
