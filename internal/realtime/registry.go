package realtime

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/observability"
)

const (
	defaultSendBuffer = 32
	defaultShardCount = 32
)

var (
	// ErrUnauthenticated rejects admission of a transport without a verified identity.
	ErrUnauthenticated = errors.New("realtime: connection has no verified identity")
	// ErrUnknownConnection is returned for connections that were never admitted or were dropped.
	ErrUnknownConnection = errors.New("realtime: unknown connection")
	// ErrPersonalRoom is returned when a connection tries to leave its own personal room.
	ErrPersonalRoom = errors.New("realtime: personal room cannot be left")
)

// RegistryOptions tunes the connection registry.
type RegistryOptions struct {
	SendBuffer int
	Shards     int
}

// RegistryStats is a point-in-time view of the registry.
type RegistryStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Registry tracks live connections and their room memberships.
//
// Room membership lives in hash-sharded maps so joins on unrelated rooms do
// not contend. Lock order is connection.mu then shard.mu.
type Registry struct {
	shards     []*roomShard
	connMu     sync.RWMutex
	conns      map[string]*Connection
	sendBuffer int
	logger     zerolog.Logger
	now        func() time.Time
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[RoomKey]map[string]*Connection
}

// NewRegistry builds an empty registry. It is created once per process and
// passed to everything that needs it.
func NewRegistry(opts RegistryOptions, logger zerolog.Logger) *Registry {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	shardCount := opts.Shards
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}

	shards := make([]*roomShard, shardCount)
	for i := range shards {
		shards[i] = &roomShard{rooms: make(map[RoomKey]map[string]*Connection)}
	}

	return &Registry{
		shards:     shards,
		conns:      make(map[string]*Connection),
		sendBuffer: buffer,
		logger:     logger.With().Str("component", "realtime_registry").Logger(),
		now:        time.Now,
	}
}

// Admit registers a transport for an authenticated profile and joins it to
// the profile's personal room. A zero identity is rejected before anything is
// registered.
func (r *Registry) Admit(transport Transport, identity uint) (*Connection, error) {
	if identity == 0 {
		return nil, ErrUnauthenticated
	}
	if transport == nil {
		return nil, errors.New("realtime: transport is required")
	}

	conn := newConnection(uuid.NewString(), identity, transport, r.sendBuffer, r.now().UTC())

	r.connMu.Lock()
	r.conns[conn.id] = conn
	r.connMu.Unlock()
	observability.RealtimeConnectionsActive().Inc()

	if _, err := r.join(conn, UserRoom(identity)); err != nil {
		r.DropAll(conn.id)
		return nil, err
	}

	r.logger.Debug().Str("connection_id", conn.id).Uint("profile_id", identity).Msg("connection admitted")
	return conn, nil
}

// Lookup returns an admitted connection.
func (r *Registry) Lookup(connID string) (*Connection, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Join adds the connection to room and returns a handle that leaves it again.
// Joining a room twice is a no-op that returns a fresh handle for the same membership.
func (r *Registry) Join(connID string, room RoomKey) (*Membership, error) {
	conn, ok := r.Lookup(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	return r.join(conn, room)
}

func (r *Registry) join(conn *Connection, room RoomKey) (*Membership, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.dropped {
		return nil, ErrUnknownConnection
	}

	if _, exists := conn.rooms[room]; !exists {
		shard := r.shard(room)
		shard.mu.Lock()
		members, ok := shard.rooms[room]
		if !ok {
			members = make(map[string]*Connection)
			shard.rooms[room] = members
		}
		members[conn.id] = conn
		shard.mu.Unlock()

		conn.rooms[room] = struct{}{}
		observability.RealtimeRoomJoins().Inc()
	}

	return &Membership{registry: r, connID: conn.id, room: room}, nil
}

// Leave removes the connection from room. Leaving a room that was never
// joined is a no-op.
func (r *Registry) Leave(connID string, room RoomKey) error {
	conn, ok := r.Lookup(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if room == UserRoom(conn.identity) {
		return ErrPersonalRoom
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if _, joined := conn.rooms[room]; !joined {
		return nil
	}
	delete(conn.rooms, room)
	r.removeFromShard(room, conn.id)
	return nil
}

// DropAll releases every room the connection holds, forgets it and closes its
// transport. It returns the rooms that were released.
func (r *Registry) DropAll(connID string) []RoomKey {
	r.connMu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.connMu.Unlock()

	if !ok {
		return nil
	}

	conn.mu.Lock()
	conn.dropped = true
	released := make([]RoomKey, 0, len(conn.rooms))
	for room := range conn.rooms {
		r.removeFromShard(room, conn.id)
		released = append(released, room)
	}
	conn.rooms = make(map[RoomKey]struct{})
	conn.mu.Unlock()

	conn.shutdown()
	observability.RealtimeConnectionsActive().Dec()
	r.logger.Debug().Str("connection_id", conn.id).Uint("profile_id", conn.identity).Int("rooms", len(released)).Msg("connection dropped")
	return released
}

// Snapshot copies the set of connections joined to room at this instant.
func (r *Registry) Snapshot(room RoomKey) []*Connection {
	shard := r.shard(room)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	members := shard.rooms[room]
	out := make([]*Connection, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// ConnectionsFor lists the live connections of a profile.
func (r *Registry) ConnectionsFor(identity uint) []*Connection {
	return r.Snapshot(UserRoom(identity))
}

// Stats counts live connections and non-empty rooms.
func (r *Registry) Stats() RegistryStats {
	r.connMu.RLock()
	connections := len(r.conns)
	r.connMu.RUnlock()

	rooms := 0
	for _, shard := range r.shards {
		shard.mu.RLock()
		rooms += len(shard.rooms)
		shard.mu.RUnlock()
	}

	return RegistryStats{Connections: connections, Rooms: rooms}
}

func (r *Registry) removeFromShard(room RoomKey, connID string) {
	shard := r.shard(room)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if members, ok := shard.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(shard.rooms, room)
		}
	}
}

func (r *Registry) shard(room RoomKey) *roomShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Membership is a scoped room join. Release is safe to call more than once
// and after the connection has been dropped.
type Membership struct {
	registry *Registry
	connID   string
	room     RoomKey
	once     sync.Once
}

// Room returns the joined room.
func (m *Membership) Room() RoomKey {
	return m.room
}

// Release leaves the room.
func (m *Membership) Release() {
	m.once.Do(func() {
		if err := m.registry.Leave(m.connID, m.room); err != nil && !errors.Is(err, ErrUnknownConnection) {
			m.registry.logger.Debug().Err(err).Str("room", m.room.String()).Msg("membership release failed")
		}
	})
}
