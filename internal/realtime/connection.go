package realtime

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

const defaultPingInterval = 30 * time.Second

// Transport is the write side of a client socket. *websocket.Conn satisfies it.
type Transport interface {
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection is one live client socket owned by the Registry.
type Connection struct {
	id        string
	identity  uint
	transport Transport
	send      chan Envelope
	closed    chan struct{}
	once      sync.Once
	resync    atomic.Bool
	openedAt  time.Time

	mu      sync.Mutex
	rooms   map[RoomKey]struct{}
	dropped bool
}

func newConnection(id string, identity uint, transport Transport, buffer int, openedAt time.Time) *Connection {
	return &Connection{
		id:        id,
		identity:  identity,
		transport: transport,
		send:      make(chan Envelope, buffer),
		closed:    make(chan struct{}),
		openedAt:  openedAt,
		rooms:     make(map[RoomKey]struct{}),
	}
}

// ID returns the connection identifier assigned at admission.
func (c *Connection) ID() string {
	return c.id
}

// Identity returns the profile that owns the connection.
func (c *Connection) Identity() uint {
	return c.identity
}

// OpenedAt returns the admission time.
func (c *Connection) OpenedAt() time.Time {
	return c.openedAt
}

// Rooms returns the rooms the connection is currently joined to, sorted.
func (c *Connection) Rooms() []RoomKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]RoomKey, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// InRoom reports whether the connection is joined to room.
func (c *Connection) InRoom(room RoomKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// Done is closed once the connection has been dropped.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// NeedsResync reports whether at least one event was dropped for this
// connection since the last resync frame was written.
func (c *Connection) NeedsResync() bool {
	return c.resync.Load()
}

// Enqueue hands an envelope to the connection's writer without blocking.
// A full queue drops the envelope for this connection only and flags it for resync.
func (c *Connection) Enqueue(envelope Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- envelope:
		return true
	default:
		c.resync.Store(true)
		return false
	}
}

// WritePump drains the send queue into the transport until the connection is
// dropped or a write fails. It is the only goroutine writing to the transport.
func (c *Connection) WritePump(pingInterval time.Duration, logger zerolog.Logger) {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case envelope := <-c.send:
			if err := c.transport.WriteJSON(envelope); err != nil {
				logger.Debug().Err(err).Str("connection_id", c.id).Msg("realtime write loop terminated")
				c.shutdown()
				return
			}
			if len(c.send) == 0 && c.resync.CompareAndSwap(true, false) {
				if err := c.transport.WriteJSON(resyncEnvelope(time.Now().UTC())); err != nil {
					logger.Debug().Err(err).Str("connection_id", c.id).Msg("realtime resync write failed")
					c.shutdown()
					return
				}
			}
		case <-ticker.C:
			if err := c.transport.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Str("connection_id", c.id).Msg("realtime ping failed")
				c.shutdown()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.transport.Close()
	})
}
