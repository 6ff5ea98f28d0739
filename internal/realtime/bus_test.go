package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBusPublishReachesOnlyRoomMembers(t *testing.T) {
	registry := newTestRegistry(8)
	bus := NewBus(registry, nil, zerolog.Nop())

	member, err := registry.Admit(&fakeTransport{}, 1)
	require.NoError(t, err)
	outsider, err := registry.Admit(&fakeTransport{}, 2)
	require.NoError(t, err)
	_, err = registry.Join(member.ID(), ChannelRoom(10))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), ChannelRoom(10), EventMessageNew, map[string]string{"content": "hello"}))

	require.Len(t, member.send, 1)
	require.Len(t, outsider.send, 0)

	envelope := <-member.send
	require.Equal(t, EventMessageNew, envelope.Event)
	require.Equal(t, ChannelRoom(10), envelope.Room)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	require.Equal(t, "hello", payload["content"])
}

func TestBusPublishSkipsDroppedConnections(t *testing.T) {
	registry := newTestRegistry(8)
	bus := NewBus(registry, nil, zerolog.Nop())

	conn, err := registry.Admit(&fakeTransport{}, 1)
	require.NoError(t, err)
	_, err = registry.Join(conn.ID(), ChannelRoom(10))
	require.NoError(t, err)

	registry.DropAll(conn.ID())

	envelope, err := NewEnvelope(ChannelRoom(10), EventMessageNew, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, bus.Deliver(envelope))
	require.Len(t, conn.send, 0)
}

func TestBusFullQueueDropsForSlowConnectionOnly(t *testing.T) {
	registry := newTestRegistry(1)
	bus := NewBus(registry, nil, zerolog.Nop())

	slow, err := registry.Admit(&fakeTransport{}, 1)
	require.NoError(t, err)
	fast, err := registry.Admit(&fakeTransport{}, 2)
	require.NoError(t, err)
	for _, conn := range []*Connection{slow, fast} {
		_, err := registry.Join(conn.ID(), ChannelRoom(4))
		require.NoError(t, err)
	}

	envelope, err := NewEnvelope(ChannelRoom(4), EventMessageNew, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, bus.Deliver(envelope))

	// drain the fast connection only
	<-fast.send

	require.Equal(t, 1, bus.Deliver(envelope))
	require.True(t, slow.NeedsResync())
	require.False(t, fast.NeedsResync())
}

func TestWritePumpSendsResyncAfterDrop(t *testing.T) {
	registry := newTestRegistry(1)
	transport := &fakeTransport{}
	conn, err := registry.Admit(transport, 1)
	require.NoError(t, err)

	first, err := NewEnvelope(UserRoom(1), EventNotificationNew, nil, time.Now())
	require.NoError(t, err)
	require.True(t, conn.Enqueue(first))
	require.False(t, conn.Enqueue(first))
	require.True(t, conn.NeedsResync())

	go conn.WritePump(time.Hour, zerolog.Nop())
	defer registry.DropAll(conn.ID())

	require.Eventually(t, func() bool {
		return len(transport.events()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{EventNotificationNew, EventResync}, transport.events())
	require.False(t, conn.NeedsResync())
}

func TestWritePumpShutsDownOnWriteFailure(t *testing.T) {
	registry := newTestRegistry(4)
	transport := &fakeTransport{failOn: 1}
	conn, err := registry.Admit(transport, 1)
	require.NoError(t, err)

	envelope, err := NewEnvelope(UserRoom(1), EventNotificationNew, nil, time.Now())
	require.NoError(t, err)
	require.True(t, conn.Enqueue(envelope))

	done := make(chan struct{})
	go func() {
		conn.WritePump(time.Hour, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop after a failed write")
	}
	require.True(t, transport.isClosed())
	require.False(t, conn.Enqueue(envelope))

	registry.DropAll(conn.ID())
}

func TestBusSendBypassesRooms(t *testing.T) {
	registry := newTestRegistry(4)
	bus := NewBus(registry, nil, zerolog.Nop())

	conn, err := registry.Admit(&fakeTransport{}, 1)
	require.NoError(t, err)

	require.NoError(t, bus.Send(conn, EventSessionReady, map[string]string{"connection_id": conn.ID()}))
	envelope := <-conn.send
	require.Equal(t, EventSessionReady, envelope.Event)
	require.Empty(t, envelope.Room)
}
