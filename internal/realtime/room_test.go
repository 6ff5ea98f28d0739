package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeRoom(t *testing.T) {
	room, err := ScopeRoom("channel", 4)
	require.NoError(t, err)
	require.Equal(t, RoomKey("channel:4"), room)

	room, err = ScopeRoom("conversation", 11)
	require.NoError(t, err)
	require.Equal(t, RoomKey("conversation:11"), room)
	require.Equal(t, RoomKindConversation, room.Kind())

	_, err = ScopeRoom("server", 1)
	require.Error(t, err)
}

func TestParseRoomKey(t *testing.T) {
	kind, id, err := ParseRoomKey("user:42")
	require.NoError(t, err)
	require.Equal(t, RoomKindUser, kind)
	require.Equal(t, uint(42), id)

	for _, raw := range []string{"", "channel", "channel:", "guild:1", "channel:0", "channel:abc"} {
		_, _, err := ParseRoomKey(raw)
		require.Error(t, err, raw)
	}
}
