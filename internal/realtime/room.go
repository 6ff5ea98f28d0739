package realtime

import (
	"fmt"
	"strconv"
	"strings"
)

// Room kinds.
const (
	RoomKindUser         = "user"
	RoomKindChannel      = "channel"
	RoomKindConversation = "conversation"
)

// RoomKey names a multicast group as "<kind>:<id>". Rooms are not persisted;
// they exist only as the set of connections currently joined.
type RoomKey string

// UserRoom is the personal room every connection of a profile joins.
func UserRoom(profileID uint) RoomKey {
	return roomKey(RoomKindUser, profileID)
}

// ChannelRoom is the broadcast room of a channel.
func ChannelRoom(channelID uint) RoomKey {
	return roomKey(RoomKindChannel, channelID)
}

// ConversationRoom is the broadcast room of a direct conversation.
func ConversationRoom(conversationID uint) RoomKey {
	return roomKey(RoomKindConversation, conversationID)
}

// ScopeRoom maps a scope type ("channel" or "conversation") to its room.
func ScopeRoom(scopeType string, scopeID uint) (RoomKey, error) {
	switch scopeType {
	case RoomKindChannel:
		return ChannelRoom(scopeID), nil
	case RoomKindConversation:
		return ConversationRoom(scopeID), nil
	default:
		return "", fmt.Errorf("unknown scope type %q", scopeType)
	}
}

// ParseRoomKey splits a key into its kind and id.
func ParseRoomKey(raw string) (string, uint, error) {
	kind, id, ok := strings.Cut(raw, ":")
	if !ok || kind == "" || id == "" {
		return "", 0, fmt.Errorf("malformed room key %q", raw)
	}
	switch kind {
	case RoomKindUser, RoomKindChannel, RoomKindConversation:
	default:
		return "", 0, fmt.Errorf("unknown room kind %q", kind)
	}
	parsed, err := strconv.ParseUint(id, 10, 64)
	if err != nil || parsed == 0 {
		return "", 0, fmt.Errorf("invalid room id %q", id)
	}
	return kind, uint(parsed), nil
}

// Kind returns the kind prefix of the key.
func (k RoomKey) Kind() string {
	kind, _, _ := strings.Cut(string(k), ":")
	return kind
}

func (k RoomKey) String() string {
	return string(k)
}

func roomKey(kind string, id uint) RoomKey {
	return RoomKey(kind + ":" + strconv.FormatUint(uint64(id), 10))
}
