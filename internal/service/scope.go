package service

import (
	"context"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// resolvedScope is a channel or conversation together with everyone allowed in it.
type resolvedScope struct {
	Scope    dto.Scope
	Name     string
	ServerID uint
	Members  []models.Member
}

func (s resolvedScope) room() realtime.RoomKey {
	return s.Scope.Room()
}

func (s resolvedScope) memberFor(profileID uint) (models.Member, bool) {
	for _, member := range s.Members {
		if member.ProfileID == profileID {
			return member, true
		}
	}
	return models.Member{}, false
}

// otherProfiles lists every member profile except the given one.
func (s resolvedScope) otherProfiles(profileID uint) []uint {
	out := make([]uint, 0, len(s.Members))
	for _, member := range s.Members {
		if member.ProfileID != profileID {
			out = append(out, member.ProfileID)
		}
	}
	return out
}

// label is how the scope is named in notification text.
func (s resolvedScope) label() string {
	if s.Scope.Type == models.ScopeConversation {
		return "a direct message"
	}
	return "#" + s.Name
}

// scopeResolver loads scopes and their membership.
type scopeResolver struct {
	repo repository.ScopeRepository
}

func (r scopeResolver) resolve(ctx context.Context, scope dto.Scope) (resolvedScope, error) {
	switch scope.Type {
	case models.ScopeChannel:
		channel, err := r.repo.FindChannel(ctx, scope.ID)
		if err != nil {
			return resolvedScope{}, lookup(err, "channel")
		}
		members, err := r.repo.ListServerMembers(ctx, channel.ServerID)
		if err != nil {
			return resolvedScope{}, err
		}
		return resolvedScope{
			Scope:    scope,
			Name:     channel.Name,
			ServerID: channel.ServerID,
			Members:  members,
		}, nil
	case models.ScopeConversation:
		conversation, err := r.repo.FindConversation(ctx, scope.ID)
		if err != nil {
			return resolvedScope{}, lookup(err, "conversation")
		}
		return resolvedScope{
			Scope:    scope,
			Name:     "direct message",
			ServerID: conversation.MemberOne.ServerID,
			Members:  []models.Member{conversation.MemberOne, conversation.MemberTwo},
		}, nil
	default:
		return resolvedScope{}, badRequest("unknown scope type %q", scope.Type)
	}
}

// resolveForMember resolves the scope and the acting profile's membership in
// it. A non-member gets ErrNotFound so scope existence does not leak.
func (r scopeResolver) resolveForMember(ctx context.Context, scope dto.Scope, profileID uint) (resolvedScope, models.Member, error) {
	if profileID == 0 {
		return resolvedScope{}, models.Member{}, ErrUnauthorized
	}

	resolved, err := r.resolve(ctx, scope)
	if err != nil {
		return resolvedScope{}, models.Member{}, err
	}

	member, ok := resolved.memberFor(profileID)
	if !ok {
		return resolvedScope{}, models.Member{}, notFound("%s %d not found", scope.Type, scope.ID)
	}
	return resolved, member, nil
}

func scopeOfMessage(message models.Message) dto.Scope {
	return dto.Scope{Type: message.ScopeType(), ID: message.ScopeID()}
}
