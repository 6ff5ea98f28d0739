package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
)

func TestReactionServiceAggregatesPerReactor(t *testing.T) {
	env := newChatEnv(t, "alice", "xavier", "yara")
	ctx := context.Background()

	message, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "vote"})
	require.NoError(t, err)
	env.publisher.reset()

	_, err = env.reactions.Add(ctx, env.id("xavier"), message.ID, dto.ReactionRequest{Emoji: "👍"})
	require.NoError(t, err)
	snapshot, err := env.reactions.Add(ctx, env.id("yara"), message.ID, dto.ReactionRequest{Emoji: "👍"})
	require.NoError(t, err)

	require.Len(t, snapshot.Aggregates, 1)
	require.Equal(t, "👍", snapshot.Aggregates[0].Emoji)
	require.Equal(t, 2, snapshot.Aggregates[0].Count)
	require.Equal(t, []uint{env.id("xavier"), env.id("yara")}, reactorIDs(snapshot.Aggregates[0]))

	updates := env.publisher.to(realtime.ChannelRoom(env.channel.ID), realtime.EventReactionUpdate)
	require.Len(t, updates, 2)
	var last dto.ReactionSnapshot
	require.NoError(t, json.Unmarshal(updates[1].Payload, &last))
	require.Equal(t, snapshot, last)

	reactors, err := env.reactions.ListReactors(ctx, env.id("alice"), message.ID, "👍")
	require.NoError(t, err)
	require.Len(t, reactors, 2)
}

func TestReactionServiceAddTwiceIsNoop(t *testing.T) {
	env := newChatEnv(t, "alice", "bob")
	ctx := context.Background()

	message, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "hi"})
	require.NoError(t, err)
	env.publisher.reset()

	first, err := env.reactions.Add(ctx, env.id("bob"), message.ID, dto.ReactionRequest{Emoji: " 🎉 "})
	require.NoError(t, err)
	second, err := env.reactions.Add(ctx, env.id("bob"), message.ID, dto.ReactionRequest{Emoji: "🎉"})
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, second.Aggregates[0].Count)
	require.Len(t, env.publisher.to(realtime.ChannelRoom(env.channel.ID), realtime.EventReactionUpdate), 1)
}

func TestReactionServiceRemoveOwnOnly(t *testing.T) {
	env := newChatEnv(t, "alice", "xavier", "yara")
	ctx := context.Background()

	message, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "hi"})
	require.NoError(t, err)

	_, err = env.reactions.Add(ctx, env.id("xavier"), message.ID, dto.ReactionRequest{Emoji: "👍"})
	require.NoError(t, err)
	_, err = env.reactions.Add(ctx, env.id("yara"), message.ID, dto.ReactionRequest{Emoji: "👍"})
	require.NoError(t, err)

	before, err := env.reactions.Aggregates(ctx, env.id("alice"), message.ID)
	require.NoError(t, err)
	env.publisher.reset()

	_, err = env.reactions.Remove(ctx, env.id("alice"), message.ID, "👍")
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, env.publisher.to(realtime.ChannelRoom(env.channel.ID), realtime.EventReactionUpdate))

	after, err := env.reactions.Aggregates(ctx, env.id("alice"), message.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 2, after.Aggregates[0].Count)

	snapshot, err := env.reactions.Remove(ctx, env.id("xavier"), message.ID, "👍")
	require.NoError(t, err)
	require.Len(t, snapshot.Aggregates, 1)
	require.Equal(t, 1, snapshot.Aggregates[0].Count)
	require.Equal(t, []uint{env.id("yara")}, reactorIDs(snapshot.Aggregates[0]))

	snapshot, err = env.reactions.Remove(ctx, env.id("yara"), message.ID, "👍")
	require.NoError(t, err)
	require.NotNil(t, snapshot.Aggregates)
	require.Empty(t, snapshot.Aggregates)

	_, err = env.reactions.Remove(ctx, env.id("yara"), message.ID, "  ")
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestReactionServiceRejectsNonMembers(t *testing.T) {
	env := newChatEnv(t, "alice")
	ctx := context.Background()

	message, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "hi"})
	require.NoError(t, err)

	stranger := env.outsider(t, "mallory")
	_, err = env.reactions.Add(ctx, stranger.ID, message.ID, dto.ReactionRequest{Emoji: "👎"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.reactions.Aggregates(ctx, stranger.ID, message.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.reactions.Add(ctx, env.id("alice"), 9999, dto.ReactionRequest{Emoji: "👍"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.reactions.Add(ctx, 0, message.ID, dto.ReactionRequest{Emoji: "👍"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestReactionServiceConcurrentReactors(t *testing.T) {
	names := []string{"alice", "r1", "r2", "r3", "r4", "r5", "r6"}
	env := newChatEnv(t, names...)
	ctx := context.Background()

	message, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "pile on"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, len(names))
	for _, name := range names[1:] {
		wg.Add(1)
		go func(profileID uint) {
			defer wg.Done()
			if _, err := env.reactions.Add(ctx, profileID, message.ID, dto.ReactionRequest{Emoji: "🔥"}); err != nil {
				errs <- err
			}
		}(env.id(name))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snapshot, err := env.reactions.Aggregates(ctx, env.id("alice"), message.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Aggregates, 1)
	require.Equal(t, len(names)-1, snapshot.Aggregates[0].Count)
	require.Len(t, snapshot.Aggregates[0].Reactors, len(names)-1)
}

func TestAggregateReactionsKeepsFirstReactionOrder(t *testing.T) {
	rows := []models.Reaction{
		{Emoji: "🎉", Count: 1, Profile: models.Profile{ID: 1, Name: "a"}},
		{Emoji: "👍", Count: 1, Profile: models.Profile{ID: 2, Name: "b"}},
		{Emoji: "🎉", Count: 2, Profile: models.Profile{ID: 3, Name: "c"}},
		{Emoji: "😢", Count: 0, Profile: models.Profile{ID: 4, Name: "d"}},
	}

	aggregates := aggregateReactions(rows)
	require.Len(t, aggregates, 2)
	require.Equal(t, "🎉", aggregates[0].Emoji)
	require.Equal(t, 3, aggregates[0].Count)
	require.Equal(t, []uint{1, 3}, reactorIDs(aggregates[0]))
	require.Equal(t, "👍", aggregates[1].Emoji)
	require.Equal(t, 1, aggregates[1].Count)
}

func reactorIDs(aggregate dto.ReactionAggregate) []uint {
	ids := make([]uint, 0, len(aggregate.Reactors))
	for _, reactor := range aggregate.Reactors {
		ids = append(ids, reactor.ID)
	}
	return ids
}
