package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

func TestMessageServicePostFansOutToOtherMembers(t *testing.T) {
	env := newChatEnv(t, "alice", "bob", "dana")
	ctx := context.Background()
	scope := dto.ChannelScope(env.channel.ID)

	message, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "hello <script>alert(1)</script>team"})
	require.NoError(t, err)
	require.Equal(t, "hello team", message.Content)
	require.Equal(t, env.member["alice"].ID, message.Member.ID)
	require.Equal(t, models.ScopeChannel, message.ScopeType)

	published := env.publisher.to(realtime.ChannelRoom(env.channel.ID), realtime.EventMessageNew)
	require.Len(t, published, 1)
	var payload dto.MessageResponse
	require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	require.Equal(t, message.ID, payload.ID)

	for _, name := range []string{"bob", "dana"} {
		rows := env.notificationsFor(t, name)
		require.Len(t, rows, 1, name)
		require.Equal(t, models.NotificationKindMessage, rows[0].Kind)
		require.Equal(t, "New message in #general from alice: hello team", rows[0].Message)
		require.EqualValues(t, message.ID, rows[0].Metadata["message_id"])
		require.Len(t, env.publisher.to(realtime.UserRoom(env.id(name)), realtime.EventNotificationNew), 1, name)
	}

	require.Empty(t, env.notificationsFor(t, "alice"))
	require.Empty(t, env.publisher.to(realtime.UserRoom(env.id("alice")), realtime.EventNotificationNew))
}

func TestMessageServicePostMentionReplacesPlainNotification(t *testing.T) {
	env := newChatEnv(t, "alice", "Mary", "Mary Jane", "bob")
	ctx := context.Background()

	_, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{
		Content: "@mary jane and @alice, lunch?",
	})
	require.NoError(t, err)

	maryJane := env.notificationsFor(t, "Mary Jane")
	require.Len(t, maryJane, 1)
	require.Equal(t, models.NotificationKindMention, maryJane[0].Kind)
	require.True(t, strings.HasPrefix(maryJane[0].Message, "alice mentioned you in #general"))

	for _, name := range []string{"Mary", "bob"} {
		rows := env.notificationsFor(t, name)
		require.Len(t, rows, 1, name)
		require.Equal(t, models.NotificationKindMessage, rows[0].Kind, name)
	}

	require.Empty(t, env.notificationsFor(t, "alice"))
}

func TestMessageServiceMentionsNamesWithEscapedCharacters(t *testing.T) {
	env := newChatEnv(t, "alice", "Sean O'Brien", "bob")
	ctx := context.Background()

	posted, err := env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{
		Content: "@Sean O'Brien don't forget Tom & Jerry",
	})
	require.NoError(t, err)
	require.Contains(t, posted.Content, "&#39;")

	sean := env.notificationsFor(t, "Sean O'Brien")
	require.Len(t, sean, 1)
	require.Equal(t, models.NotificationKindMention, sean[0].Kind)

	bob := env.notificationsFor(t, "bob")
	require.Len(t, bob, 1)
	require.Equal(t, models.NotificationKindMessage, bob[0].Kind)
}

func TestMessageServiceReplyRules(t *testing.T) {
	env := newChatEnv(t, "alice", "bob")
	ctx := context.Background()
	scope := dto.ChannelScope(env.channel.ID)

	parent, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "question"})
	require.NoError(t, err)
	env.publisher.reset()

	reply, err := env.messages.Post(ctx, env.id("bob"), scope, dto.MessageCreateRequest{Content: "answer", ReplyToID: &parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	require.Equal(t, parent.ID, reply.ReplyTo.ID)
	require.Equal(t, "alice", reply.ReplyTo.Author.Name)

	rows := env.notificationsFor(t, "alice")
	require.Len(t, rows, 1)
	require.Equal(t, models.NotificationKindReply, rows[0].Kind)
	require.Equal(t, "New reply in #general from bob: answer", rows[0].Message)

	other := models.Channel{Name: "random", ServerID: env.server.ID}
	require.NoError(t, env.db.Create(&other).Error)
	_, err = env.messages.Post(ctx, env.id("bob"), dto.ChannelScope(other.ID), dto.MessageCreateRequest{Content: "cross", ReplyToID: &parent.ID})
	require.ErrorIs(t, err, ErrNotFound)

	missing := uint(9999)
	_, err = env.messages.Post(ctx, env.id("bob"), scope, dto.MessageCreateRequest{Content: "ghost", ReplyToID: &missing})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessageServicePostRejections(t *testing.T) {
	env := newChatEnv(t, "alice")
	ctx := context.Background()
	scope := dto.ChannelScope(env.channel.ID)

	_, err := env.messages.Post(ctx, 0, scope, dto.MessageCreateRequest{Content: "anon"})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "<b></b>  "})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = env.messages.Post(ctx, env.id("alice"), dto.Scope{Type: "server", ID: 1}, dto.MessageCreateRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrBadRequest)

	stranger := env.outsider(t, "mallory")
	_, err = env.messages.Post(ctx, stranger.ID, scope, dto.MessageCreateRequest{Content: "let me in"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.messages.Post(ctx, env.id("alice"), dto.ChannelScope(4242), dto.MessageCreateRequest{Content: "nowhere"})
	require.ErrorIs(t, err, ErrNotFound)

	require.Zero(t, env.publisher.count())
}

func TestMessageServiceEnforcesConfiguredLength(t *testing.T) {
	env := newChatEnv(t, "alice")
	short := NewMessageService(
		repository.NewMessageRepository(env.db),
		repository.NewReactionRepository(env.db),
		env.scopes,
		nil,
		env.publisher,
		validator.New(validator.WithRequiredStructEnabled()),
		MessageOptions{MaxLength: 5},
		zerolog.Nop(),
	)

	_, err := short.Post(context.Background(), env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "héllo"})
	require.NoError(t, err)

	_, err = short.Post(context.Background(), env.id("alice"), dto.ChannelScope(env.channel.ID), dto.MessageCreateRequest{Content: "héllo!"})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestMessageServiceLengthFollowsConfigAboveDefault(t *testing.T) {
	env := newChatEnv(t, "alice")
	long := NewMessageService(
		repository.NewMessageRepository(env.db),
		repository.NewReactionRepository(env.db),
		env.scopes,
		nil,
		env.publisher,
		validator.New(validator.WithRequiredStructEnabled()),
		MessageOptions{MaxLength: 6000},
		zerolog.Nop(),
	)
	scope := dto.ChannelScope(env.channel.ID)

	_, err := long.Post(context.Background(), env.id("alice"), scope, dto.MessageCreateRequest{Content: strings.Repeat("a", 5000)})
	require.NoError(t, err)

	// escaped characters count once, as typed
	_, err = long.Post(context.Background(), env.id("alice"), scope, dto.MessageCreateRequest{Content: strings.Repeat("'", 6000)})
	require.NoError(t, err)

	_, err = long.Post(context.Background(), env.id("alice"), scope, dto.MessageCreateRequest{Content: strings.Repeat("a", 6001)})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestMessageServiceEditIsAuthorOnly(t *testing.T) {
	env := newChatEnv(t, "alice", "bob")
	ctx := context.Background()
	scope := dto.ChannelScope(env.channel.ID)

	message, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "draft"})
	require.NoError(t, err)
	env.publisher.reset()

	_, err = env.messages.Edit(ctx, env.id("bob"), message.ID, dto.MessageUpdateRequest{Content: "hijacked"})
	require.ErrorIs(t, err, ErrForbidden)
	require.Zero(t, env.publisher.count())

	edited, err := env.messages.Edit(ctx, env.id("alice"), message.ID, dto.MessageUpdateRequest{Content: "final"})
	require.NoError(t, err)
	require.Equal(t, "final", edited.Content)
	require.Len(t, env.publisher.to(realtime.ChannelRoom(env.channel.ID), realtime.EventMessageUpdate), 1)

	withFile, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "see file", FileURL: "https://cdn.example.com/a.png"})
	require.NoError(t, err)
	_, err = env.messages.Edit(ctx, env.id("alice"), withFile.ID, dto.MessageUpdateRequest{Content: "changed"})
	require.ErrorIs(t, err, ErrForbidden)

	stranger := env.outsider(t, "mallory")
	_, err = env.messages.Edit(ctx, stranger.ID, message.ID, dto.MessageUpdateRequest{Content: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessageServiceDeleteByAuthorOrModerator(t *testing.T) {
	env := newChatEnv(t, "alice", "bob")
	env.addMember(t, "mod", models.MemberRoleModerator)
	ctx := context.Background()
	scope := dto.ChannelScope(env.channel.ID)

	first, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "oops", FileURL: "https://cdn.example.com/x.png"})
	require.NoError(t, err)
	second, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "spam"})
	require.NoError(t, err)
	env.publisher.reset()

	_, err = env.messages.Delete(ctx, env.id("bob"), first.ID)
	require.ErrorIs(t, err, ErrForbidden)

	deleted, err := env.messages.Delete(ctx, env.id("alice"), first.ID)
	require.NoError(t, err)
	require.True(t, deleted.Deleted)
	require.Equal(t, deletedMessageContent, deleted.Content)
	require.Empty(t, deleted.FileURL)

	_, err = env.messages.Delete(ctx, env.id("alice"), first.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.messages.Edit(ctx, env.id("alice"), first.ID, dto.MessageUpdateRequest{Content: "undo"})
	require.ErrorIs(t, err, ErrNotFound)

	moderated, err := env.messages.Delete(ctx, env.id("mod"), second.ID)
	require.NoError(t, err)
	require.True(t, moderated.Deleted)

	require.Len(t, env.publisher.to(realtime.ChannelRoom(env.channel.ID), realtime.EventMessageUpdate), 2)
}

func TestMessageServiceHistoryIncludesReactions(t *testing.T) {
	env := newChatEnv(t, "alice", "bob")
	ctx := context.Background()
	scope := dto.ChannelScope(env.channel.ID)

	first, err := env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "one"})
	require.NoError(t, err)
	_, err = env.messages.Post(ctx, env.id("bob"), scope, dto.MessageCreateRequest{Content: "two"})
	require.NoError(t, err)

	_, err = env.reactions.Add(ctx, env.id("bob"), first.ID, dto.ReactionRequest{Emoji: "👍"})
	require.NoError(t, err)

	history, err := env.messages.History(ctx, env.id("bob"), scope, dto.MessageHistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "one", history[0].Content)
	require.Len(t, history[0].Reactions, 1)
	require.Equal(t, 1, history[0].Reactions[0].Count)
	require.Empty(t, history[1].Reactions)

	stranger := env.outsider(t, "mallory")
	_, err = env.messages.History(ctx, stranger.ID, scope, dto.MessageHistoryQuery{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessageServiceConversationScope(t *testing.T) {
	env := newChatEnv(t, "alice", "bob", "carol")
	ctx := context.Background()

	conversation, err := env.conversations.GetOrCreate(ctx, env.id("alice"), dto.ConversationCreateRequest{
		ServerID: env.server.ID,
		MemberID: env.member["bob"].ID,
	})
	require.NoError(t, err)
	scope := dto.ConversationScope(conversation.ID)

	_, err = env.messages.Post(ctx, env.id("alice"), scope, dto.MessageCreateRequest{Content: "psst"})
	require.NoError(t, err)
	require.Len(t, env.publisher.to(realtime.ConversationRoom(conversation.ID), realtime.EventMessageNew), 1)

	rows := env.notificationsFor(t, "bob")
	require.Len(t, rows, 1)
	require.Equal(t, models.ScopeConversation, rows[0].ScopeType)
	require.Equal(t, "New message in a direct message from alice: psst", rows[0].Message)
	require.Empty(t, env.notificationsFor(t, "carol"))

	_, err = env.messages.Post(ctx, env.id("carol"), scope, dto.MessageCreateRequest{Content: "eavesdrop"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "héll…", truncate("héllo world", 4))
}
