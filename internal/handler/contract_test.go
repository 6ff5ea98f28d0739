package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/models"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestMessagePostContract(t *testing.T) {
	schema := compileSchema(t, "message_envelope.schema.json")

	channelID := uint(12)
	parentID := uint(4)
	now := time.Now().UTC()
	svc := &mockMessageService{response: dto.MessageResponse{
		ID:        5,
		ScopeType: models.ScopeChannel,
		ScopeID:   channelID,
		ChannelID: &channelID,
		Member: dto.MemberResponse{
			ID:       2,
			Role:     models.MemberRoleGuest,
			ServerID: 1,
			Profile:  dto.ProfileResponse{ID: 3, Name: "alice"},
		},
		Content:   "hello",
		ReplyToID: &parentID,
		ReplyTo: &dto.MessageReference{
			ID:       parentID,
			MemberID: 7,
			Author:   dto.ProfileResponse{ID: 8, Name: "bob"},
			Content:  "question",
		},
		Reactions: []dto.ReactionAggregate{{
			Emoji:    "👍",
			Count:    1,
			Reactors: []dto.ProfileResponse{{ID: 8, Name: "bob"}},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}}

	app := authenticatedApp(3)
	handler.NewMessageHandler(svc, zerolog.Nop()).RegisterScope(app.Group("/channels/:scopeId"), models.ScopeChannel, nil)

	resp := send(t, app, http.MethodPost, "/channels/12/messages", `{"content":"hello","reply_to_id":4}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	validateBody(t, schema, resp)
}

func TestReactionSnapshotContract(t *testing.T) {
	schema := compileSchema(t, "reaction_snapshot.schema.json")

	svc := &mockReactionService{snapshot: dto.ReactionSnapshot{
		MessageID: 4,
		Aggregates: []dto.ReactionAggregate{
			{Emoji: "👍", Count: 2, Reactors: []dto.ProfileResponse{{ID: 1, Name: "xavier"}, {ID: 2, Name: "yara"}}},
		},
	}}

	app := authenticatedApp(1)
	handler.NewReactionHandler(svc, zerolog.Nop()).Register(app.Group("/messages"), nil)

	resp := send(t, app, http.MethodGet, "/messages/4/reactions", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)

	svc.snapshot = dto.ReactionSnapshot{MessageID: 4, Aggregates: []dto.ReactionAggregate{}}
	resp = send(t, app, http.MethodGet, "/messages/4/reactions", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)
}
