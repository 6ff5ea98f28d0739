package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

type publishedEvent struct {
	Room    realtime.RoomKey
	Event   string
	Payload json.RawMessage
}

// recordingPublisher captures every publish instead of delivering it.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, room realtime.RoomKey, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Room: room, Event: event, Payload: raw})
	return nil
}

func (p *recordingPublisher) to(room realtime.RoomKey, event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Room == room && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type chatEnv struct {
	db            *gorm.DB
	redis         *redis.Client
	publisher     *recordingPublisher
	scopes        repository.ScopeRepository
	messages      MessageService
	reactions     ReactionService
	notifications NotificationService
	members       MemberService
	conversations ConversationService

	server   models.Server
	channel  models.Channel
	profiles map[string]models.Profile
	member   map[string]models.Member
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// newChatEnv wires every chat service over sqlite and miniredis, seeding one
// server with a #general channel and a guest member per name.
func newChatEnv(t *testing.T, names ...string) *chatEnv {
	t.Helper()

	db := setupServiceDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	publisher := &recordingPublisher{}

	scopeRepo := repository.NewScopeRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notifications := NewNotificationService(notificationRepo, scopeRepo, publisher, NotificationOptions{
		Redis:   redisClient,
		KeyBase: "chat-test",
	}, validate, logger)

	env := &chatEnv{
		db:            db,
		redis:         redisClient,
		publisher:     publisher,
		scopes:        scopeRepo,
		notifications: notifications,
		messages:      NewMessageService(messageRepo, reactionRepo, scopeRepo, notifications, publisher, validate, MessageOptions{}, logger),
		reactions:     NewReactionService(reactionRepo, messageRepo, scopeRepo, publisher, validate, logger),
		members:       NewMemberService(scopeRepo, validate, logger),
		conversations: NewConversationService(scopeRepo, validate, logger),
		profiles:      make(map[string]models.Profile),
		member:        make(map[string]models.Member),
	}

	env.server = models.Server{Name: "Guild"}
	require.NoError(t, db.Create(&env.server).Error)
	env.channel = models.Channel{Name: "general", ServerID: env.server.ID}
	require.NoError(t, db.Create(&env.channel).Error)

	for _, name := range names {
		env.addMember(t, name, models.MemberRoleGuest)
	}
	return env
}

func (e *chatEnv) addMember(t *testing.T, name, role string) models.Member {
	t.Helper()

	profile := models.Profile{Name: name, Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString())}
	require.NoError(t, e.db.Create(&profile).Error)

	member := models.Member{ProfileID: profile.ID, ServerID: e.server.ID, Role: role}
	require.NoError(t, e.db.Omit("Profile").Create(&member).Error)
	member.Profile = profile

	e.profiles[name] = profile
	e.member[name] = member
	return member
}

// outsider creates a profile that belongs to a different server.
func (e *chatEnv) outsider(t *testing.T, name string) models.Profile {
	t.Helper()

	other := models.Server{Name: "Elsewhere"}
	require.NoError(t, e.db.Create(&other).Error)
	profile := models.Profile{Name: name, Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString())}
	require.NoError(t, e.db.Create(&profile).Error)
	member := models.Member{ProfileID: profile.ID, ServerID: other.ID, Role: models.MemberRoleGuest}
	require.NoError(t, e.db.Omit("Profile").Create(&member).Error)
	return profile
}

func (e *chatEnv) id(name string) uint {
	return e.profiles[name].ID
}

func (e *chatEnv) notificationsFor(t *testing.T, name string) []models.Notification {
	t.Helper()

	var rows []models.Notification
	require.NoError(t, e.db.Where("profile_id = ?", e.id(name)).Order("id ASC").Find(&rows).Error)
	return rows
}
