package repository

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/models"
)

func setupChatTestDB(t *testing.T) *gorm.DB {
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

type chatFixture struct {
	server   models.Server
	channel  models.Channel
	profiles map[string]models.Profile
	members  map[string]models.Member
}

// seedServer creates one server with a single channel and a member per name.
func seedServer(t *testing.T, db *gorm.DB, names ...string) chatFixture {
	t.Helper()

	fixture := chatFixture{
		server:   models.Server{Name: "Guild"},
		profiles: make(map[string]models.Profile, len(names)),
		members:  make(map[string]models.Member, len(names)),
	}
	require.NoError(t, db.Create(&fixture.server).Error)

	fixture.channel = models.Channel{Name: "general", ServerID: fixture.server.ID}
	require.NoError(t, db.Create(&fixture.channel).Error)

	for _, name := range names {
		profile := models.Profile{Name: name, Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString())}
		require.NoError(t, db.Create(&profile).Error)

		member := models.Member{ProfileID: profile.ID, ServerID: fixture.server.ID, Role: models.MemberRoleGuest}
		require.NoError(t, db.Omit("Profile").Create(&member).Error)
		member.Profile = profile

		fixture.profiles[name] = profile
		fixture.members[name] = member
	}

	return fixture
}
