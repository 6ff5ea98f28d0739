package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/repository"
)

const defaultUnreadTTL = 10 * time.Minute

// invalidateUnread bumps the generation fence and drops the cached value.
var invalidateUnread = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("DEL", KEYS[1])
return 1
`)

// unreadCounter caches count(unread notifications) per (profile, scope).
//
// The database count is the source of truth. A cache fill watches a
// per-key generation counter that every mutation bumps, so a fill racing a
// mutation is discarded instead of storing a stale value.
type unreadCounter struct {
	repo   repository.NotificationRepository
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func newUnreadCounter(repo repository.NotificationRepository, redisClient *redis.Client, keyBase string, ttl time.Duration, logger zerolog.Logger) *unreadCounter {
	if ttl <= 0 {
		ttl = defaultUnreadTTL
	}
	prefix := "unread"
	if keyBase != "" {
		prefix = keyBase + ":unread"
	}
	return &unreadCounter{
		repo:   repo,
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *unreadCounter) key(profileID uint, scope dto.Scope) string {
	return fmt.Sprintf("%s:%d:%s:%d", c.prefix, profileID, scope.Type, scope.ID)
}

// Count returns the unread count, serving from cache when it is warm.
func (c *unreadCounter) Count(ctx context.Context, profileID uint, scope dto.Scope) (int64, error) {
	if c.redis == nil {
		return c.repo.CountUnread(ctx, profileID, scope.Type, scope.ID)
	}

	key := c.key(profileID, scope)
	cached, err := c.redis.Get(ctx, key).Int64()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to read unread cache")
		return c.repo.CountUnread(ctx, profileID, scope.Type, scope.ID)
	}

	var (
		count   int64
		loaded  bool
		repoErr error
	)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		n, err := c.repo.CountUnread(ctx, profileID, scope.Type, scope.ID)
		if err != nil {
			repoErr = err
			return err
		}
		count, loaded = n, true

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, n, c.ttl)
			return nil
		})
		return err
	}, key+":gen")

	if repoErr != nil {
		return 0, repoErr
	}
	if loaded {
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to fill unread cache")
		}
		return count, nil
	}

	c.logger.Warn().Err(err).Str("key", key).Msg("unread cache unavailable")
	return c.repo.CountUnread(ctx, profileID, scope.Type, scope.ID)
}

// Touch must be called after every committed change to the profile's
// notifications in scope.
func (c *unreadCounter) Touch(ctx context.Context, profileID uint, scope dto.Scope) {
	if c.redis == nil {
		return
	}
	key := c.key(profileID, scope)
	if err := invalidateUnread.Run(ctx, c.redis, []string{key, key + ":gen"}).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to refresh unread cache")
	}
}
