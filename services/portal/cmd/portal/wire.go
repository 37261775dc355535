package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BillK181/wedding-website/internal/ratelimit"
	"github.com/BillK181/wedding-website/pkg/store"
	"github.com/BillK181/wedding-website/services/portal/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	loginRateWindow       = time.Minute
	defaultLoginRateLimit = 10
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// newGuestStore opens the guest database, or keeps guests in process when
// databaseURL is "memory".
func newGuestStore(cfg config.FileConfig) (store.GuestStore, func(), error) {
	if cfg.DatabaseURL == config.DatabaseURLMemory {
		return store.NewMemoryStore(), func() {}, nil
	}
	guests, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return guests, func() { _ = guests.Close() }, nil
}

func newSessionStore(cfg config.FileConfig, guests store.GuestStore, client *redis.Client, ttl time.Duration) (store.SessionStore, func(), error) {
	noop := func() {}
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		return store.NewMemorySessionStore(ttl), noop, nil
	case config.SessionStoreRedis:
		return store.NewRedisSessionStore(client, ttl), noop, nil
	case config.SessionStoreBolt:
		bolt, err := store.NewBoltSessionStore(cfg.SessionBoltPath, ttl)
		if err != nil {
			return nil, nil, err
		}
		return bolt, func() { _ = bolt.Close() }, nil
	default:
		db, ok := guests.(*store.GormStore)
		if !ok {
			return nil, nil, errors.New("database sessions need a SQL guest store")
		}
		return store.NewGormSessionStore(db.DB(), ttl), noop, nil
	}
}

// loginLimiter pairs a limiter with its optional background maintenance loop.
type loginLimiter struct {
	ratelimit.Limiter
	Run func(ctx context.Context) error
}

func newLoginLimiter(cfg config.FileConfig, client *redis.Client) (loginLimiter, error) {
	limit := cfg.LoginRateLimitPerMinute
	if limit <= 0 {
		limit = defaultLoginRateLimit
	}
	if client != nil {
		l, err := ratelimit.NewRedisFixedWindowLimiter(client, "portal:ratelimit:login", limit, loginRateWindow)
		if err != nil {
			return loginLimiter{}, err
		}
		return loginLimiter{Limiter: l}, nil
	}
	l, err := ratelimit.NewTokenBucketLimiter(limit, loginRateWindow)
	if err != nil {
		return loginLimiter{}, err
	}
	return loginLimiter{
		Limiter: l,
		Run: func(ctx context.Context) error {
			return l.Run(ctx, 5*loginRateWindow)
		},
	}, nil
}

func purgeSessions(ctx context.Context, purger sessionPurger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := purger.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("purge expired sessions failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		}
	}
}
