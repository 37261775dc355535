package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/domain"
)

const redisSessionPrefix = "portal:session:"

// RedisSessionStore keeps sessions in Redis with TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore builds a Redis-backed session store on a shared client.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

// CreateSession writes a token -> session mapping with TTL.
func (s *RedisSessionStore) CreateSession(ctx context.Context, guestID string) (domain.Session, error) {
	sess := newSession(util.NewToken(), guestID, s.ttl)
	data, err := encodeSession(sess)
	if err != nil {
		return domain.Session{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, redisSessionPrefix+sess.Token, data, s.ttl).Err(); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// GetSession resolves a token to its session.
func (s *RedisSessionStore) GetSession(ctx context.Context, token string) (domain.Session, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, redisSessionPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	sess, err := decodeSession(val)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return sess, true, nil
}

// SaveTranscript rewrites the session value under WATCH, keeping its TTL.
// Any write to the key between the read and EXEC (another instance saving a
// turn, or a logout) aborts the transaction.
func (s *RedisSessionStore) SaveTranscript(ctx context.Context, token string, base int, turns []domain.Turn) error {
	key := redisSessionPrefix + token
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		sess, err := decodeSession(val)
		if err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if len(sess.Transcript) != base {
			return ErrConflict
		}
		sess.Transcript = turns
		sess.UpdatedAt = time.Now().UTC()
		data, err := encodeSession(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{Mode: "XX", KeepTTL: true})
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	}
	return err
}

// DeleteSession removes a token mapping.
func (s *RedisSessionStore) DeleteSession(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, redisSessionPrefix+token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
