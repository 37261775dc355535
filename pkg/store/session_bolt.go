package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/domain"
)

var sessionsBucket = []byte("sessions")

// BoltSessionStore keeps sessions in a single bbolt file. Every write runs in
// its own bolt transaction, so create, save and delete never interleave.
type BoltSessionStore struct {
	db  *bolt.DB
	ttl time.Duration
}

// NewBoltSessionStore opens (or creates) the session file at path.
func NewBoltSessionStore(path string, ttl time.Duration) (*BoltSessionStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sessions bucket: %w", err)
	}
	return &BoltSessionStore{db: db, ttl: ttl}, nil
}

func (s *BoltSessionStore) CreateSession(ctx context.Context, guestID string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	sess := newSession(util.NewToken(), guestID, s.ttl)
	data, err := encodeSession(sess)
	if err != nil {
		return domain.Session{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sess.Token), data)
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("storing session: %w", err)
	}
	return sess, nil
}

func (s *BoltSessionStore) GetSession(ctx context.Context, token string) (domain.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, false, err
	}
	var sess domain.Session
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(token))
		if data == nil {
			return nil
		}
		decoded, err := decodeSession(data)
		if err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		sess, found = decoded, true
		return nil
	})
	if err != nil {
		return domain.Session{}, false, err
	}
	if !found || sess.Expired(time.Now()) {
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *BoltSessionStore) SaveTranscript(ctx context.Context, token string, base int, turns []domain.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		data := b.Get([]byte(token))
		if data == nil {
			return ErrNotFound
		}
		sess, err := decodeSession(data)
		if err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		if sess.Expired(time.Now()) {
			return ErrNotFound
		}
		if len(sess.Transcript) != base {
			return ErrConflict
		}
		sess.Transcript = turns
		sess.UpdatedAt = time.Now().UTC()
		encoded, err := encodeSession(sess)
		if err != nil {
			return err
		}
		return b.Put([]byte(token), encoded)
	})
}

func (s *BoltSessionStore) DeleteSession(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(token))
	})
}

// PurgeExpired deletes sessions past their deadline.
func (s *BoltSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var removed int64
	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			sess, err := decodeSession(v)
			if err != nil || sess.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the bolt file.
func (s *BoltSessionStore) Close() error {
	return s.db.Close()
}
