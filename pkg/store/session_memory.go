package store

import (
	"context"
	"sync"
	"time"

	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/domain"
)

// MemorySessionStore keeps sessions in-process (single instance only).
type MemorySessionStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	sess map[string]domain.Session
}

// NewMemorySessionStore builds an in-memory session store. A zero ttl never expires sessions.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:  ttl,
		sess: make(map[string]domain.Session),
	}
}

// CreateSession binds a fresh token to guestID.
func (m *MemorySessionStore) CreateSession(ctx context.Context, guestID string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	sess := newSession(util.NewToken(), guestID, m.ttl)
	m.mu.Lock()
	m.sess[sess.Token] = sess
	m.mu.Unlock()
	return sess, nil
}

// GetSession returns the live session for token.
func (m *MemorySessionStore) GetSession(ctx context.Context, token string) (domain.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sess[token]
	if !ok {
		return domain.Session{}, false, nil
	}
	if sess.Expired(time.Now()) {
		delete(m.sess, token)
		return domain.Session{}, false, nil
	}
	sess.Transcript = cloneTurns(sess.Transcript)
	return sess, true, nil
}

// SaveTranscript replaces the transcript of a live session still holding base turns.
func (m *MemorySessionStore) SaveTranscript(ctx context.Context, token string, base int, turns []domain.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sess[token]
	if !ok || sess.Expired(time.Now()) {
		return ErrNotFound
	}
	if len(sess.Transcript) != base {
		return ErrConflict
	}
	sess.Transcript = cloneTurns(turns)
	sess.UpdatedAt = time.Now().UTC()
	m.sess[token] = sess
	return nil
}

// DeleteSession removes a session. Unknown tokens are ignored.
func (m *MemorySessionStore) DeleteSession(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sess, token)
	m.mu.Unlock()
	return nil
}
