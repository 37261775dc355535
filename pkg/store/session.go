package store

import (
	"encoding/json"
	"time"

	"github.com/BillK181/wedding-website/pkg/domain"
)

func newSession(token, guestID string, ttl time.Duration) domain.Session {
	now := time.Now().UTC()
	sess := domain.Session{
		Token:      token,
		GuestID:    guestID,
		Transcript: []domain.Turn{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ttl > 0 {
		sess.ExpiresAt = now.Add(ttl)
	}
	return sess
}

func cloneTurns(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

func encodeSession(sess domain.Session) ([]byte, error) {
	return json.Marshal(sess)
}

func decodeSession(data []byte) (domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, err
	}
	if sess.Transcript == nil {
		sess.Transcript = []domain.Turn{}
	}
	return sess, nil
}
