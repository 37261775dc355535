package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/domain"
)

// GormSessionStore keeps sessions in the relational database next to the guests table.
type GormSessionStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewGormSessionStore builds a session store on an already migrated handle.
func NewGormSessionStore(db *gorm.DB, ttl time.Duration) *GormSessionStore {
	return &GormSessionStore{db: db, ttl: ttl}
}

func (s *GormSessionStore) CreateSession(ctx context.Context, guestID string) (domain.Session, error) {
	sess := newSession(util.NewToken(), guestID, s.ttl)
	model := SessionModel{
		Token:      sess.Token,
		GuestID:    sess.GuestID,
		Transcript: datatypes.JSON("[]"),
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}
	if !sess.ExpiresAt.IsZero() {
		exp := sess.ExpiresAt
		model.ExpiresAt = &exp
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *GormSessionStore) GetSession(ctx context.Context, token string) (domain.Session, bool, error) {
	var model SessionModel
	err := s.live(s.db.WithContext(ctx)).Where("token = ?", token).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	sess, err := sessionFromModel(model)
	if err != nil {
		return domain.Session{}, false, err
	}
	return sess, true, nil
}

// SaveTranscript is a compare-and-set on turn_count, so writers on other
// instances sharing the database cannot overwrite each other's turns.
func (s *GormSessionStore) SaveTranscript(ctx context.Context, token string, base int, turns []domain.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	res := s.live(s.db.WithContext(ctx).Model(&SessionModel{})).
		Where("token = ? AND turn_count = ?", token, base).
		Updates(map[string]any{
			"transcript": datatypes.JSON(data),
			"turn_count": len(turns),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var live int64
	if err := s.live(s.db.WithContext(ctx).Model(&SessionModel{})).Where("token = ?", token).Count(&live).Error; err != nil {
		return err
	}
	if live == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *GormSessionStore) DeleteSession(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&SessionModel{}).Error
}

// PurgeExpired deletes sessions past their deadline and reports how many were removed.
func (s *GormSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now().UTC()).
		Delete(&SessionModel{})
	return res.RowsAffected, res.Error
}

func (s *GormSessionStore) live(tx *gorm.DB) *gorm.DB {
	return tx.Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC())
}

func sessionFromModel(m SessionModel) (domain.Session, error) {
	turns := []domain.Turn{}
	if len(m.Transcript) > 0 {
		if err := json.Unmarshal(m.Transcript, &turns); err != nil {
			return domain.Session{}, fmt.Errorf("decode transcript: %w", err)
		}
	}
	sess := domain.Session{
		Token:      m.Token,
		GuestID:    m.GuestID,
		Transcript: turns,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.ExpiresAt != nil {
		sess.ExpiresAt = *m.ExpiresAt
	}
	return sess, nil
}
