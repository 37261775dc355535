package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BillK181/wedding-website/pkg/domain"
)

const migrateLockID int64 = 29082026

// GormStore implements GuestStore using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
// Postgres URLs select the Postgres driver; anything else is treated as a SQLite path,
// with an optional sqlite:/// prefix.
func NewGormStore(dsn string) (*GormStore, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&GuestModel{}, &SessionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if db.Dialector.Name() == "postgres" {
		err = withMigrationLock(db, migrate)
	} else {
		// SQLite allows one writer at a time.
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return nil, fmt.Errorf("get sql db: %w", dbErr)
		}
		sqlDB.SetMaxOpenConns(1)
		err = migrate(db)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, errors.New("database url required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite:///"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:///")), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// DB exposes the underlying handle so other stores can share the connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Seed inserts guests missing from the table. Existing rows are left untouched.
func (s *GormStore) Seed(ctx context.Context, names []string) (int, error) {
	var added []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var keys []string
		if err := tx.Model(&GuestModel{}).Pluck("name_key", &keys).Error; err != nil {
			return fmt.Errorf("load guest keys: %w", err)
		}
		existing := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			existing[key] = struct{}{}
		}
		now := time.Now().UTC()
		for _, raw := range names {
			name := strings.TrimSpace(raw)
			key := domain.NormalizeName(name)
			if key == "" {
				continue
			}
			if _, ok := existing[key]; ok {
				continue
			}
			model := GuestModel{
				ID:        uuid.NewString(),
				Name:      name,
				NameKey:   key,
				CreatedAt: now,
				UpdatedAt: now,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
			if res.Error != nil {
				return fmt.Errorf("seed guest %s: %w", name, res.Error)
			}
			existing[key] = struct{}{}
			if res.RowsAffected > 0 {
				added = append(added, name)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, name := range added {
		slog.Info("seeded guest", "name", name)
	}
	return len(added), nil
}

// FindByName looks up a guest case-insensitively.
func (s *GormStore) FindByName(ctx context.Context, name string) (domain.Guest, bool, error) {
	key := domain.NormalizeName(name)
	if key == "" {
		return domain.Guest{}, false, nil
	}
	var model GuestModel
	if err := s.db.WithContext(ctx).Where("name_key = ?", key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Guest{}, false, nil
		}
		return domain.Guest{}, false, err
	}
	return guestFromModel(model), true, nil
}

// FindByID returns a guest by ID.
func (s *GormStore) FindByID(ctx context.Context, id string) (domain.Guest, bool, error) {
	var model GuestModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Guest{}, false, nil
		}
		return domain.Guest{}, false, err
	}
	return guestFromModel(model), true, nil
}

// SetRSVP overwrites the guest's RSVP status in a single statement.
func (s *GormStore) SetRSVP(ctx context.Context, id string, status domain.RSVPStatus) error {
	var value *string
	if status != domain.RSVPUnset {
		v := string(status)
		value = &v
	}
	res := s.db.WithContext(ctx).Model(&GuestModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"rsvp_status": value,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGuests returns all guests ordered by name.
func (s *GormStore) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	var models []GuestModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Guest, 0, len(models))
	for _, m := range models {
		res = append(res, guestFromModel(m))
	}
	return res, nil
}

func guestFromModel(m GuestModel) domain.Guest {
	status := domain.RSVPUnset
	if m.RSVPStatus != nil {
		status = domain.RSVPStatus(*m.RSVPStatus)
	}
	return domain.Guest{
		ID:         m.ID,
		Name:       m.Name,
		RSVPStatus: status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
