package store

import (
	"context"
	"errors"

	"github.com/BillK181/wedding-website/pkg/domain"
)

var (
	// ErrNotFound is returned when an update targets a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a transcript changed after the caller read it.
	ErrConflict = errors.New("transcript changed concurrently")
)

// GuestStore persists guest records and their RSVP state.
type GuestStore interface {
	// Seed creates a record for every name not already present and reports how many were added.
	Seed(ctx context.Context, names []string) (int, error)
	FindByName(ctx context.Context, name string) (domain.Guest, bool, error)
	FindByID(ctx context.Context, id string) (domain.Guest, bool, error)
	SetRSVP(ctx context.Context, id string, status domain.RSVPStatus) error
	// ListGuests returns every guest ordered by name.
	ListGuests(ctx context.Context) ([]domain.Guest, error)
}

// SessionStore binds opaque tokens to guests and keeps their transcripts.
type SessionStore interface {
	CreateSession(ctx context.Context, guestID string) (domain.Session, error)
	GetSession(ctx context.Context, token string) (domain.Session, bool, error)
	// SaveTranscript replaces the stored transcript only if it still holds
	// base turns, the length the caller started from. It fails with ErrConflict
	// when another writer got there first and with ErrNotFound when the session
	// was deleted or expired in the meantime.
	SaveTranscript(ctx context.Context, token string, base int, turns []domain.Turn) error
	DeleteSession(ctx context.Context, token string) error
}
