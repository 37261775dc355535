package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/ai"
	"github.com/BillK181/wedding-website/pkg/directory"
	"github.com/BillK181/wedding-website/pkg/domain"
	"github.com/BillK181/wedding-website/pkg/queue"
	"github.com/BillK181/wedding-website/pkg/store"
	"github.com/BillK181/wedding-website/services/portal/internal/briefing"
)

const (
	DefaultAdminName         = "Bill Klinkatsis"
	defaultGenerationTimeout = 60 * time.Second
)

// Config holds runtime dependencies for the portal core.
type Config struct {
	Directory *directory.Directory
	Guests    store.GuestStore
	Sessions  store.SessionStore
	Generator ai.ChatGenerator
	// Events receives accepted RSVP changes. Optional.
	Events            queue.RSVPPublisher
	Facts             []briefing.Fact
	AdminName         string
	GenerationTimeout time.Duration
}

// App resolves visitors to guests and owns their RSVP and conversation state.
type App struct {
	directory  *directory.Directory
	guests     store.GuestStore
	sessions   store.SessionStore
	generator  ai.ChatGenerator
	events     queue.RSVPPublisher
	facts      []briefing.Fact
	adminName  string
	genTimeout time.Duration
	chatLocks  *keyedMutex
}

// Identity is a resolved session together with its guest.
type Identity struct {
	Session domain.Session
	Guest   domain.Guest
}

func New(cfg Config) (*App, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("guest directory required")
	}
	if cfg.Guests == nil {
		return nil, fmt.Errorf("guest store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("reply generator required")
	}
	facts := cfg.Facts
	if len(facts) == 0 {
		facts = briefing.DefaultFacts()
	}
	adminName := strings.TrimSpace(cfg.AdminName)
	if adminName == "" {
		adminName = DefaultAdminName
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &App{
		directory:  cfg.Directory,
		guests:     cfg.Guests,
		sessions:   cfg.Sessions,
		generator:  cfg.Generator,
		events:     cfg.Events,
		facts:      facts,
		adminName:  adminName,
		genTimeout: timeout,
		chatLocks:  newKeyedMutex(),
	}, nil
}

// Seed creates a guest record for every listed name that lacks one.
func (a *App) Seed(ctx context.Context) (int, error) {
	added, err := a.guests.Seed(ctx, a.directory.Names())
	if err != nil {
		return 0, fmt.Errorf("seed guests: %w", err)
	}
	return added, nil
}

// Login starts a session for the listed guest whose name matches, ignoring case and surrounding space.
func (a *App) Login(ctx context.Context, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ErrNameRequired
	}
	canonical, ok := a.directory.Canonicalize(name)
	if !ok {
		return Identity{}, ErrNotAMember
	}
	guest, ok, err := a.guests.FindByName(ctx, canonical)
	if err != nil {
		return Identity{}, fmt.Errorf("find guest: %w", err)
	}
	if !ok {
		slog.Error("listed guest has no record", "name", canonical)
		return Identity{}, ErrRecordMissing
	}
	sess, err := a.sessions.CreateSession(ctx, guest.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("create session: %w", err)
	}
	return Identity{Session: sess, Guest: guest}, nil
}

// Resolve returns the identity bound to token. A missing token, an unknown
// or expired session, and a session whose guest no longer exists all report false.
func (a *App) Resolve(ctx context.Context, token string) (Identity, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, false, nil
	}
	sess, ok, err := a.sessions.GetSession(ctx, token)
	if err != nil {
		return Identity{}, false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return Identity{}, false, nil
	}
	guest, ok, err := a.guests.FindByID(ctx, sess.GuestID)
	if err != nil {
		return Identity{}, false, fmt.Errorf("load guest: %w", err)
	}
	if !ok {
		slog.Warn("session references missing guest", "guestId", sess.GuestID)
		if err := a.sessions.DeleteSession(ctx, token); err != nil {
			slog.Warn("drop orphaned session failed", "err", err)
		}
		return Identity{}, false, nil
	}
	return Identity{Session: sess, Guest: guest}, true, nil
}

// CurrentName returns the display name bound to token.
func (a *App) CurrentName(ctx context.Context, token string) (string, bool, error) {
	id, ok, err := a.Resolve(ctx, token)
	if err != nil || !ok {
		return "", false, err
	}
	return id.Guest.Name, true, nil
}

// Logout ends the session. Unknown and empty tokens are not an error.
func (a *App) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SubmitRSVP records choice for the session's guest and returns the confirmation line.
func (a *App) SubmitRSVP(ctx context.Context, token, choice string) (string, error) {
	id, ok, err := a.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	status, ok := domain.ParseRSVPChoice(choice)
	if !ok {
		return "", ErrInvalidChoice
	}
	if err := a.guests.SetRSVP(ctx, id.Guest.ID, status); err != nil {
		return "", fmt.Errorf("set rsvp: %w", err)
	}
	if a.events != nil {
		if _, err := a.events.Publish(ctx, queue.RSVPEvent{
			GuestID:   id.Guest.ID,
			GuestName: id.Guest.Name,
			Status:    status,
		}); err != nil {
			slog.Warn("publish rsvp event failed", "guestId", id.Guest.ID, "err", err)
		}
	}
	return fmt.Sprintf("Thanks %s, you RSVP'd: %s", id.Guest.Name, status.Label()), nil
}

// conversePersistAttempts bounds how often a reply is regenerated when another
// instance saved turns for the same session while this one was generating.
const conversePersistAttempts = 2

// Converse appends message to the session transcript, asks the generator for
// the next reply and persists both turns. Calls for one session run one at a
// time in this process; across processes the store's compare-and-set on the
// transcript length detects overlap and the turn is rebuilt on the fresh
// transcript. The transcript is only written after a reply was produced.
func (a *App) Converse(ctx context.Context, token, message string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	unlock := a.chatLocks.Lock(token)
	defer unlock()

	var err error
	for attempt := 1; attempt <= conversePersistAttempts; attempt++ {
		var reply string
		reply, err = a.converseOnce(ctx, token, message)
		if !errors.Is(err, store.ErrConflict) {
			return reply, err
		}
		util.LoggerFromContext(ctx).Warn("transcript changed during generation", "attempt", attempt)
	}
	return "", fmt.Errorf("%w: %w", ErrGeneration, err)
}

func (a *App) converseOnce(ctx context.Context, token, message string) (string, error) {
	id, ok, err := a.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	base := len(id.Session.Transcript)
	turns := make([]domain.Turn, 0, base+3)
	turns = append(turns, id.Session.Transcript...)
	if base == 0 {
		turns = append(turns, domain.Turn{
			Role:    domain.RoleSystem,
			Content: briefing.Preamble(a.facts, id.Guest.Name),
		})
	}
	turns = append(turns, domain.Turn{
		Role:    domain.RoleGuest,
		Content: fmt.Sprintf("%s says: %s", id.Guest.Name, message),
	})

	genCtx, cancel := context.WithTimeout(ctx, a.genTimeout)
	defer cancel()
	reply, err := a.generator.Generate(genCtx, turns)
	if err != nil {
		util.LoggerFromContext(ctx).Error("generate reply failed", "guestId", id.Guest.ID, "turns", len(turns), "err", err)
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: %w", ErrGeneration, ai.ErrEmptyResponse)
	}
	turns = append(turns, domain.Turn{Role: domain.RoleAssistant, Content: reply})

	if err := a.sessions.SaveTranscript(ctx, token, base, turns); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return "", ErrUnauthenticated
		case errors.Is(err, store.ErrConflict):
			return "", err
		}
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return reply, nil
}

// IsAdmin reports whether name is exactly the configured administrator name.
func (a *App) IsAdmin(name string) bool {
	return name == a.adminName
}

// ListGuests returns every guest ordered by name, for the administrator only.
func (a *App) ListGuests(ctx context.Context, token string) ([]domain.Guest, error) {
	id, ok, err := a.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !a.IsAdmin(id.Guest.Name) {
		return nil, ErrNotAdmin
	}
	guests, err := a.guests.ListGuests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	return guests, nil
}
