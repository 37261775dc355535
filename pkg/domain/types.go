package domain

import (
	"strings"
	"time"
)

type RSVPStatus string

const (
	RSVPUnset     RSVPStatus = ""
	RSVPAttending RSVPStatus = "attending"
	RSVPDeclined  RSVPStatus = "declined"
)

// ParseRSVPChoice maps a submitted choice onto a settable status.
// The legacy form literals "yes" and "no" are accepted as aliases.
func ParseRSVPChoice(raw string) (RSVPStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "attending", "yes":
		return RSVPAttending, true
	case "declined", "no":
		return RSVPDeclined, true
	default:
		return RSVPUnset, false
	}
}

// Label is the capitalized form shown to guests.
func (s RSVPStatus) Label() string {
	switch s {
	case RSVPAttending:
		return "Attending"
	case RSVPDeclined:
		return "Declined"
	default:
		return "No response"
	}
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleGuest     Role = "guest"
	RoleAssistant Role = "assistant"
)

type Guest struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	RSVPStatus RSVPStatus `json:"rsvpStatus"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	Token      string    `json:"token"`
	GuestID    string    `json:"guestId"`
	Transcript []Turn    `json:"transcript"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the session carries a deadline that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// NormalizeName is the comparison key for guest names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
