package app

import (
	"errors"

	"github.com/BillK181/wedding-website/pkg/store"
)

var (
	ErrNameRequired = errors.New("name required")
	// ErrNotAMember means the name is not on the guest list.
	ErrNotAMember = errors.New("not on the guest list")
	// ErrRecordMissing means the name is listed but was never seeded into the store.
	ErrRecordMissing = errors.New("guest record missing")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotAdmin        = errors.New("guest list restricted to the administrator")

	ErrInvalidChoice = errors.New("invalid rsvp choice")
	ErrEmptyMessage  = errors.New("message is empty")

	// ErrGeneration wraps every failure of the reply generator, including timeouts
	// and a generator that could not be constructed.
	ErrGeneration = errors.New("reply generation failed")

	ErrNotFound = store.ErrNotFound
)
