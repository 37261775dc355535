package server

import (
	"errors"
	"net/http"

	"github.com/BillK181/wedding-website/services/portal/internal/app"
)

const msgChooseRSVP = "Please select an RSVP option."

func (s *Server) handleRSVP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	defer http.Redirect(w, r, "/rsvpage", http.StatusFound)

	token, _ := s.sessionToken(r)
	if err := r.ParseForm(); err != nil {
		s.flash(w, r, msgChooseRSVP)
		return
	}
	msg, err := s.app.SubmitRSVP(r.Context(), token, r.PostForm.Get("rsvp"))
	switch {
	case err == nil:
		s.flash(w, r, msg)
	case errors.Is(err, app.ErrUnauthenticated):
		s.flash(w, r, msgGuestNotFound)
	case errors.Is(err, app.ErrInvalidChoice):
		s.flash(w, r, msgChooseRSVP)
	default:
		internalLog(r, "submit rsvp failed", err)
		s.flash(w, r, msgSomethingWrong)
	}
}
