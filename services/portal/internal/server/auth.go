package server

import (
	"errors"
	"net/http"

	"github.com/BillK181/wedding-website/services/portal/internal/app"
)

const (
	msgNameRequired   = "Please enter your name."
	msgNotOnList      = "Sorry, you're not on the guest list. Please ensure your name matches the invitation."
	msgGuestNotFound  = "Error: Guest not found in database."
	msgTooManyLogins  = "Too many login attempts. Please wait a minute and try again."
	msgSomethingWrong = "Something went wrong. Please try again."
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, http.StatusOK, "login", pageData{Title: "Welcome", Flash: s.popFlash(w, r)})
	case http.MethodPost:
		s.submitLogin(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) submitLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter) {
		s.audit(r, "portal.login", "rate_limited")
		s.render(w, r, http.StatusTooManyRequests, "login", pageData{Title: "Welcome", Flash: msgTooManyLogins})
		return
	}
	if err := r.ParseForm(); err != nil {
		s.audit(r, "portal.login", "fail", "reason", "invalid_form")
		s.flash(w, r, msgNameRequired)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	id, err := s.app.Login(r.Context(), r.PostForm.Get("name"))
	if err != nil {
		var msg, reason string
		switch {
		case errors.Is(err, app.ErrNameRequired):
			msg, reason = msgNameRequired, "name_required"
		case errors.Is(err, app.ErrNotAMember):
			msg, reason = msgNotOnList, "not_a_member"
		case errors.Is(err, app.ErrRecordMissing):
			msg, reason = msgGuestNotFound, "record_missing"
		default:
			internalLog(r, "login failed", err)
			msg, reason = msgSomethingWrong, "internal"
		}
		s.audit(r, "portal.login", "fail", "reason", reason)
		s.flash(w, r, msg)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if prev, ok := s.sessionToken(r); ok {
		if err := s.app.Logout(r.Context(), prev); err != nil {
			internalLog(r, "drop previous session failed", err)
		}
	}
	if err := s.setSessionCookie(w, id.Session.Token); err != nil {
		internalError(w, r, "sign session cookie failed", err)
		return
	}
	s.audit(r, "portal.login", "success", "guest_id", id.Guest.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if token, ok := s.sessionToken(r); ok {
		if err := s.app.Logout(r.Context(), token); err != nil {
			internalLog(r, "logout failed", err)
		}
	}
	s.clearSessionCookie(w)
	s.audit(r, "portal.logout", "success")
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleGetName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var name *string
	if token, ok := s.sessionToken(r); ok {
		n, found, err := s.app.CurrentName(r.Context(), token)
		if err != nil {
			internalLog(r, "resolve session failed", err)
		} else if found {
			name = &n
		}
	}
	writeJSON(w, http.StatusOK, map[string]*string{"name": name})
}
