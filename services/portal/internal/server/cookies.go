package server

import (
	"net/http"
	"time"
)

const (
	sessionCookieName = "portal_session"
	flashCookieName   = "portal_flash"
	flashTTL          = 5 * time.Minute
)

// sessionToken returns the server-side session token carried by the signed cookie.
func (s *Server) sessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	token, err := s.sessions.Verify(c.Value)
	if err != nil {
		return "", false
	}
	return token, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) error {
	signed, err := s.sessions.Sign(token)
	if err != nil {
		return err
	}
	c := s.cookie(sessionCookieName, signed)
	if ttl := s.sessions.TTL(); ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, c)
	return nil
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	c := s.cookie(sessionCookieName, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// flash stores a one-shot message shown on the next rendered page.
func (s *Server) flash(w http.ResponseWriter, r *http.Request, msg string) {
	signed, err := s.flashes.Sign(msg)
	if err != nil {
		internalLog(r, "sign flash failed", err)
		return
	}
	c := s.cookie(flashCookieName, signed)
	c.MaxAge = int(flashTTL.Seconds())
	http.SetCookie(w, c)
}

// popFlash returns the pending flash message, if any, and clears it.
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	expired := s.cookie(flashCookieName, "")
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	msg, err := s.flashes.Verify(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

func (s *Server) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
