package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/BillK181/wedding-website/internal/ratelimit"
	"github.com/BillK181/wedding-website/internal/sessiontoken"
	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/services/portal/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	SessionCodec   *sessiontoken.Codec
	FlashCodec     *sessiontoken.Codec
	LoginLimiter   ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	CookieSecure   bool
}

// Server exposes the guest portal pages and its JSON endpoints.
type Server struct {
	app          *app.App
	sessions     *sessiontoken.Codec
	flashes      *sessiontoken.Codec
	loginLimiter ratelimit.Limiter
	trusted      *util.TrustedProxies
	cookieSecure bool
	pages        map[string]*template.Template
	static       http.Handler
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.SessionCodec == nil || cfg.FlashCodec == nil {
		return nil, errors.New("session and flash codecs required")
	}
	if cfg.LoginLimiter == nil {
		return nil, errors.New("login limiter required")
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	staticFS, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}
	s := &Server{
		app:          cfg.App,
		sessions:     cfg.SessionCodec,
		flashes:      cfg.FlashCodec,
		loginLimiter: cfg.LoginLimiter,
		trusted:      cfg.TrustedProxies,
		cookieSecure: cfg.CookieSecure,
		pages:        pages,
		static:       http.StripPrefix("/static/", http.FileServerFS(staticFS)),
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("portal", s.trusted, util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/static/", s.static)

	// json
	s.mux.HandleFunc("/get_name", s.handleGetName)
	s.mux.HandleFunc("/chat", s.handleChat)

	// forms
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.HandleFunc("/rsvp", s.handleRSVP)

	// pages
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/mr-mrs", s.infoPage("mr_mrs", "Mr. & Mrs."))
	s.mux.HandleFunc("/rsvpage", s.handleRSVPPage)
	s.mux.HandleFunc("/travel", s.infoPage("travel", "Travel"))
	s.mux.HandleFunc("/registry", s.infoPage("registry", "Registry"))
	s.mux.HandleFunc("/faq", s.infoPage("faq", "FAQ"))
	s.mux.HandleFunc("/checkstatus", s.handleCheckStatus)
	for _, city := range cityPages {
		s.mux.HandleFunc("/"+city.Route, s.cityPage(city))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	d := limiter.Allow(r.Context(), key)
	if d.Allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	return false
}

// internalError logs err against the request and answers with a generic message.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	internalLog(r, msg, err)
	http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
}

func internalLog(r *http.Request, msg string, err error) {
	util.LoggerFromContext(r.Context()).Error(msg, "err", err)
}
