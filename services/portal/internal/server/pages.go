package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/BillK181/wedding-website/pkg/domain"
	"github.com/BillK181/wedding-website/services/portal/internal/app"
)

//go:embed templates/*.html static
var assets embed.FS

var pageNames = []string{"login", "index", "mr_mrs", "rsvp", "travel", "registry", "faq", "checkstatus", "city"}

// cityPage is one entry of the things-to-do route table.
type cityPage struct {
	Route   string
	Title   string
	Summary string
}

var cityPages = []cityPage{
	{Route: "laguna", Title: "Laguna Beach", Summary: "Tide pools, art galleries and sunset walks along Heisler Park."},
	{Route: "newport_beach", Title: "Newport Beach", Summary: "Balboa Island, the Fun Zone and harbor cruises."},
	{Route: "dana_point", Title: "Dana Point", Summary: "Whale watching, the harbor and Doheny State Beach."},
	{Route: "san_clemente", Title: "San Clemente", Summary: "The pier, Avenida Del Mar and the venue itself at Ole Hanson Beach Club."},
	{Route: "irvine", Title: "Irvine", Summary: "Irvine Spectrum Center, home of the hotel block and the wedding shuttle."},
	{Route: "san_diego", Title: "San Diego", Summary: "Balboa Park, the Gaslamp Quarter and La Jolla Cove."},
	{Route: "los_angeles", Title: "Los Angeles", Summary: "Griffith Observatory, Santa Monica Pier and the Getty."},
	{Route: "anaheim", Title: "Anaheim", Summary: "Disneyland Resort and Angel Stadium."},
}

type pageData struct {
	Title      string
	Name       string
	Flash      string
	IsAdmin    bool
	RSVPStatus string
	RSVPLabel  string
	Guests     []guestRow
	City       cityPage
	Cities     []cityPage
}

type guestRow struct {
	Name       string
	RSVPStatus string
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(assets, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := s.pages[page]
	if !ok {
		internalError(w, r, "render page failed", fmt.Errorf("unknown page %q", page))
		return
	}
	if data.Cities == nil {
		data.Cities = cityPages
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		internalError(w, r, "render page failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// currentIdentity resolves the session cookie. ok is false for anonymous visitors.
func (s *Server) currentIdentity(r *http.Request) (app.Identity, bool, error) {
	token, ok := s.sessionToken(r)
	if !ok {
		return app.Identity{}, false, nil
	}
	return s.app.Resolve(r.Context(), token)
}

// basePage fills the fields every page shares.
func (s *Server) basePage(w http.ResponseWriter, r *http.Request, title string) (pageData, app.Identity, bool, error) {
	id, ok, err := s.currentIdentity(r)
	if err != nil {
		return pageData{}, app.Identity{}, false, err
	}
	data := pageData{Title: title, Flash: s.popFlash(w, r)}
	if ok {
		data.Name = id.Guest.Name
		data.IsAdmin = s.app.IsAdmin(id.Guest.Name)
	}
	return data, id, ok, nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok, err := s.currentIdentity(r)
	if err != nil {
		internalError(w, r, "resolve session failed", err)
		return
	}
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "index", pageData{
		Title:   "Marisa & Bill",
		Name:    id.Guest.Name,
		IsAdmin: s.app.IsAdmin(id.Guest.Name),
		Flash:   s.popFlash(w, r),
	})
}

func (s *Server) infoPage(page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		data, _, _, err := s.basePage(w, r, title)
		if err != nil {
			internalError(w, r, "resolve session failed", err)
			return
		}
		s.render(w, r, http.StatusOK, page, data)
	}
}

func (s *Server) cityPage(city cityPage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		data, _, _, err := s.basePage(w, r, city.Title)
		if err != nil {
			internalError(w, r, "resolve session failed", err)
			return
		}
		data.City = city
		s.render(w, r, http.StatusOK, "city", data)
	}
}

func (s *Server) handleRSVPPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	data, id, ok, err := s.basePage(w, r, "RSVP")
	if err != nil {
		internalError(w, r, "resolve session failed", err)
		return
	}
	if ok {
		data.RSVPStatus = string(id.Guest.RSVPStatus)
		data.RSVPLabel = id.Guest.RSVPStatus.Label()
	}
	s.render(w, r, http.StatusOK, "rsvp", data)
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, _ := s.sessionToken(r)
	guests, err := s.app.ListGuests(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnauthenticated):
			s.audit(r, "portal.guest_list", "fail", "reason", "unauthenticated")
		case errors.Is(err, app.ErrNotAdmin):
			s.audit(r, "portal.guest_list", "fail", "reason", "forbidden")
		default:
			internalError(w, r, "list guests failed", err)
			return
		}
		http.Redirect(w, r, "/rsvpage", http.StatusFound)
		return
	}
	s.audit(r, "portal.guest_list", "success")
	data, _, _, err := s.basePage(w, r, "Guest list")
	if err != nil {
		internalError(w, r, "resolve session failed", err)
		return
	}
	data.Guests = guestRows(guests)
	s.render(w, r, http.StatusOK, "checkstatus", data)
}

func guestRows(guests []domain.Guest) []guestRow {
	rows := make([]guestRow, 0, len(guests))
	for _, g := range guests {
		rows = append(rows, guestRow{Name: g.Name, RSVPStatus: g.RSVPStatus.Label()})
	}
	return rows
}
