package server

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BillK181/wedding-website/internal/ratelimit"
	"github.com/BillK181/wedding-website/internal/sessiontoken"
	"github.com/BillK181/wedding-website/pkg/directory"
	"github.com/BillK181/wedding-website/pkg/domain"
	"github.com/BillK181/wedding-website/pkg/store"
	"github.com/BillK181/wedding-website/services/portal/internal/app"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/publicsuffix"
)

const testSecret = "wedding-portal-test-secret"

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, turns []domain.Turn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type testEnv struct {
	srv *httptest.Server
	gen *fakeGenerator
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	dir, err := directory.New([]string{"Ada Lovelace", "Bill Klinkatsis", "Grace Hopper", "Alan Turing"})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	guests := store.NewMemoryStore()
	if _, err := guests.Seed(context.Background(), []string{"Ada Lovelace", "Bill Klinkatsis", "Grace Hopper"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gen := &fakeGenerator{reply: "Grease is the word!"}
	core, err := app.New(app.Config{
		Directory: dir,
		Guests:    guests,
		Sessions:  store.NewMemorySessionStore(time.Hour),
		Generator: gen,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	sessionCodec, err := sessiontoken.NewCodec(testSecret, "session", time.Hour)
	if err != nil {
		t.Fatalf("session codec: %v", err)
	}
	flashCodec, err := sessiontoken.NewCodec(testSecret, "flash", flashTTL)
	if err != nil {
		t.Fatalf("flash codec: %v", err)
	}
	if limiter == nil {
		limiter, err = ratelimit.NewTokenBucketLimiter(100, time.Minute)
		if err != nil {
			t.Fatalf("limiter: %v", err)
		}
	}
	s, err := New(Config{
		App:          core,
		SessionCodec: sessionCodec,
		FlashCodec:   flashCodec,
		LoginLimiter: limiter,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, gen: gen}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (e *testEnv) postForm(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(e.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (e *testEnv) chat(t *testing.T, c *http.Client, body string) (int, string) {
	t.Helper()
	resp, err := c.Post(e.srv.URL+"/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	return resp.StatusCode, out.Response
}

func (e *testEnv) login(t *testing.T, c *http.Client, name string) {
	t.Helper()
	resp, _ := e.postForm(t, c, "/login", url.Values{"name": {name}})
	if resp.Request.URL.Path != "/" {
		t.Fatalf("login %q landed on %s, want /", name, resp.Request.URL.Path)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func currentName(t *testing.T, e *testEnv, c *http.Client) *string {
	t.Helper()
	_, body := e.get(t, c, "/get_name")
	var out struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode get_name: %v (%s)", err, body)
	}
	return out.Name
}

func TestHomeRedirectsAnonymousToLogin(t *testing.T) {
	e := newTestEnv(t, nil)
	resp, body := e.get(t, e.client(t), "/")
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("landed on %s, want /login", resp.Request.URL.Path)
	}
	if !strings.Contains(body, `action="/login"`) {
		t.Fatalf("login form missing")
	}
}

func TestLoginAnyCasing(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)
	resp, body := e.postForm(t, c, "/login", url.Values{"name": {"  ada LOVELACE "}})
	if resp.Request.URL.Path != "/" {
		t.Fatalf("landed on %s, want /", resp.Request.URL.Path)
	}
	if !strings.Contains(body, "Welcome, Ada Lovelace!") {
		t.Fatalf("home page must greet canonical name")
	}
	name := currentName(t, e, c)
	if name == nil || *name != "Ada Lovelace" {
		t.Fatalf("get_name = %v, want Ada Lovelace", name)
	}
}

func TestLoginFailuresFlash(t *testing.T) {
	e := newTestEnv(t, nil)
	cases := []struct {
		name string
		want string
	}{
		{"   ", msgNameRequired},
		{"Mallory", msgNotOnList},
		{"alan turing", msgGuestNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			c := e.client(t)
			resp, body := e.postForm(t, c, "/login", url.Values{"name": {tc.name}})
			if resp.Request.URL.Path != "/login" {
				t.Fatalf("landed on %s, want /login", resp.Request.URL.Path)
			}
			if !strings.Contains(body, html.EscapeString(tc.want)) {
				t.Fatalf("flash %q missing from page", tc.want)
			}
			if name := currentName(t, e, c); name != nil {
				t.Fatalf("get_name = %q, want null", *name)
			}
			_, again := e.get(t, c, "/login")
			if strings.Contains(again, html.EscapeString(tc.want)) {
				t.Fatalf("flash must be shown only once")
			}
		})
	}
}

func TestGetNameAnonymousIsNull(t *testing.T) {
	e := newTestEnv(t, nil)
	_, body := e.get(t, e.client(t), "/get_name")
	if strings.TrimSpace(body) != `{"name":null}` {
		t.Fatalf("body = %s, want {\"name\":null}", body)
	}
}

func TestTamperedSessionCookieIsIgnored(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)
	u, _ := url.Parse(e.srv.URL)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: sessionCookieName, Value: "not.a.jwt", Path: "/"}})
	if name := currentName(t, e, c); name != nil {
		t.Fatalf("get_name = %q, want null", *name)
	}
	resp, _ := e.get(t, c, "/")
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("landed on %s, want /login", resp.Request.URL.Path)
	}
}

func TestRSVPFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)
	e.login(t, c, "Ada Lovelace")

	_, body := e.get(t, c, "/rsvpage")
	if !strings.Contains(body, "No response") {
		t.Fatalf("fresh guest should show no response")
	}

	resp, body := e.postForm(t, c, "/rsvp", url.Values{"rsvp": {"attending"}})
	if resp.Request.URL.Path != "/rsvpage" {
		t.Fatalf("landed on %s, want /rsvpage", resp.Request.URL.Path)
	}
	if !strings.Contains(body, html.EscapeString("Thanks Ada Lovelace, you RSVP'd: Attending")) {
		t.Fatalf("confirmation flash missing")
	}
	if !strings.Contains(body, `data-status="attending"`) {
		t.Fatalf("rsvp page should show attending")
	}

	_, body = e.postForm(t, c, "/rsvp", url.Values{"rsvp": {"maybe"}})
	if !strings.Contains(body, msgChooseRSVP) {
		t.Fatalf("invalid choice flash missing")
	}
	if !strings.Contains(body, `data-status="attending"`) {
		t.Fatalf("invalid choice must not change status")
	}

	_, body = e.postForm(t, c, "/rsvp", url.Values{"rsvp": {"no"}})
	if !strings.Contains(body, html.EscapeString("Thanks Ada Lovelace, you RSVP'd: Declined")) {
		t.Fatalf("decline confirmation missing")
	}
}

func TestRSVPAnonymous(t *testing.T) {
	e := newTestEnv(t, nil)
	resp, body := e.postForm(t, e.client(t), "/rsvp", url.Values{"rsvp": {"attending"}})
	if resp.Request.URL.Path != "/rsvpage" {
		t.Fatalf("landed on %s, want /rsvpage", resp.Request.URL.Path)
	}
	if !strings.Contains(body, msgGuestNotFound) {
		t.Fatalf("anonymous rsvp flash missing")
	}
}

func TestChat(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)

	if status, msg := e.chat(t, c, `{"message":"hi"}`); status != http.StatusUnauthorized || msg != msgLoginToChat {
		t.Fatalf("anonymous chat = %d %q", status, msg)
	}
	for _, body := range []string{`{"message":`, `not json`, `{"message":"  "}`} {
		if status, msg := e.chat(t, c, body); status != http.StatusUnauthorized || msg != msgLoginToChat {
			t.Fatalf("anonymous chat with body %q = %d %q, want 401", body, status, msg)
		}
	}

	e.login(t, c, "Ada Lovelace")
	if status, msg := e.chat(t, c, `{"message":"   "}`); status != http.StatusBadRequest || msg != msgTypeSomething {
		t.Fatalf("blank chat = %d %q", status, msg)
	}
	if status, msg := e.chat(t, c, `{"message":`); status != http.StatusBadRequest || msg != msgTypeSomething {
		t.Fatalf("malformed chat = %d %q", status, msg)
	}
	if status, msg := e.chat(t, c, `{"message":"What should I wear?"}`); status != http.StatusOK || msg != "Grease is the word!" {
		t.Fatalf("chat = %d %q", status, msg)
	}

	e.gen.fail(errors.New("openai: 429 insufficient_quota"))
	status, msg := e.chat(t, c, `{"message":"And the bus?"}`)
	if status != http.StatusInternalServerError || msg != msgChatFailed {
		t.Fatalf("failing chat = %d %q", status, msg)
	}
	if strings.Contains(msg, "quota") {
		t.Fatalf("raw generator error leaked to client")
	}
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)
	e.login(t, c, "Grace Hopper")

	resp, _ := e.get(t, c, "/logout")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /logout = %d, want 405", resp.StatusCode)
	}
	resp, _ = e.postForm(t, c, "/logout", nil)
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("landed on %s, want /login", resp.Request.URL.Path)
	}
	if name := currentName(t, e, c); name != nil {
		t.Fatalf("get_name after logout = %q", *name)
	}
	if status, _ := e.chat(t, c, `{"message":"still there?"}`); status != http.StatusUnauthorized {
		t.Fatalf("chat after logout = %d, want 401", status)
	}
	resp, _ = e.postForm(t, c, "/logout", nil)
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("second logout landed on %s", resp.Request.URL.Path)
	}
}

func TestCheckStatusAdminOnly(t *testing.T) {
	e := newTestEnv(t, nil)

	guest := e.client(t)
	e.login(t, guest, "Ada Lovelace")
	resp, body := e.get(t, guest, "/checkstatus")
	if resp.Request.URL.Path != "/rsvpage" {
		t.Fatalf("non-admin landed on %s, want /rsvpage", resp.Request.URL.Path)
	}
	if strings.Contains(body, "guest-list") {
		t.Fatalf("non-admin must not see the guest list")
	}

	anon := e.client(t)
	resp, _ = e.get(t, anon, "/checkstatus")
	if resp.Request.URL.Path != "/rsvpage" {
		t.Fatalf("anonymous landed on %s, want /rsvpage", resp.Request.URL.Path)
	}

	admin := e.client(t)
	e.login(t, admin, "bill klinkatsis")
	resp, body = e.get(t, admin, "/checkstatus")
	if resp.Request.URL.Path != "/checkstatus" || resp.StatusCode != http.StatusOK {
		t.Fatalf("admin got %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	ada := strings.Index(body, "Ada Lovelace")
	bill := strings.Index(body, "<td>Bill Klinkatsis")
	grace := strings.Index(body, "Grace Hopper")
	if ada < 0 || bill < 0 || grace < 0 || !(ada < bill && bill < grace) {
		t.Fatalf("guest list must be ordered by name (ada=%d bill=%d grace=%d)", ada, bill, grace)
	}
}

func TestInfoAndCityPages(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)
	e.login(t, c, "Ada Lovelace")

	pages := []struct {
		path     string
		greetsBy bool
	}{
		{"/mr-mrs", true},
		{"/rsvpage", true},
		{"/travel", false},
		{"/registry", false},
		{"/faq", false},
	}
	for _, p := range pages {
		resp, body := e.get(t, c, p.path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d", p.path, resp.StatusCode)
		}
		if p.greetsBy && !strings.Contains(body, "Ada Lovelace") {
			t.Fatalf("GET %s should mention the guest", p.path)
		}
		if !strings.Contains(body, "chatbot-bubble") {
			t.Fatalf("GET %s should include the chat widget for a logged-in guest", p.path)
		}
	}
	for _, city := range cityPages {
		resp, body := e.get(t, c, "/"+city.Route)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET /%s = %d", city.Route, resp.StatusCode)
		}
		if !strings.Contains(body, "<h1>"+city.Title+"</h1>") {
			t.Fatalf("GET /%s missing title %q", city.Route, city.Title)
		}
	}
	resp, _ := e.get(t, c, "/nowhere")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /nowhere = %d, want 404", resp.StatusCode)
	}
}

func TestInfoPagesRenderAnonymously(t *testing.T) {
	e := newTestEnv(t, nil)
	resp, body := e.get(t, e.client(t), "/faq")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /faq = %d", resp.StatusCode)
	}
	if strings.Contains(body, "chatbot-bubble") {
		t.Fatalf("anonymous pages must not include the chat widget")
	}
}

func TestStaticAndHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)
	for _, path := range []string{"/static/js/chatbot.js", "/static/js/countdown.js", "/static/css/site.css"} {
		resp, body := e.get(t, c, path)
		if resp.StatusCode != http.StatusOK || body == "" {
			t.Fatalf("GET %s = %d", path, resp.StatusCode)
		}
	}
	resp, body := e.get(t, c, "/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Fatalf("expected security headers")
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, "test:login", 1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	e := newTestEnv(t, limiter)
	c := e.client(t)
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, _ := e.postForm(t, c, "/login", url.Values{"name": {"Ada Lovelace"}})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("first login = %d, want 302", resp.StatusCode)
	}
	resp, body := e.postForm(t, c, "/login", url.Values{"name": {"Ada Lovelace"}})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second login = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q, want 60", resp.Header.Get("Retry-After"))
	}
	if !strings.Contains(body, msgTooManyLogins) {
		t.Fatalf("rate limit message missing")
	}
}
