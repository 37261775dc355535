package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/BillK181/wedding-website/pkg/domain"
)

var sampleTurns = []domain.Turn{
	{Role: domain.RoleSystem, Content: "You are a wedding assistant."},
	{Role: domain.RoleGuest, Content: "Ada Lovelace says: What time?"},
	{Role: domain.RoleAssistant, Content: "4:00pm"},
	{Role: domain.RoleGuest, Content: "Ada Lovelace says: Thanks"},
}

func TestOpenAICompatGeneratorSendsOrderedTurns(t *testing.T) {
	var got oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  You're welcome!  "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1/", "sk-test", "gpt-4o")
	reply, err := gen.Generate(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "You're welcome!" {
		t.Fatalf("reply = %q, want trimmed text", reply)
	}
	if got.Model != "gpt-4o" {
		t.Fatalf("model = %q", got.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, msg := range got.Messages {
		if msg.Role != wantRoles[i] {
			t.Fatalf("message %d role = %q, want %q", i, msg.Role, wantRoles[i])
		}
		if msg.Content != sampleTurns[i].Content {
			t.Fatalf("message %d content = %q", i, msg.Content)
		}
	}
}

func TestOpenAICompatGeneratorSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL, "sk-test", "gpt-4o")
	_, err := gen.Generate(context.Background(), sampleTurns)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Message != "quota exceeded" || !apiErr.RateLimited() {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestOpenAICompatGeneratorEmptyChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL, "", "local")
	if _, err := gen.Generate(context.Background(), sampleTurns); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Errorf("stream should be disabled")
		}
		if len(req.Messages) != len(sampleTurns) {
			t.Errorf("expected %d messages, got %d", len(sampleTurns), len(req.Messages))
		}
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Groovy!"}}`))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL+"/", "llama3")
	reply, err := gen.Generate(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Groovy!" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGeminiGeneratorMapsRoles(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "key" {
			t.Errorf("api key header = %q", key)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("api key must not travel in the query: %q", r.URL.RawQuery)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"See you there"}]}}]}`))
	}))
	defer srv.Close()

	gen, err := NewGeminiGenerator("", "key", "models/gemini-2.0-flash")
	if err != nil {
		t.Fatalf("new gemini generator: %v", err)
	}
	if gen.baseURL != defaultGeminiBaseURL {
		t.Fatalf("baseURL = %q, want default", gen.baseURL)
	}
	gen.baseURL = srv.URL
	reply, err := gen.Generate(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "See you there" {
		t.Fatalf("reply = %q", reply)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != sampleTurns[0].Content {
		t.Fatalf("system instruction not set: %+v", got.SystemInstruction)
	}
	wantRoles := []string{"user", "model", "user"}
	if len(got.Contents) != len(wantRoles) {
		t.Fatalf("expected %d contents, got %d", len(wantRoles), len(got.Contents))
	}
	for i, c := range got.Contents {
		if c.Role != wantRoles[i] {
			t.Fatalf("content %d role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
}

func TestNewGeneratorPassesBaseURLToGemini(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`))
	}))
	defer srv.Close()

	gen, err := NewGenerator(Config{Provider: "gemini", BaseURL: srv.URL + "/v1beta/", APIKey: "key", Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	reply, err := gen.Generate(context.Background(), []domain.Turn{{Role: domain.RoleGuest, Content: "hello"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "hi" {
		t.Fatalf("reply = %q, want hi", reply)
	}
	if !strings.HasPrefix(gotPath, "/v1beta/models/gemini-2.0-flash") {
		t.Fatalf("request went to %q, want the configured base URL", gotPath)
	}
}

func TestNewGeneratorRequiresKeyForOpenAI(t *testing.T) {
	if _, err := NewGenerator(Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if gen, err := NewGenerator(Config{Provider: "gemini"}); !errors.Is(err, ErrMissingAPIKey) || gen != nil {
		t.Fatalf("expected nil gemini generator without key, got %v %v", gen, err)
	}
	if _, err := NewGenerator(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	gen, err := NewGenerator(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	oai, ok := gen.(*OpenAICompatGenerator)
	if !ok {
		t.Fatalf("expected openai generator, got %T", gen)
	}
	if oai.model != defaultOpenAIModel || oai.baseURL != defaultOpenAIBaseURL {
		t.Fatalf("unexpected defaults: model=%q baseURL=%q", oai.model, oai.baseURL)
	}
}

func TestErrorMessageShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "string", body: `{"error":"model not found"}`, want: "model not found"},
		{name: "object", body: `{"error":{"message":"bad key","code":401}}`, want: "bad key"},
		{name: "html", body: `<html>bad gateway</html>`, want: ""},
		{name: "empty", body: ``, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorMessage([]byte(tc.body)); got != tc.want {
				t.Fatalf("errorMessage = %q want %q", got, tc.want)
			}
		})
	}
}

func TestAPIErrorFallsBackToStatusText(t *testing.T) {
	err := &APIError{Provider: "ollama", StatusCode: http.StatusBadGateway}
	if got := err.Error(); got != "ollama api error (502): Bad Gateway" {
		t.Fatalf("Error() = %q", got)
	}
}

type stubGenerator struct{ reply string }

func (s stubGenerator) Generate(context.Context, []domain.Turn) (string, error) {
	return s.reply, nil
}

func TestLazyGeneratorBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	lazy := NewLazyGenerator(func() (ChatGenerator, error) {
		builds.Add(1)
		return stubGenerator{reply: "ok"}, nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lazy.Generate(context.Background(), sampleTurns); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := builds.Load(); n != 1 {
		t.Fatalf("expected a single construction, got %d", n)
	}
}

func TestLazyGeneratorRemembersFailure(t *testing.T) {
	var builds atomic.Int32
	lazy := NewLazyGenerator(func() (ChatGenerator, error) {
		builds.Add(1)
		return nil, ErrMissingAPIKey
	})
	for i := 0; i < 3; i++ {
		if _, err := lazy.Generate(context.Background(), sampleTurns); !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey, got %v", err)
		}
	}
	if n := builds.Load(); n != 1 {
		t.Fatalf("expected a single construction attempt, got %d", n)
	}
}
