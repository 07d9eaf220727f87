package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSpawnSendsTaskAndToken(t *testing.T) {
	var got SpawnRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/spawn" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer gw-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"sessionKey":"sess-42"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "gw-token", time.Second)
	ref, err := c.Spawn(context.Background(), SpawnRequest{Task: "build it", Label: "forge-build-abc", TimeoutSeconds: 600})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if ref != "sess-42" {
		t.Fatalf("expected sess-42, got %q", ref)
	}
	if got.Task != "build it" || got.Label != "forge-build-abc" || got.TimeoutSeconds != 600 {
		t.Fatalf("unexpected spawn body: %+v", got)
	}
}

func TestSpawnFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		},
		"unauthorized": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		},
		"empty ref": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
		"bad json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
	}
	for name, h := range cases {
		srv := httptest.NewServer(h)
		c := NewClient(srv.URL, "tok", time.Second)
		_, err := c.Spawn(context.Background(), SpawnRequest{Task: "t"})
		srv.Close()
		if !errors.Is(err, ErrDispatch) {
			t.Fatalf("%s: expected ErrDispatch, got %v", name, err)
		}
	}
}

func TestFetchLatest(t *testing.T) {
	var got historyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"messages":[{"role":"assistant","content":[{"type":"text","text":"Deployed!"},{"type":"text","text":"https://coffee-shop.vercel.app"}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	text, err := c.FetchLatest(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.SessionKey != "sess-1" || got.Limit != 1 {
		t.Fatalf("unexpected history body: %+v", got)
	}
	if !strings.Contains(text, "https://coffee-shop.vercel.app") {
		t.Fatalf("expected flattened content, got %q", text)
	}
}

func TestFetchLatestPlainStringAndEmpty(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{body: `{"messages":[{"role":"assistant","content":"working on it"}]}`, want: "working on it"},
		{body: `{"messages":[]}`, want: ""},
	}
	for _, tc := range cases {
		payload, want := tc.body, tc.want
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(payload))
		}))
		c := NewClient(srv.URL, "tok", time.Second)
		text, err := c.FetchLatest(context.Background(), "s")
		srv.Close()
		if err != nil || text != want {
			t.Fatalf("body %s: expected %q, got %q err=%v", payload, want, text, err)
		}
	}
}

func TestFetchLatestTransientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusBadGateway)
	}))
	c := NewClient(srv.URL, "tok", time.Second)
	if _, err := c.FetchLatest(context.Background(), "s"); !errors.Is(err, ErrTransientPoll) {
		t.Fatalf("expected ErrTransientPoll on 502, got %v", err)
	}
	srv.Close()

	// Server gone: network failure.
	if _, err := c.FetchLatest(context.Background(), "s"); !errors.Is(err, ErrTransientPoll) {
		t.Fatalf("expected ErrTransientPoll on network error, got %v", err)
	}
}

func TestBuildTaskEmbedsInputs(t *testing.T) {
	task := BuildTask("  A coffee shop site ", "minimal", "purple", "tok_abc")
	for _, want := range []string{"A coffee shop site", "Style: minimal", "Color theme: purple", "tok_abc"} {
		if !strings.Contains(task, want) {
			t.Fatalf("task missing %q:\n%s", want, task)
		}
	}
	if Label("0123456789abcdef") != "forge-build-01234567" {
		t.Fatalf("unexpected label %q", Label("0123456789abcdef"))
	}
}
