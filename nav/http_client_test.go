package nav

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func serveMap(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchMap_Success(t *testing.T) {
	muteLogs(t)
	srv := serveMap(t, officeMapJSON(t))

	g, err := FetchMap(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("FetchMap() error: %v", err)
	}
	if g == nil {
		t.Fatal("FetchMap() returned nil graph")
		return
	}
	if n := len(g.Landmarks()); n != 3 {
		t.Errorf("landmarks = %d, want 3", n)
	}
	if _, ok := g.Edge("C", "B"); !ok {
		t.Error("expected synthesized C -> B")
	}
}

func TestFetchMap_EmptyURL(t *testing.T) {
	_, err := FetchMap("")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
	if !strings.Contains(err.Error(), "URL is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFetchMap_InvalidJSON(t *testing.T) {
	srv := serveMap(t, []byte("not json"))

	_, err := FetchMap(srv.URL, WithHTTPClient(srv.Client()), WithMaxRetries(1))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "parsing map JSON") {
		t.Errorf("expected parse error, got: %v", err)
	}
}

func TestFetchMap_ServerError_Retries(t *testing.T) {
	muteLogs(t)
	body := officeMapJSON(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	g, err := FetchMap(srv.URL,
		WithHTTPClient(srv.Client()),
		WithMaxRetries(3),
		WithBaseBackoff(1*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("FetchMap() error: %v", err)
	}
	if g == nil {
		t.Fatal("FetchMap() returned nil graph")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetchMap_AllRetriesFail(t *testing.T) {
	muteLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := FetchMap(srv.URL,
		WithHTTPClient(srv.Client()),
		WithMaxRetries(2),
		WithBaseBackoff(1*time.Millisecond),
	)
	if err == nil {
		t.Fatal("expected error after all retries exhausted")
	}
	if !strings.Contains(err.Error(), "all 2 attempts failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFetchMap_ContextCancellation(t *testing.T) {
	muteLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchMapWithContext(ctx, srv.URL,
		WithHTTPClient(srv.Client()),
		WithMaxRetries(3),
		WithBaseBackoff(1*time.Millisecond),
	)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestFetchMap_NoRetryOnParseError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{"anchors": []}`))
	}))
	defer srv.Close()

	_, err := FetchMap(srv.URL,
		WithHTTPClient(srv.Client()),
		WithMaxRetries(3),
		WithBaseBackoff(1*time.Millisecond),
	)
	if err == nil {
		t.Fatal("expected error for a map without anchors")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt (no retry on parse error), got %d", got)
	}
}

func TestFetchMap_NoRetryOnClientError(t *testing.T) {
	muteLogs(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchMap(srv.URL,
		WithHTTPClient(srv.Client()),
		WithMaxRetries(3),
		WithBaseBackoff(1*time.Millisecond),
	)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected a 404 StatusError, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt for a 404, got %d", got)
	}
}

func TestFetchMap_RetriesTooManyRequests(t *testing.T) {
	muteLogs(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := FetchMap(srv.URL,
		WithHTTPClient(srv.Client()),
		WithMaxRetries(2),
		WithBaseBackoff(1*time.Millisecond),
	)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 429 to be retried, got %d attempts", got)
	}
}

func TestLoadMap_Sources(t *testing.T) {
	muteLogs(t)
	body := officeMapJSON(t)

	path := filepath.Join(t.TempDir(), "office.json")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadMap(context.Background(), path); err != nil {
		t.Errorf("LoadMap(file): %v", err)
	}

	srv := serveMap(t, body)
	if _, err := LoadMap(context.Background(), srv.URL, WithHTTPClient(srv.Client())); err != nil {
		t.Errorf("LoadMap(url): %v", err)
	}
}

func TestFetchOptions_Defaults(t *testing.T) {
	cfg := defaultFetchConfig()
	if cfg.timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.timeout)
	}
	if cfg.maxRetries != 3 {
		t.Errorf("default maxRetries = %d, want 3", cfg.maxRetries)
	}
	if cfg.baseBackoff != 500*time.Millisecond {
		t.Errorf("default baseBackoff = %v, want 500ms", cfg.baseBackoff)
	}
	if cfg.client != nil {
		t.Error("default client should be nil")
	}
}
