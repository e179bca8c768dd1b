package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"milgramgo/pkg/tracker"
)

// memCache is a minimal in-memory Cacher for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) GetCache(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memCache) SetCache(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestNormalizeProvider(t *testing.T) {
	cases := map[string]string{
		"api.openai.com":                  "openai",
		"generativelanguage.googleapis.com": "genai",
		"localhost:8000":                  "localhost:8000",
		"experiment.example.org":          "experiment.example.org",
	}
	for host, want := range cases {
		if got := normalizeProvider(host); got != want {
			t.Errorf("normalizeProvider(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestGetCaching(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("payload"))
	}))
	defer ts.Close()

	c := New(newMemCache(), tracker.New(), 5*time.Second)

	for i := 0; i < 3; i++ {
		body, err := c.Get(context.Background(), ts.URL+"/resource", "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(body) != "payload" {
			t.Errorf("unexpected body %q", body)
		}
	}

	// The worker caches before replying, so only the first call hits the server.
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 upstream hit, got %d", got)
	}
}

func TestGetNoCacheKey(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer ts.Close()

	c := New(newMemCache(), tracker.New(), 5*time.Second)

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), ts.URL, ""); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 upstream hits without cache key, got %d", got)
	}
}

func TestPostSendsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		w.Write(buf[:n])
	}))
	defer ts.Close()

	c := New(newMemCache(), tracker.New(), 5*time.Second)

	body, err := c.Post(context.Background(), ts.URL, []byte(`{"role":"Professor"}`), "application/json")
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if string(body) != `{"role":"Professor"}` {
		t.Errorf("echo mismatch: %q", body)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer ts.Close()

	c := New(newMemCache(), tracker.New(), 10*time.Second)

	body, err := c.Get(context.Background(), ts.URL, "")
	if err != nil {
		t.Fatalf("Get failed after retries: %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("unexpected body %q", body)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClientErrorNoRetry(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(newMemCache(), tracker.New(), 5*time.Second)

	if _, err := c.Get(context.Background(), ts.URL, ""); err == nil {
		t.Fatal("expected error on 404")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected exactly 1 attempt for 404, got %d", got)
	}
}

func TestContextCancellation(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	c := New(newMemCache(), tracker.New(), 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, ts.URL, "")
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
