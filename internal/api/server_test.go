package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"milgramgo/pkg/session"
	"milgramgo/pkg/tracker"
	"milgramgo/pkg/version"
)

func newTestServer(t *testing.T, shutdown func()) http.Handler {
	t.Helper()
	h := newAPIHarness(t)
	mgr := session.New(h.queue, h.player, &scriptedSource{}, nil, nil)
	t.Cleanup(mgr.Stop)

	if shutdown == nil {
		shutdown = func() {}
	}
	srv := NewServer("127.0.0.1:0",
		NewPlayerHandler(h.player, nil),
		NewQueueHandler(h.queue, h.player),
		NewSessionHandler(mgr, context.Background()),
		NewImageHandler(h.player),
		NewStatsHandler(tracker.New(), h.queue, h.player, mgr),
		NewHub(nil),
		shutdown,
	)
	return srv.Handler
}

func TestServer_Health(t *testing.T) {
	handler := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "OK" {
		t.Errorf("Expected OK body, got %q", rr.Body.String())
	}
}

func TestServer_Version(t *testing.T) {
	handler := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/version", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !strings.Contains(rr.Body.String(), version.Version) {
		t.Errorf("Expected version in body, got %q", rr.Body.String())
	}
}

func TestServer_Shutdown(t *testing.T) {
	var called atomic.Bool
	handler := newTestServer(t, func() { called.Store(true) })

	req := httptest.NewRequest("POST", "/api/shutdown", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !called.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !called.Load() {
		t.Error("Expected shutdown callback to fire")
	}
}

func TestServer_ServesUI(t *testing.T) {
	handler := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<html") {
		t.Error("Expected HTML document at root")
	}
}

func TestServer_SPAFallback(t *testing.T) {
	handler := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/some/client/route", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 via SPA fallback, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<html") {
		t.Error("Expected index.html via SPA fallback")
	}
}
