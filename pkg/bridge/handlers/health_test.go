package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxline/voxline/pkg/bridge/config"
	"github.com/voxline/voxline/pkg/bridge/sessions"
)

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyHandlerReady(t *testing.T) {
	h := ReadyHandler{
		Config:   config.Config{AIAPIKey: "sk-test", PublicHost: "bridge.example.com"},
		Registry: sessions.NewRegistry(),
		Draining: func() bool { return false },
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK          bool `json:"ok"`
		ActiveCalls int  `json:"active_calls"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if !resp.OK {
		t.Fatal("expected ok")
	}
}

func TestReadyHandlerNotReadyWhileDraining(t *testing.T) {
	h := ReadyHandler{
		Config:   config.Config{AIAPIKey: "sk-test", PublicHost: "x"},
		Registry: sessions.NewRegistry(),
		Draining: func() bool { return true },
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestReadyHandlerMissingConfig(t *testing.T) {
	h := ReadyHandler{Config: config.Config{}, Registry: sessions.NewRegistry()}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
