package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/voxline/voxline/pkg/bridge/config"
)

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestVoiceHandlerReturnsStreamInstructions(t *testing.T) {
	h := VoiceHandler{
		Config: config.Config{PublicHost: "bridge.example.com"},
		Logger: slog.Default(),
	}

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("CallSid", "CA123")
	rr := postForm(t, h, "/voice", form)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("content type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<Connect>") || !strings.Contains(body, "<Stream") {
		t.Fatalf("body missing connect/stream: %s", body)
	}
	if !strings.Contains(body, "wss://bridge.example.com/media?") {
		t.Fatalf("body missing media url: %s", body)
	}
	if !strings.Contains(body, "call_id=") {
		t.Fatalf("body missing call_id: %s", body)
	}
	if !strings.Contains(body, url.QueryEscape("+15551234567")) {
		t.Fatalf("body missing caller number: %s", body)
	}
}

func TestVoiceHandlerRejectsGet(t *testing.T) {
	h := VoiceHandler{Config: config.Config{PublicHost: "x"}, Logger: slog.Default()}
	req := httptest.NewRequest(http.MethodGet, "/voice", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestVoiceHandlerRefusesWhileDraining(t *testing.T) {
	h := VoiceHandler{
		Config:   config.Config{PublicHost: "x"},
		Logger:   slog.Default(),
		Draining: func() bool { return true },
	}
	rr := postForm(t, h, "/voice", url.Values{})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestStatusHandlerAcceptsCallback(t *testing.T) {
	h := StatusHandler{Logger: slog.Default()}
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	rr := postForm(t, h, "/voice/status", form)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
}
