package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voxline/voxline/pkg/bridge/config"
)

type fakeCallCreator struct {
	params *api.CreateCallParams
	err    error
}

func (f *fakeCallCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "CA999"
	return &api.ApiV2010Call{Sid: &sid}, nil
}

func TestCallsHandlerPlacesOutboundCall(t *testing.T) {
	tw := &fakeCallCreator{}
	h := CallsHandler{
		Config: config.Config{PublicHost: "bridge.example.com", TwilioFromNumber: "+15550001111"},
		Logger: slog.Default(),
		Twilio: tw,
	}

	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{"to":"+15552223333"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if tw.params == nil {
		t.Fatal("twilio was never called")
	}
	if got := *tw.params.To; got != "+15552223333" {
		t.Fatalf("to = %q", got)
	}
	if got := *tw.params.From; got != "+15550001111" {
		t.Fatalf("from = %q", got)
	}
	if !strings.Contains(*tw.params.Twiml, "wss://bridge.example.com/media?") {
		t.Fatalf("twiml missing media url: %s", *tw.params.Twiml)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body: %v", err)
	}
	if resp["twilio_call_sid"] != "CA999" || resp["call_id"] == "" {
		t.Fatalf("response = %v", resp)
	}
}

func TestCallsHandlerValidation(t *testing.T) {
	h := CallsHandler{
		Config: config.Config{PublicHost: "x", TwilioFromNumber: "+15550001111"},
		Logger: slog.Default(),
		Twilio: &fakeCallCreator{},
	}

	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{"to":""}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty to: status = %d, want 400", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`not json`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status = %d, want 400", rr.Code)
	}
}

func TestCallsHandlerUnconfigured(t *testing.T) {
	h := CallsHandler{Config: config.Config{PublicHost: "x"}, Logger: slog.Default()}
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{"to":"+1555"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rr.Code)
	}
}
