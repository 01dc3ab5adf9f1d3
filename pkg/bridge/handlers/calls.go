package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voxline/voxline/pkg/bridge/config"
)

// CallCreator is the slice of the Twilio REST API used for outbound dials.
// *twilio.RestClient's Api service satisfies it.
type CallCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// CallsHandler places outbound calls. The dialed party lands on the same
// media-stream bridge as an inbound caller.
type CallsHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Twilio   CallCreator
	Draining func() bool
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Draining != nil && h.Draining() {
		http.Error(w, "service is draining", http.StatusServiceUnavailable)
		return
	}
	if h.Twilio == nil || h.Config.TwilioFromNumber == "" {
		http.Error(w, "outbound dialing is not configured", http.StatusNotImplemented)
		return
	}

	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		http.Error(w, "to is required", http.StatusBadRequest)
		return
	}

	callID := uuid.NewString()
	doc, err := mediaStreamTwiML(h.Config.PublicHost, callID, to)
	if err != nil {
		h.Logger.Error("building call instructions failed", "call_id", callID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(h.Config.TwilioFromNumber)
	params.SetTwiml(doc)
	params.SetStatusCallback(fmt.Sprintf("https://%s/voice/status", h.Config.PublicHost))

	resp, err := h.Twilio.CreateCall(params)
	if err != nil {
		h.Logger.Error("outbound dial failed", "call_id", callID, "to", to, "error", err)
		http.Error(w, "dial failed", http.StatusBadGateway)
		return
	}

	twilioSID := ""
	if resp.Sid != nil {
		twilioSID = *resp.Sid
	}
	h.Logger.Info("outbound call placed", "call_id", callID, "to", to, "twilio_call_sid", twilioSID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"call_id":         callID,
		"twilio_call_sid": twilioSID,
	})
}
