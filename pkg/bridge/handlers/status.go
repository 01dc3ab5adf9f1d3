package handlers

import (
	"log/slog"
	"net/http"
)

// StatusHandler receives call status callbacks from the telephony provider.
// The callbacks are informational; the session learns about hangups from
// the media stream itself.
type StatusHandler struct {
	Logger *slog.Logger
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	h.Logger.Info("call status update",
		"twilio_call_sid", r.PostFormValue("CallSid"),
		"status", r.PostFormValue("CallStatus"),
		"duration", r.PostFormValue("CallDuration"),
	)
	w.WriteHeader(http.StatusNoContent)
}
