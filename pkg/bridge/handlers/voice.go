package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go/twiml"

	"github.com/voxline/voxline/pkg/bridge/config"
)

// VoiceHandler answers the telephony provider's incoming-call webhook with
// instructions to open a bidirectional media stream back to this service.
type VoiceHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Draining func() bool
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Draining != nil && h.Draining() {
		http.Error(w, "service is draining", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	callID := uuid.NewString()
	from := r.PostFormValue("From")
	twilioCallSID := r.PostFormValue("CallSid")

	h.Logger.Info("incoming call",
		"call_id", callID,
		"from", from,
		"twilio_call_sid", twilioCallSID,
	)

	doc, err := mediaStreamTwiML(h.Config.PublicHost, callID, from)
	if err != nil {
		h.Logger.Error("building call instructions failed", "call_id", callID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(doc))
}

// mediaStreamTwiML renders the connect/stream document pointing the
// provider at the /media websocket for this call.
func mediaStreamTwiML(publicHost, callID, from string) (string, error) {
	q := url.Values{}
	q.Set("call_id", callID)
	if from != "" {
		q.Set("from", from)
	}
	wsURL := fmt.Sprintf("wss://%s/media?%s", publicHost, q.Encode())

	stream := twiml.VoiceStream{
		Name: "voxline-" + callID,
		Url:  wsURL,
	}
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}
	return twiml.Voice([]twiml.Element{connect})
}
