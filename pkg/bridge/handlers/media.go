package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/pkg/bridge/config"
	"github.com/voxline/voxline/pkg/bridge/metrics"
	"github.com/voxline/voxline/pkg/bridge/session"
	"github.com/voxline/voxline/pkg/bridge/sessions"
	"github.com/voxline/voxline/pkg/bridge/telephony"
)

// AIDialer opens the AI leg for a new call.
type AIDialer func(ctx context.Context) (session.AIConn, error)

// MediaHandler accepts the telephony provider's media-stream websocket and
// runs the call session to completion.
type MediaHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *sessions.Registry
	Metrics  *metrics.Metrics
	DialAI   AIDialer

	Identity    session.IdentityResolver
	Transcripts session.TranscriptStore
	Tools       session.ToolDispatcher
	Draining    func() bool
}

func (h MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Draining != nil && h.Draining() {
		http.Error(w, "service is draining", http.StatusServiceUnavailable)
		return
	}

	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		// a stream opened outside the voice webhook still gets a session
		callID = uuid.NewString()
	}
	callerNumber := r.URL.Query().Get("from")
	log := h.Logger.With("call_id", callID)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("media stream upgrade failed", "error", err)
		return
	}

	dialCtx, cancelDial := context.WithTimeout(r.Context(), h.Config.ConnectTimeout)
	ai, err := h.DialAI(dialCtx)
	cancelDial()
	if err != nil {
		log.Error("ai session dial failed", "error", err)
		_ = conn.Close()
		return
	}

	tel := telephony.NewChannel(conn, log, telephony.Config{
		WriteTimeout:      h.Config.WriteTimeout,
		PingInterval:      h.Config.PingInterval,
		OutboundQueueSize: h.Config.OutboundQueueSize,
	})

	s, err := session.New(session.Dependencies{
		CallID:       callID,
		CallerNumber: callerNumber,
		Telephony:    tel,
		AI:           ai,
		Tools:        h.Tools,
		Identity:     h.Identity,
		Transcripts:  h.Transcripts,
		Logger:       h.Logger,
		Metrics:      h.Metrics,
		Config: session.Config{
			Instructions:     h.Config.Instructions,
			Voice:            h.Config.AIVoice,
			Greeting:         h.Config.Greeting,
			HandshakeTimeout: h.Config.HandshakeTimeout,
			ToolTimeout:      h.Config.ToolTimeout,
			MaxCallDuration:  h.Config.MaxCallDuration,
		},
	})
	if err != nil {
		log.Error("building call session failed", "error", err)
		_ = conn.Close()
		_ = ai.Close()
		return
	}

	unregister := h.Registry.Register(callID, s.Cancel)
	defer unregister()

	log.Info("call session starting", "caller", callerNumber)
	if err := s.Run(); err != nil {
		log.Error("call session ended with error", "error", err)
		return
	}
	log.Info("call session ended")
}
