package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxline/voxline/pkg/bridge/config"
	"github.com/voxline/voxline/pkg/bridge/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Registry *sessions.Registry
	Draining func() bool
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		ActiveCalls int      `json:"active_calls"`
		Draining    bool     `json:"draining"`
		Issues      []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	if h.Config.AIAPIKey == "" {
		issues = append(issues, "ai api key is not configured")
	}
	if h.Config.PublicHost == "" {
		issues = append(issues, "public host is not configured")
	}

	draining := h.Draining != nil && h.Draining()
	resp := readyResp{
		OK:          len(issues) == 0 && !draining,
		ActiveCalls: h.Registry.Count(),
		Draining:    draining,
		Issues:      issues,
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
