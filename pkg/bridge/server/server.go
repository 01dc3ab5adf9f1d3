// Package server assembles the HTTP surface of the bridge and owns its
// drain lifecycle.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twilio/twilio-go"

	"github.com/voxline/voxline/pkg/bridge/aisession"
	"github.com/voxline/voxline/pkg/bridge/config"
	"github.com/voxline/voxline/pkg/bridge/handlers"
	"github.com/voxline/voxline/pkg/bridge/identity"
	"github.com/voxline/voxline/pkg/bridge/metrics"
	"github.com/voxline/voxline/pkg/bridge/mw"
	"github.com/voxline/voxline/pkg/bridge/session"
	"github.com/voxline/voxline/pkg/bridge/sessions"
	"github.com/voxline/voxline/pkg/bridge/tools"
	"github.com/voxline/voxline/pkg/bridge/tools/adapters/wireposts"
	"github.com/voxline/voxline/pkg/bridge/transcripts"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *sessions.Registry
	metrics  *metrics.Metrics
	draining atomic.Bool
}

// Options override the default collaborators, mainly for tests.
type Options struct {
	Registry *prometheus.Registry
	Twilio   handlers.CallCreator
	DialAI   handlers.AIDialer
}

func New(cfg config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	promReg := opts.Registry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: sessions.NewRegistry(),
		metrics:  metrics.New(promReg),
	}

	dialAI := opts.DialAI
	if dialAI == nil {
		dialAI = func(ctx context.Context) (session.AIConn, error) {
			client, err := aisession.Dial(ctx, aisession.Config{
				URL:    cfg.AIRealtimeURL,
				APIKey: cfg.AIAPIKey,
				Model:  cfg.AIModel,
			}, logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}

	twilioClient := opts.Twilio
	if twilioClient == nil && cfg.TwilioFromNumber != "" {
		twilioClient = twilio.NewRestClient().Api
	}

	dispatcher := tools.NewDispatcher(logger,
		tools.WirepostsTools(wireposts.NewClient(cfg.WirepostsAPIKey, cfg.WirepostsBaseURL, httpClient))...)

	s.routes(promReg, httpClient, twilioClient, dialAI, dispatcher)
	return s
}

func (s *Server) routes(promReg *prometheus.Registry, httpClient *http.Client, twilioClient handlers.CallCreator, dialAI handlers.AIDialer, dispatcher *tools.Dispatcher) {
	draining := s.Draining

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:   s.cfg,
		Registry: s.registry,
		Draining: draining,
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	s.mux.Handle("/voice", handlers.VoiceHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Draining: draining,
	})
	s.mux.Handle("/voice/status", handlers.StatusHandler{Logger: s.logger})
	s.mux.Handle("/calls", handlers.CallsHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Twilio:   twilioClient,
		Draining: draining,
	})
	s.mux.Handle("/media", handlers.MediaHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Registry:    s.registry,
		Metrics:     s.metrics,
		DialAI:      dialAI,
		Identity:    identity.NewClient(s.cfg.IdentityBaseURL, httpClient),
		Transcripts: transcripts.NewClient(s.cfg.TranscriptsBaseURL, httpClient),
		Tools:       dispatcher,
		Draining:    draining,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Draining reports whether shutdown has begun.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// Shutdown stops accepting new calls, waits up to the grace period for
// live calls to finish, then cancels the remainder.
func (s *Server) Shutdown(ctx context.Context) {
	s.draining.Store(true)
	active := s.registry.Count()
	s.logger.Info("draining", "active_calls", active)

	if s.registry.Wait(ctx) {
		s.logger.Info("all calls finished")
		return
	}
	canceled := s.registry.CancelAll()
	s.logger.Warn("grace period elapsed, canceling calls", "canceled", canceled)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.registry.Wait(waitCtx)
}
