package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the bridge reads from the environment. Twilio REST
// credentials (TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN) are read by the Twilio
// SDK itself and are intentionally not duplicated here.
type Config struct {
	Addr string

	// PublicHost is the externally reachable host (no scheme) used when
	// building the wss:// media-stream URL returned from the voice webhook.
	PublicHost string

	LogLevel string
	// LogFile enables an additional rotating log file when non-empty.
	LogFile string

	// Realtime AI endpoint.
	AIRealtimeURL string
	AIAPIKey      string
	AIModel       string
	AIVoice       string
	Instructions  string
	Greeting      string

	// TwilioFromNumber is the caller ID for outbound dials. Outbound dialing
	// is disabled when empty.
	TwilioFromNumber string

	// External collaborators.
	IdentityBaseURL    string
	TranscriptsBaseURL string
	WirepostsBaseURL   string
	WirepostsAPIKey    string

	// Per-call timings.
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ToolTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxCallDuration  time.Duration

	OutboundQueueSize int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOXLINE_ADDR", ":8080"),
		PublicHost:          envOr("VOXLINE_PUBLIC_HOST", ""),
		LogLevel:            envOr("VOXLINE_LOG_LEVEL", "info"),
		LogFile:             envOr("VOXLINE_LOG_FILE", ""),
		AIRealtimeURL:       envOr("VOXLINE_AI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		AIAPIKey:            envOr("VOXLINE_AI_API_KEY", ""),
		AIModel:             envOr("VOXLINE_AI_MODEL", "gpt-4o-realtime-preview"),
		AIVoice:             envOr("VOXLINE_AI_VOICE", "alloy"),
		Instructions:        envOr("VOXLINE_INSTRUCTIONS", defaultInstructions),
		Greeting:            envOr("VOXLINE_GREETING", defaultGreeting),
		TwilioFromNumber:    envOr("VOXLINE_TWILIO_FROM", ""),
		IdentityBaseURL:     envOr("VOXLINE_IDENTITY_BASE_URL", ""),
		TranscriptsBaseURL:  envOr("VOXLINE_TRANSCRIPTS_BASE_URL", ""),
		WirepostsBaseURL:    envOr("VOXLINE_WIREPOSTS_BASE_URL", "https://api.wireposts.net"),
		WirepostsAPIKey:     envOr("VOXLINE_WIREPOSTS_API_KEY", ""),
		ConnectTimeout:      envDurationOr("VOXLINE_CONNECT_TIMEOUT", 10*time.Second),
		HandshakeTimeout:    envDurationOr("VOXLINE_HANDSHAKE_TIMEOUT", 30*time.Second),
		ToolTimeout:         envDurationOr("VOXLINE_TOOL_TIMEOUT", 15*time.Second),
		WriteTimeout:        envDurationOr("VOXLINE_WRITE_TIMEOUT", 5*time.Second),
		PingInterval:        envDurationOr("VOXLINE_PING_INTERVAL", 20*time.Second),
		MaxCallDuration:     envDurationOr("VOXLINE_MAX_CALL_DURATION", 30*time.Minute),
		OutboundQueueSize:   envIntOr("VOXLINE_OUTBOUND_QUEUE_SIZE", 128),
		ReadHeaderTimeout:   envDurationOr("VOXLINE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOXLINE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("VOXLINE_LOG_LEVEL must be one of debug|info|warn|error")
	}
	if strings.TrimSpace(cfg.AIAPIKey) == "" {
		return Config{}, fmt.Errorf("VOXLINE_AI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.AIRealtimeURL) == "" {
		return Config{}, fmt.Errorf("VOXLINE_AI_REALTIME_URL must not be empty")
	}
	if strings.TrimSpace(cfg.AIModel) == "" {
		return Config{}, fmt.Errorf("VOXLINE_AI_MODEL must not be empty")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_TOOL_TIMEOUT must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_WRITE_TIMEOUT must be > 0")
	}
	if cfg.PingInterval <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_PING_INTERVAL must be > 0")
	}
	if cfg.MaxCallDuration < 0 {
		return Config{}, fmt.Errorf("VOXLINE_MAX_CALL_DURATION must be >= 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXLINE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

const defaultInstructions = "You are a friendly phone assistant for the Wireposts network. " +
	"Keep answers short and conversational; this is a voice call. " +
	"Use tools to look things up or act on the caller's behalf, and expand numbers and abbreviations for speech."

const defaultGreeting = "Greet the caller briefly, introduce yourself as the Wireposts assistant, and ask how you can help."

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
