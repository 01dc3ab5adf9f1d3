// Package session runs the bridge between one telephone call and one AI
// session. A single goroutine owns all per-call state and consumes both
// event streams, so no mutex guards the call's lifecycle.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxline/voxline/pkg/bridge/aisession"
	"github.com/voxline/voxline/pkg/bridge/identity"
	"github.com/voxline/voxline/pkg/bridge/metrics"
	"github.com/voxline/voxline/pkg/bridge/telephony"
	"github.com/voxline/voxline/pkg/bridge/tools"
	"github.com/voxline/voxline/pkg/bridge/transcripts"
)

// State is the call lifecycle phase. Transitions only move forward.
type State int

const (
	StateInitializing State = iota
	StateAwaitingHandshake
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TelephonyConn is the telephone leg of the call.
type TelephonyConn interface {
	Start()
	Events() <-chan telephony.Event
	Done() <-chan error
	SendMedia(streamSID, payloadB64 string) error
	SendMark(streamSID, name string) error
	SendClear(streamSID string) error
	Close() error
}

// AIConn is the voice-AI leg of the call.
type AIConn interface {
	Start()
	Events() <-chan aisession.Event
	Done() <-chan error
	ConfigureSession(aisession.SessionConfig) error
	AppendAudio(payloadB64 string) error
	SendFunctionOutput(callRef, output string) error
	CreateResponseWith(instructions string) error
	Close() error
}

// ToolDispatcher executes tool calls and advertises their schemas.
type ToolDispatcher interface {
	Definitions() []tools.Definition
	Dispatch(ctx context.Context, callID, name string, args map[string]any, ident *identity.Identity) string
}

// IdentityResolver maps a caller number to a linked account.
type IdentityResolver interface {
	Lookup(ctx context.Context, phoneNumber string) (*identity.Identity, error)
}

// TranscriptStore records the conversation.
type TranscriptStore interface {
	Configured() bool
	CreateConversation(ctx context.Context, phoneNumber, callID string) (string, error)
	AppendMessage(ctx context.Context, conversationID, role, text string) error
	EndConversation(ctx context.Context, conversationID string) error
}

// Config carries the per-call tunables.
type Config struct {
	Instructions     string
	Voice            string
	Greeting         string
	HandshakeTimeout time.Duration
	ToolTimeout      time.Duration
	MaxCallDuration  time.Duration
}

// Dependencies wires one call session. Telephony and AI are required.
type Dependencies struct {
	CallID       string
	CallerNumber string
	Telephony    TelephonyConn
	AI           AIConn
	Tools        ToolDispatcher
	Identity     IdentityResolver
	Transcripts  TranscriptStore
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Config       Config
	Now          func() time.Time
}

// CallSession bridges the two legs of one call.
type CallSession struct {
	deps Dependencies
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// pendingToolCall accumulates one in-flight tool call. At most one exists
// at a time.
type pendingToolCall struct {
	callRef    string
	name       string
	args       strings.Builder
	dispatched bool
}

type dispatchResult struct {
	callRef string
	output  string
	tool    string
}

type transcriptEntry struct {
	role string
	text string
}

func New(deps Dependencies) (*CallSession, error) {
	if deps.Telephony == nil {
		return nil, fmt.Errorf("telephony connection is required")
	}
	if deps.AI == nil {
		return nil, fmt.Errorf("ai connection is required")
	}
	if deps.CallID == "" {
		return nil, fmt.Errorf("call id is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.HandshakeTimeout <= 0 {
		deps.Config.HandshakeTimeout = 30 * time.Second
	}
	if deps.Config.ToolTimeout <= 0 {
		deps.Config.ToolTimeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CallSession{
		deps:   deps,
		log:    deps.Logger.With("call_id", deps.CallID),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Cancel asks the session to shut down. Run returns shortly after.
func (s *CallSession) Cancel() {
	s.cancel()
}

// Run drives the call to completion. It blocks until both legs are closed
// and returns the terminal error, nil for a clean hangup.
func (s *CallSession) Run() error {
	s.deps.Metrics.CallStarted()
	defer s.deps.Metrics.CallEnded()

	state := StateInitializing
	setState := func(next State) {
		if next == state {
			return
		}
		s.log.Info("call state changed", "from", state.String(), "to", next.String())
		state = next
	}

	s.deps.Telephony.Start()
	s.deps.AI.Start()

	// Configure the AI leg first; session.updated is its readiness signal.
	sessCfg := aisession.SessionConfig{
		Instructions: s.deps.Config.Instructions,
		Voice:        s.deps.Config.Voice,
	}
	if s.deps.Tools != nil {
		for _, def := range s.deps.Tools.Definitions() {
			sessCfg.Tools = append(sessCfg.Tools, aisession.Tool{
				Type:        "function",
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			})
		}
	}
	if err := s.deps.AI.ConfigureSession(sessCfg); err != nil {
		s.teardown("")
		return fmt.Errorf("configure ai session: %w", err)
	}
	setState(StateAwaitingHandshake)

	identityCh := make(chan *identity.Identity, 1)
	go s.resolveIdentity(identityCh)

	conversationCh := make(chan string, 1)
	go s.openConversation(conversationCh)

	dispatchCh := make(chan dispatchResult, 1)

	handshakeTimer := time.NewTimer(s.deps.Config.HandshakeTimeout)
	defer handshakeTimer.Stop()

	var maxDurationCh <-chan time.Time
	if s.deps.Config.MaxCallDuration > 0 {
		maxDurationTimer := time.NewTimer(s.deps.Config.MaxCallDuration)
		defer maxDurationTimer.Stop()
		maxDurationCh = maxDurationTimer.C
	}

	// Per-call state, owned by this goroutine only.
	var (
		streamSID      string
		aiReady        bool
		greetingSent   bool
		pending        *pendingToolCall
		ident          *identity.Identity
		conversationID string
		backlog        []transcriptEntry
		assistantBuf   strings.Builder
		turnSeq        int

		loggedDropAINotReady bool
		loggedDropNoStream   bool
		loggedDropQueueFull  bool
		loggedLateToolResult bool
	)

	maybeGreet := func() {
		if greetingSent || streamSID == "" || !aiReady {
			return
		}
		greetingSent = true
		if !handshakeTimer.Stop() {
			select {
			case <-handshakeTimer.C:
			default:
			}
		}
		if err := s.deps.AI.CreateResponseWith(s.deps.Config.Greeting); err != nil {
			s.log.Warn("greeting request failed", "error", err)
			return
		}
		setState(StateActive)
		s.log.Info("handshake complete, greeting requested")
	}

	flushTranscript := func(role, text string) {
		if s.deps.Transcripts == nil || !s.deps.Transcripts.Configured() {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if conversationID == "" {
			backlog = append(backlog, transcriptEntry{role: role, text: text})
			return
		}
		s.appendTranscript(conversationID, role, text)
	}

	var runErr error

	telephonyEvents := s.deps.Telephony.Events()
	aiEvents := s.deps.AI.Events()

loop:
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("session canceled")
			break loop

		case <-handshakeTimer.C:
			if !greetingSent {
				runErr = errors.New("handshake timed out before both legs were ready")
				break loop
			}

		case <-maxDurationCh:
			s.log.Info("maximum call duration reached")
			break loop

		case ident = <-identityCh:
			identityCh = nil
			if ident != nil {
				s.log.Info("caller identity resolved", "platform_user", ident.PlatformUserID)
			}

		case conversationID = <-conversationCh:
			conversationCh = nil
			if conversationID != "" {
				for _, entry := range backlog {
					s.appendTranscript(conversationID, entry.role, entry.text)
				}
				backlog = nil
			}

		case res := <-dispatchCh:
			if pending == nil || pending.callRef != res.callRef {
				if !loggedLateToolResult {
					loggedLateToolResult = true
					s.log.Warn("discarding tool result with no pending call", "tool", res.tool)
				}
				continue
			}
			if err := s.deps.AI.SendFunctionOutput(res.callRef, res.output); err != nil {
				s.log.Warn("sending tool output failed", "tool", res.tool, "error", err)
			}
			pending = nil

		case ev, ok := <-telephonyEvents:
			if !ok {
				telephonyEvents = nil
				runErr = s.waitDone(s.deps.Telephony.Done(), "telephone leg")
				break loop
			}
			switch e := ev.(type) {
			case telephony.Connected:
				s.log.Debug("media stream connected")

			case telephony.StreamStart:
				streamSID = e.StreamSID
				s.log.Info("media stream started", "stream_sid", e.StreamSID, "twilio_call_sid", e.CallSID)
				maybeGreet()

			case telephony.MediaFrame:
				if !aiReady {
					s.deps.Metrics.FrameDropped("ai_not_ready")
					if !loggedDropAINotReady {
						loggedDropAINotReady = true
						s.log.Warn("dropping caller audio until the ai session is ready")
					}
					continue
				}
				if err := s.deps.AI.AppendAudio(e.PayloadB64); err != nil {
					s.log.Warn("forwarding caller audio failed", "error", err)
					continue
				}
				s.deps.Metrics.FrameRelayed("inbound")

			case telephony.DTMF:
				s.log.Info("dtmf received", "digit", e.Digit)

			case telephony.MarkEcho:
				s.log.Debug("playback mark echoed", "mark", e.Name)

			case telephony.StreamStop:
				s.log.Info("caller hung up")
				break loop

			case telephony.Unknown:
				s.log.Debug("ignoring telephony event", "event", e.Event)
			}

		case ev, ok := <-aiEvents:
			if !ok {
				aiEvents = nil
				runErr = s.waitDone(s.deps.AI.Done(), "ai leg")
				break loop
			}
			switch e := ev.(type) {
			case aisession.SessionCreated:
				s.log.Debug("ai session created")

			case aisession.SessionUpdated:
				aiReady = true
				s.log.Info("ai session configured")
				maybeGreet()

			case aisession.AudioDelta:
				if streamSID == "" {
					s.deps.Metrics.FrameDropped("stream_not_started")
					if !loggedDropNoStream {
						loggedDropNoStream = true
						s.log.Warn("dropping assistant audio until the media stream starts")
					}
					continue
				}
				if err := s.deps.Telephony.SendMedia(streamSID, e.DeltaB64); err != nil {
					s.deps.Metrics.FrameDropped("queue_full")
					if !loggedDropQueueFull {
						loggedDropQueueFull = true
						s.log.Warn("dropping assistant audio, outbound queue full", "error", err)
					}
					continue
				}
				s.deps.Metrics.FrameRelayed("outbound")

			case aisession.SpeechStarted:
				if streamSID == "" {
					continue
				}
				s.deps.Metrics.BargeIn()
				if err := s.deps.Telephony.SendClear(streamSID); err != nil {
					s.log.Warn("clearing playback failed", "error", err)
					continue
				}
				s.log.Debug("caller interrupted, playback cleared")

			case aisession.SpeechStopped:
				s.log.Debug("caller speech ended")

			case aisession.TranscriptDelta:
				assistantBuf.WriteString(e.Delta)

			case aisession.TranscriptDone:
				text := e.Text
				if text == "" {
					text = assistantBuf.String()
				}
				assistantBuf.Reset()
				flushTranscript(transcripts.RoleAssistant, text)

			case aisession.InputTranscriptCompleted:
				flushTranscript(transcripts.RoleUser, e.Text)

			case aisession.ToolCallDelta:
				if pending != nil && pending.dispatched {
					continue
				}
				if pending == nil || pending.callRef != e.CallRef {
					if pending != nil {
						s.log.Warn("replacing unfinished tool call", "old_ref", pending.callRef)
					}
					pending = &pendingToolCall{callRef: e.CallRef}
				}
				pending.args.WriteString(e.DeltaArg)

			case aisession.ToolCallDone:
				if pending != nil && pending.dispatched {
					continue
				}
				if pending == nil || pending.callRef != e.CallRef {
					pending = &pendingToolCall{callRef: e.CallRef}
					pending.args.WriteString(e.Arguments)
				}
				pending.name = e.Name

			case aisession.TurnDone:
				if streamSID != "" {
					turnSeq++
					// the mark echoes back once the provider has played
					// everything queued before it
					if err := s.deps.Telephony.SendMark(streamSID, fmt.Sprintf("turn-%d", turnSeq)); err != nil {
						s.log.Debug("sending playback mark failed", "error", err)
					}
				}
				if pending == nil || pending.dispatched || pending.name == "" {
					continue
				}
				pending.dispatched = true
				s.dispatchTool(pending, ident, dispatchCh)

			case aisession.ResponseCreated:
				// a new turn started

			case aisession.ErrorEvent:
				s.log.Warn("ai session reported an error", "code", e.Code, "message", e.Message)

			case aisession.Unknown:
				s.log.Debug("ignoring ai event", "type", e.Type)
			}
		}
	}

	setState(StateClosing)
	if text := strings.TrimSpace(assistantBuf.String()); text != "" {
		flushTranscript(transcripts.RoleAssistant, text)
	}
	s.teardown(conversationID)
	setState(StateClosed)
	return runErr
}

// dispatchTool runs the tool off the event loop so slow providers never
// stall audio relay. The result comes back through dispatchCh; a session
// that ended first discards it.
func (s *CallSession) dispatchTool(p *pendingToolCall, ident *identity.Identity, dispatchCh chan<- dispatchResult) {
	raw := p.args.String()
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			s.log.Warn("tool arguments did not parse, dispatching with none",
				"tool", p.name, "error", err)
			args = map[string]any{}
		}
	}

	name := p.name
	callRef := p.callRef
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.deps.Config.ToolTimeout)
		defer cancel()

		var output string
		if s.deps.Tools == nil {
			output = tools.Result{Success: false, Error: "no tools are configured"}.JSON()
		} else {
			output = s.deps.Tools.Dispatch(ctx, s.deps.CallID, name, args, ident)
		}

		var outcome struct {
			Success bool `json:"success"`
		}
		_ = json.Unmarshal([]byte(output), &outcome)
		s.deps.Metrics.ToolDispatched(name, outcome.Success)

		select {
		case dispatchCh <- dispatchResult{callRef: callRef, output: output, tool: name}:
		case <-s.ctx.Done():
			s.log.Warn("discarding tool result, session already ended", "tool", name)
		}
	}()
}

func (s *CallSession) resolveIdentity(out chan<- *identity.Identity) {
	defer close(out)
	if s.deps.Identity == nil || s.deps.CallerNumber == "" {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	ident, err := s.deps.Identity.Lookup(ctx, s.deps.CallerNumber)
	if err != nil {
		s.log.Warn("identity lookup failed, treating caller as unauthenticated", "error", err)
		return
	}
	select {
	case out <- ident:
	default:
	}
}

func (s *CallSession) openConversation(out chan<- string) {
	defer close(out)
	if s.deps.Transcripts == nil || !s.deps.Transcripts.Configured() {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	id, err := s.deps.Transcripts.CreateConversation(ctx, s.deps.CallerNumber, s.deps.CallID)
	if err != nil {
		s.log.Warn("transcript conversation not created", "error", err)
		return
	}
	select {
	case out <- id:
	default:
	}
}

func (s *CallSession) appendTranscript(conversationID, role, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.deps.Transcripts.AppendMessage(ctx, conversationID, role, text); err != nil {
			s.log.Warn("transcript append failed", "role", role, "error", err)
		}
	}()
}

func (s *CallSession) waitDone(done <-chan error, leg string) error {
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s failed: %w", leg, err)
		}
		return nil
	case <-time.After(time.Second):
		return nil
	}
}

func (s *CallSession) teardown(conversationID string) {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.deps.Telephony.Close(); err != nil {
			s.log.Debug("telephony close", "error", err)
		}
		if err := s.deps.AI.Close(); err != nil {
			s.log.Debug("ai close", "error", err)
		}
		if conversationID != "" && s.deps.Transcripts != nil && s.deps.Transcripts.Configured() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.deps.Transcripts.EndConversation(ctx, conversationID); err != nil {
				s.log.Warn("transcript not closed", "error", err)
			}
		}
	})
}
