package aisession

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The realtime endpoint frames every message as a JSON object with a "type"
// discriminator. The server vocabulary is large and grows over time, so the
// decoder maps the events the bridge acts on to typed variants and everything
// else to Unknown.

type Event any

type SessionCreated struct{}

// SessionUpdated confirms the requested session configuration, including the
// audio format. Audio must not be appended before this arrives.
type SessionUpdated struct{}

// AudioDelta carries one chunk of assistant speech, base64 encoded in the
// session's negotiated telephony codec.
type AudioDelta struct {
	ResponseID string
	DeltaB64   string
}

type TranscriptDelta struct {
	Delta string
}

type TranscriptDone struct {
	Text string
}

// InputTranscriptCompleted is the caller-side transcript; it arrives as one
// complete unit per utterance.
type InputTranscriptCompleted struct {
	Text string
}

// ToolCallDelta is one ordered fragment of a tool call's argument text.
type ToolCallDelta struct {
	CallRef  string
	DeltaArg string
}

// ToolCallDone closes a tool call, carrying its authoritative name and, when
// the fragments were elided by the server, the full argument text.
type ToolCallDone struct {
	CallRef   string
	Name      string
	Arguments string
}

// TurnDone marks the end of a response turn; a pending tool call is
// dispatched at this point.
type TurnDone struct{}

type ResponseCreated struct{}

// SpeechStarted signals caller barge-in detected by server-side VAD.
type SpeechStarted struct{}

type SpeechStopped struct{}

type ErrorEvent struct {
	Code    string
	Message string
}

type Unknown struct {
	Type string
}

type serverEnvelope struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Item       *struct {
		Type      string `json:"type"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"item,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DecodeServerEvent decodes one frame from the AI socket.
func DecodeServerEvent(data []byte) (Event, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid ai frame: %w", err)
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return nil, fmt.Errorf("ai frame missing type field")
	}

	switch typ {
	case "session.created":
		return SessionCreated{}, nil
	case "session.updated":
		return SessionUpdated{}, nil
	case "response.audio.delta":
		return AudioDelta{ResponseID: env.ResponseID, DeltaB64: env.Delta}, nil
	case "response.audio_transcript.delta":
		return TranscriptDelta{Delta: env.Delta}, nil
	case "response.audio_transcript.done":
		return TranscriptDone{Text: env.Transcript}, nil
	case "conversation.item.input_audio_transcription.completed":
		return InputTranscriptCompleted{Text: env.Transcript}, nil
	case "response.function_call_arguments.delta":
		return ToolCallDelta{CallRef: env.CallID, DeltaArg: env.Delta}, nil
	case "response.output_item.done":
		if env.Item == nil || env.Item.Type != "function_call" {
			return Unknown{Type: typ}, nil
		}
		return ToolCallDone{
			CallRef:   env.Item.CallID,
			Name:      env.Item.Name,
			Arguments: env.Item.Arguments,
		}, nil
	case "response.created":
		return ResponseCreated{}, nil
	case "response.done":
		return TurnDone{}, nil
	case "input_audio_buffer.speech_started":
		return SpeechStarted{}, nil
	case "input_audio_buffer.speech_stopped":
		return SpeechStopped{}, nil
	case "error":
		ev := ErrorEvent{}
		if env.Error != nil {
			ev.Code = env.Error.Code
			ev.Message = env.Error.Message
		}
		return ev, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

// Tool is one function schema advertised to the AI session.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// SessionConfig is the payload of the session.update command. Both audio
// formats stay in the telephony codec so no transcoding happens anywhere.
type SessionConfig struct {
	Instructions string
	Voice        string
	Tools        []Tool
}

type sessionUpdate struct {
	Type    string `json:"type"`
	Session struct {
		Modalities              []string `json:"modalities"`
		Instructions            string   `json:"instructions"`
		Voice                   string   `json:"voice,omitempty"`
		InputAudioFormat        string   `json:"input_audio_format"`
		OutputAudioFormat       string   `json:"output_audio_format"`
		InputAudioTranscription *struct {
			Model string `json:"model"`
		} `json:"input_audio_transcription,omitempty"`
		TurnDetection struct {
			Type string `json:"type"`
		} `json:"turn_detection"`
		Tools []Tool `json:"tools,omitempty"`
	} `json:"session"`
}

func encodeSessionUpdate(cfg SessionConfig) ([]byte, error) {
	msg := sessionUpdate{Type: "session.update"}
	msg.Session.Modalities = []string{"text", "audio"}
	msg.Session.Instructions = cfg.Instructions
	msg.Session.Voice = cfg.Voice
	msg.Session.InputAudioFormat = "g711_ulaw"
	msg.Session.OutputAudioFormat = "g711_ulaw"
	msg.Session.InputAudioTranscription = &struct {
		Model string `json:"model"`
	}{Model: "whisper-1"}
	msg.Session.TurnDetection.Type = "server_vad"
	msg.Session.Tools = cfg.Tools
	return json.Marshal(msg)
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func encodeAudioAppend(payloadB64 string) ([]byte, error) {
	return json.Marshal(audioAppend{Type: "input_audio_buffer.append", Audio: payloadB64})
}

type itemCreate struct {
	Type string `json:"type"`
	Item struct {
		Type   string `json:"type"`
		CallID string `json:"call_id"`
		Output string `json:"output"`
	} `json:"item"`
}

func encodeFunctionOutput(callRef, output string) ([]byte, error) {
	if callRef == "" {
		return nil, fmt.Errorf("function output requires a call reference")
	}
	msg := itemCreate{Type: "conversation.item.create"}
	msg.Item.Type = "function_call_output"
	msg.Item.CallID = callRef
	msg.Item.Output = output
	return json.Marshal(msg)
}

type responseCreate struct {
	Type     string `json:"type"`
	Response *struct {
		Instructions string `json:"instructions,omitempty"`
	} `json:"response,omitempty"`
}

func encodeResponseCreate(instructions string) ([]byte, error) {
	msg := responseCreate{Type: "response.create"}
	if strings.TrimSpace(instructions) != "" {
		msg.Response = &struct {
			Instructions string `json:"instructions,omitempty"`
		}{Instructions: instructions}
	}
	return json.Marshal(msg)
}
