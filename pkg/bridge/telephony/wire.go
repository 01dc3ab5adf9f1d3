package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The telephony media stream speaks a small JSON vocabulary: every frame is a
// single object discriminated by "event". Events outside the recognized set
// decode to Unknown and are ignored upstream rather than failing the call.

// Event is one decoded inbound frame. The concrete types below form the
// closed set of variants.
type Event any

type Connected struct {
	Protocol string
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// StreamStart carries the stream session identifier every outbound frame must
// be addressed with.
type StreamStart struct {
	StreamSID   string
	CallSID     string
	AccountSID  string
	MediaFormat MediaFormat
	Custom      map[string]string
}

type MediaFrame struct {
	StreamSID  string
	Track      string
	PayloadB64 string
}

type StreamStop struct {
	StreamSID string
}

// MarkEcho is the provider's confirmation that playback reached a mark we
// previously sent.
type MarkEcho struct {
	Name string
}

type DTMF struct {
	Digit string
}

type Unknown struct {
	Event string
}

type envelope struct {
	Event     string `json:"event"`
	Protocol  string `json:"protocol,omitempty"`
	StreamSID string `json:"streamSid,omitempty"`
	Start     *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		AccountSID       string            `json:"accountSid"`
		MediaFormat      MediaFormat       `json:"mediaFormat"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
}

// DecodeEvent decodes one inbound frame. Only malformed JSON or a missing
// discriminator is an error; unrecognized event names are not.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid telephony frame: %w", err)
	}
	typ := strings.TrimSpace(env.Event)
	if typ == "" {
		return nil, fmt.Errorf("telephony frame missing event field")
	}

	switch typ {
	case "connected":
		return Connected{Protocol: env.Protocol}, nil
	case "start":
		ev := StreamStart{StreamSID: env.StreamSID}
		if env.Start != nil {
			if env.Start.StreamSID != "" {
				ev.StreamSID = env.Start.StreamSID
			}
			ev.CallSID = env.Start.CallSID
			ev.AccountSID = env.Start.AccountSID
			ev.MediaFormat = env.Start.MediaFormat
			ev.Custom = env.Start.CustomParameters
		}
		if ev.StreamSID == "" {
			return nil, fmt.Errorf("start frame missing streamSid")
		}
		return ev, nil
	case "media":
		if env.Media == nil {
			return nil, fmt.Errorf("media frame missing media payload")
		}
		return MediaFrame{
			StreamSID:  env.StreamSID,
			Track:      env.Media.Track,
			PayloadB64: env.Media.Payload,
		}, nil
	case "stop":
		return StreamStop{StreamSID: env.StreamSID}, nil
	case "mark":
		ev := MarkEcho{}
		if env.Mark != nil {
			ev.Name = env.Mark.Name
		}
		return ev, nil
	case "dtmf":
		ev := DTMF{}
		if env.DTMF != nil {
			ev.Digit = env.DTMF.Digit
		}
		return ev, nil
	default:
		return Unknown{Event: typ}, nil
	}
}

type outMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outMark struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type outClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

func EncodeMedia(streamSID, payloadB64 string) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("media frame requires a stream sid")
	}
	msg := outMedia{Event: "media", StreamSID: streamSID}
	msg.Media.Payload = payloadB64
	return json.Marshal(msg)
}

func EncodeMark(streamSID, name string) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("mark frame requires a stream sid")
	}
	msg := outMark{Event: "mark", StreamSID: streamSID}
	msg.Mark.Name = name
	return json.Marshal(msg)
}

func EncodeClear(streamSID string) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("clear frame requires a stream sid")
	}
	return json.Marshal(outClear{Event: "clear", StreamSID: streamSID})
}
