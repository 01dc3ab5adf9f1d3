package telephony

import (
	"strings"
	"testing"
)

func TestDecodeEvent_Start(t *testing.T) {
	data := []byte(`{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ123","callSid":"CA456","mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1},"customParameters":{"call_id":"abc"}},"streamSid":"MZ123"}`)
	ev, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	start, ok := ev.(StreamStart)
	if !ok {
		t.Fatalf("event=%T, want StreamStart", ev)
	}
	if start.StreamSID != "MZ123" || start.CallSID != "CA456" {
		t.Fatalf("start=%+v", start)
	}
	if start.MediaFormat.SampleRate != 8000 {
		t.Fatalf("sample rate=%d", start.MediaFormat.SampleRate)
	}
	if start.Custom["call_id"] != "abc" {
		t.Fatalf("custom=%v", start.Custom)
	}
}

func TestDecodeEvent_StartWithoutStreamSID(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"event":"start","start":{}}`)); err == nil {
		t.Fatal("expected error for start without streamSid")
	}
}

func TestDecodeEvent_Media(t *testing.T) {
	data := []byte(`{"event":"media","streamSid":"MZ123","media":{"track":"inbound","chunk":"2","timestamp":"20","payload":"AAAA"}}`)
	ev, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	media, ok := ev.(MediaFrame)
	if !ok {
		t.Fatalf("event=%T, want MediaFrame", ev)
	}
	if media.PayloadB64 != "AAAA" || media.Track != "inbound" {
		t.Fatalf("media=%+v", media)
	}
}

func TestDecodeEvent_StopMarkDTMF(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"stop","streamSid":"MZ123"}`))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := ev.(StreamStop); !ok {
		t.Fatalf("event=%T, want StreamStop", ev)
	}

	ev, err = DecodeEvent([]byte(`{"event":"mark","streamSid":"MZ123","mark":{"name":"turn_3"}}`))
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if mark, ok := ev.(MarkEcho); !ok || mark.Name != "turn_3" {
		t.Fatalf("event=%#v", ev)
	}

	ev, err = DecodeEvent([]byte(`{"event":"dtmf","dtmf":{"digit":"5"}}`))
	if err != nil {
		t.Fatalf("dtmf: %v", err)
	}
	if d, ok := ev.(DTMF); !ok || d.Digit != "5" {
		t.Fatalf("event=%#v", ev)
	}
}

func TestDecodeEvent_UnrecognizedIsIgnorable(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"someday-new","streamSid":"MZ123"}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	u, ok := ev.(Unknown)
	if !ok || u.Event != "someday-new" {
		t.Fatalf("event=%#v, want Unknown", ev)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := DecodeEvent([]byte(`{"streamSid":"MZ123"}`)); err == nil {
		t.Fatal("expected error for missing event field")
	}
}

func TestEncodeMedia(t *testing.T) {
	data, err := EncodeMedia("MZ123", "AAAA")
	if err != nil {
		t.Fatalf("EncodeMedia: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"event":"media"`, `"streamSid":"MZ123"`, `"payload":"AAAA"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
}

func TestEncodeRequiresStreamSID(t *testing.T) {
	if _, err := EncodeMedia("", "AAAA"); err == nil {
		t.Fatal("expected error for media without stream sid")
	}
	if _, err := EncodeClear(""); err == nil {
		t.Fatal("expected error for clear without stream sid")
	}
	if _, err := EncodeMark("", "m"); err == nil {
		t.Fatal("expected error for mark without stream sid")
	}
}

func TestEncodeClear(t *testing.T) {
	data, err := EncodeClear("MZ123")
	if err != nil {
		t.Fatalf("EncodeClear: %v", err)
	}
	if got, want := string(data), `{"event":"clear","streamSid":"MZ123"}`; got != want {
		t.Fatalf("clear=%s, want %s", got, want)
	}
}
