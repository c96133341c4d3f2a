package hermes

import (
	"errors"
	"testing"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"hermes/tts/say", "hermes/tts/say", true},
		{"hermes/tts/say", "hermes/tts/sayFinished", false},
		{"hermes/hotword/+/detected", "hermes/hotword/hey-ai/detected", true},
		{"hermes/hotword/+/detected", "hermes/hotword/detected", false},
		{"hermes/hotword/+/detected", "hermes/hotword/hey-ai/toggleOn", false},
		{"hermes/intent/#", "hermes/intent/Light.On", true},
		{"hermes/intent/#", "hermes/intent/a/b/c", true},
		{"hermes/intent/#", "hermes/nlu/query", false},
		{"hermes/+", "hermes/tts/say", false},
	}
	for _, tc := range cases {
		if got := MatchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Fatalf("MatchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestParseInboundStartSession(t *testing.T) {
	payload := []byte(`{"siteId":"kitchen","init":{"type":"action","canBeEnqueued":true}}`)
	msg, err := ParseInbound(TopicStartSession, payload)
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	req, ok := msg.(SessionStartRequest)
	if !ok {
		t.Fatalf("message type = %T, want SessionStartRequest", msg)
	}
	if req.SiteID != "kitchen" || !req.Init.CanBeEnqueued {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseInboundStartSessionDefaults(t *testing.T) {
	msg, err := ParseInbound(TopicStartSession, []byte(`{}`))
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	req := msg.(SessionStartRequest)
	if req.SiteID != "default" || req.Init.Type != InitAction {
		t.Fatalf("defaults not applied: %+v", req)
	}
}

func TestParseInboundStartSessionBadInitType(t *testing.T) {
	_, err := ParseInbound(TopicStartSession, []byte(`{"init":{"type":"bogus"}}`))
	if err == nil {
		t.Fatalf("expected error for invalid init type")
	}
}

func TestParseInboundContinueRequiresSessionID(t *testing.T) {
	if _, err := ParseInbound(TopicContinueSession, []byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing sessionId")
	}
	msg, err := ParseInbound(TopicContinueSession, []byte(`{"sessionId":"s1","text":"and then?"}`))
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	req := msg.(SessionContinueRequest)
	if req.SessionID != "s1" || req.Text != "and then?" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseInboundHotwordDetected(t *testing.T) {
	msg, err := ParseInbound("hermes/hotword/hey-ai/detected", []byte(`{"siteId":"kitchen"}`))
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	wake, ok := msg.(WakeWordDetected)
	if !ok {
		t.Fatalf("message type = %T, want WakeWordDetected", msg)
	}
	if wake.SiteID != "kitchen" || wake.WakewordID != "hey-ai" {
		t.Fatalf("unexpected message: %+v", wake)
	}
}

func TestParseInboundHotwordDefaultSite(t *testing.T) {
	msg, err := ParseInbound("hermes/hotword/hey-ai/detected", []byte(`{}`))
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	if wake := msg.(WakeWordDetected); wake.SiteID != "default" {
		t.Fatalf("siteId = %q, want default", wake.SiteID)
	}
}

func TestParseInboundIntent(t *testing.T) {
	payload := []byte(`{"siteId":"kitchen","sessionId":"s1","intent":{"intentName":"Light.On","confidenceScore":0.92}}`)
	msg, err := ParseInbound("hermes/intent/Light.On", payload)
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	intent := msg.(IntentRecognized)
	if intent.Intent.IntentName != "Light.On" || intent.Intent.ConfidenceScore != 0.92 {
		t.Fatalf("unexpected message: %+v", intent)
	}
}

func TestParseInboundIntentMissingName(t *testing.T) {
	if _, err := ParseInbound("hermes/intent/Light.On", []byte(`{"sessionId":"s1"}`)); err == nil {
		t.Fatalf("expected error for missing intent name")
	}
}

func TestParseInboundTranscript(t *testing.T) {
	payload := []byte(`{"siteId":"kitchen","sessionId":"s1","text":"turn on the light","likelihood":0.8}`)
	msg, err := ParseInbound(TopicASRTextCaptured, payload)
	if err != nil {
		t.Fatalf("ParseInbound error = %v", err)
	}
	tr := msg.(TranscriptFinal)
	if tr.Text != "turn on the light" || tr.SessionID != "s1" {
		t.Fatalf("unexpected message: %+v", tr)
	}
}

func TestParseInboundUnsupportedTopic(t *testing.T) {
	_, err := ParseInbound("hermes/audioServer/kitchen/playFinished", []byte(`{}`))
	if !errors.Is(err, ErrUnsupportedTopic) {
		t.Fatalf("error = %v, want ErrUnsupportedTopic", err)
	}
}

func TestParseInboundMalformedPayload(t *testing.T) {
	if _, err := ParseInbound(TopicASRTextCaptured, []byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestPlaySoundTopic(t *testing.T) {
	m := PlaySound{SiteID: "kitchen", RequestID: "req-1", WAV: []byte("RIFF")}
	if got := m.Topic(); got != "hermes/audioServer/kitchen/playBytes/req-1" {
		t.Fatalf("topic = %q", got)
	}
	payload, err := m.Payload()
	if err != nil || string(payload) != "RIFF" {
		t.Fatalf("payload = %q, err = %v", payload, err)
	}
}
