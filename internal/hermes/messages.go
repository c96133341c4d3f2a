package hermes

import (
	"encoding/json"
	"fmt"
)

// Inbound is implemented by every message kind the dialogue manager consumes.
type Inbound interface {
	inbound()
}

// Outbound is implemented by every message kind the dialogue manager
// publishes. Payload is the wire payload for Topic; every kind except
// PlaySound marshals to JSON.
type Outbound interface {
	Topic() string
	Payload() ([]byte, error)
}

// InitType selects the session start variant.
type InitType string

const (
	// InitAction starts a full capture/recognize session.
	InitAction InitType = "action"
	// InitNotification speaks a text and ends the session immediately.
	InitNotification InitType = "notification"
)

// SessionInit describes how a requested session should begin.
type SessionInit struct {
	Type                    InitType `json:"type"`
	Text                    string   `json:"text,omitempty"`
	CanBeEnqueued           bool     `json:"canBeEnqueued,omitempty"`
	IntentFilter            []string `json:"intentFilter,omitempty"`
	SendIntentNotRecognized bool     `json:"sendIntentNotRecognized,omitempty"`
}

// ---------------------------------------------------------------------------
// Inbound messages.

// WakeWordDetected reports a hotword hit. WakewordID comes from the topic,
// not the payload.
type WakeWordDetected struct {
	SiteID     string `json:"siteId"`
	ModelID    string `json:"modelId,omitempty"`
	WakewordID string `json:"-"`
}

// SessionStartRequest asks the manager to open a new session.
type SessionStartRequest struct {
	SiteID     string      `json:"siteId"`
	CustomData string      `json:"customData,omitempty"`
	Init       SessionInit `json:"init"`
	Force      bool        `json:"force,omitempty"`
}

// SessionContinueRequest re-opens capture on the live session.
type SessionContinueRequest struct {
	SessionID               string    `json:"sessionId"`
	CustomData              string    `json:"customData,omitempty"`
	Text                    string    `json:"text,omitempty"`
	IntentFilter            *[]string `json:"intentFilter,omitempty"`
	SendIntentNotRecognized bool      `json:"sendIntentNotRecognized,omitempty"`
}

// SessionEndRequest asks the manager to terminate the live session.
type SessionEndRequest struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// TranscriptFinal is the final ASR result for a capture window.
type TranscriptFinal struct {
	SiteID     string  `json:"siteId"`
	SessionID  string  `json:"sessionId"`
	Text       string  `json:"text"`
	Likelihood float64 `json:"likelihood,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
}

// Intent carries the recognized intent name and its confidence.
type Intent struct {
	IntentName      string  `json:"intentName"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// IntentRecognized is a successful NLU result. IntentName in the topic is
// ignored; the payload is authoritative.
type IntentRecognized struct {
	SiteID       string `json:"siteId"`
	SessionID    string `json:"sessionId"`
	Input        string `json:"input,omitempty"`
	Intent       Intent `json:"intent"`
	ResponseText string `json:"responseText,omitempty"`
	CustomData   string `json:"customData,omitempty"`
}

// IntentNotRecognized is an NLU miss.
type IntentNotRecognized struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
	Input     string `json:"input,omitempty"`
}

// RecognitionError reports an NLU failure.
type RecognitionError struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
	Context   string `json:"context,omitempty"`
}

// SpeechFinished confirms a SpeakText utterance completed.
type SpeechFinished struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
	ID        string `json:"id,omitempty"`
}

func (WakeWordDetected) inbound()       {}
func (SessionStartRequest) inbound()    {}
func (SessionContinueRequest) inbound() {}
func (SessionEndRequest) inbound()      {}
func (TranscriptFinal) inbound()        {}
func (IntentRecognized) inbound()       {}
func (IntentNotRecognized) inbound()    {}
func (RecognitionError) inbound()       {}
func (SpeechFinished) inbound()         {}

// ---------------------------------------------------------------------------
// Outbound messages.

// SessionStarted announces a newly live session.
type SessionStarted struct {
	SiteID     string `json:"siteId"`
	SessionID  string `json:"sessionId"`
	CustomData string `json:"customData,omitempty"`
}

// SessionQueued announces a start request parked behind the live session.
type SessionQueued struct {
	SiteID     string `json:"siteId"`
	SessionID  string `json:"sessionId"`
	CustomData string `json:"customData,omitempty"`
}

// Termination carries the reason a session ended.
type Termination struct {
	Reason string `json:"reason"`
}

// SessionEnded is published exactly once per session.
type SessionEnded struct {
	SiteID      string      `json:"siteId"`
	SessionID   string      `json:"sessionId"`
	CustomData  string      `json:"customData,omitempty"`
	Termination Termination `json:"termination"`
	IntentName  string      `json:"intentName,omitempty"`
}

// BeginCapture tells the ASR to start listening.
type BeginCapture struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// StopCapture tells the ASR to stop listening.
type StopCapture struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// IntentQuery submits a transcript for intent recognition.
type IntentQuery struct {
	ID           string   `json:"id,omitempty"`
	SiteID       string   `json:"siteId"`
	SessionID    string   `json:"sessionId"`
	Input        string   `json:"input"`
	IntentFilter []string `json:"intentFilter,omitempty"`
}

// SpeakText asks the TTS to synthesize an utterance.
type SpeakText struct {
	ID        string `json:"id,omitempty"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// PlaySound streams WAV bytes to a site's audio server. The payload is the
// raw WAV, not JSON; volume is applied by scaling samples before publish.
type PlaySound struct {
	SiteID    string
	RequestID string
	WAV       []byte
}

// IntentNotRecognizedNotice tells the session initiator recognition failed.
type IntentNotRecognizedNotice struct {
	SiteID     string `json:"siteId"`
	SessionID  string `json:"sessionId"`
	CustomData string `json:"customData,omitempty"`
	Input      string `json:"input,omitempty"`
}

// SessionError reports a recoverable dialogue-manager error to peers.
type SessionError struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error"`
	Context   string `json:"context,omitempty"`
}

// HotwordToggleOn re-enables wake word detection for a site.
type HotwordToggleOn struct {
	SiteID string `json:"siteId"`
}

// HotwordToggleOff suppresses wake word detection for a site.
type HotwordToggleOff struct {
	SiteID string `json:"siteId"`
}

func (SessionStarted) Topic() string            { return TopicSessionStarted }
func (SessionQueued) Topic() string             { return TopicSessionQueued }
func (SessionEnded) Topic() string              { return TopicSessionEnded }
func (BeginCapture) Topic() string              { return TopicASRStartListening }
func (StopCapture) Topic() string               { return TopicASRStopListening }
func (IntentQuery) Topic() string               { return TopicNLUQuery }
func (SpeakText) Topic() string                 { return TopicTTSSay }
func (IntentNotRecognizedNotice) Topic() string { return TopicDialogueNotRecognized }
func (SessionError) Topic() string              { return TopicDialogueError }
func (HotwordToggleOn) Topic() string           { return TopicHotwordToggleOn }
func (HotwordToggleOff) Topic() string          { return TopicHotwordToggleOff }

func (m PlaySound) Topic() string {
	return fmt.Sprintf("hermes/audioServer/%s/playBytes/%s", m.SiteID, m.RequestID)
}

func (m SessionStarted) Payload() ([]byte, error)            { return json.Marshal(m) }
func (m SessionQueued) Payload() ([]byte, error)             { return json.Marshal(m) }
func (m SessionEnded) Payload() ([]byte, error)              { return json.Marshal(m) }
func (m BeginCapture) Payload() ([]byte, error)              { return json.Marshal(m) }
func (m StopCapture) Payload() ([]byte, error)               { return json.Marshal(m) }
func (m IntentQuery) Payload() ([]byte, error)               { return json.Marshal(m) }
func (m SpeakText) Payload() ([]byte, error)                 { return json.Marshal(m) }
func (m IntentNotRecognizedNotice) Payload() ([]byte, error) { return json.Marshal(m) }
func (m SessionError) Payload() ([]byte, error)              { return json.Marshal(m) }
func (m HotwordToggleOn) Payload() ([]byte, error)           { return json.Marshal(m) }
func (m HotwordToggleOff) Payload() ([]byte, error)          { return json.Marshal(m) }
func (m PlaySound) Payload() ([]byte, error)                 { return m.WAV, nil }
