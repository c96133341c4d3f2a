package hermes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Topic names follow the Hermes convention used by the rest of the voice
// pipeline. Wildcard patterns use MQTT syntax: '+' matches one level, '#'
// matches the remaining levels.
const (
	TopicStartSession    = "hermes/dialogueManager/startSession"
	TopicContinueSession = "hermes/dialogueManager/continueSession"
	TopicEndSession      = "hermes/dialogueManager/endSession"

	TopicSessionStarted        = "hermes/dialogueManager/sessionStarted"
	TopicSessionQueued         = "hermes/dialogueManager/sessionQueued"
	TopicSessionEnded          = "hermes/dialogueManager/sessionEnded"
	TopicDialogueNotRecognized = "hermes/dialogueManager/intentNotRecognized"
	TopicDialogueError         = "hermes/error/dialogueManager"

	TopicASRStartListening = "hermes/asr/startListening"
	TopicASRStopListening  = "hermes/asr/stopListening"
	TopicASRTextCaptured   = "hermes/asr/textCaptured"

	TopicNLUQuery         = "hermes/nlu/query"
	TopicNLUNotRecognized = "hermes/nlu/intentNotRecognized"
	TopicNLUError         = "hermes/error/nlu"
	TopicIntentPattern    = "hermes/intent/#"

	TopicTTSSay         = "hermes/tts/say"
	TopicTTSSayFinished = "hermes/tts/sayFinished"

	TopicHotwordDetectedPattern = "hermes/hotword/+/detected"
	TopicHotwordToggleOn        = "hermes/hotword/toggleOn"
	TopicHotwordToggleOff       = "hermes/hotword/toggleOff"
)

// SubscriptionTopics is the full set of patterns the dialogue manager needs
// from the bus.
func SubscriptionTopics() []string {
	return []string{
		TopicStartSession,
		TopicContinueSession,
		TopicEndSession,
		TopicASRTextCaptured,
		TopicNLUNotRecognized,
		TopicNLUError,
		TopicIntentPattern,
		TopicTTSSayFinished,
		TopicHotwordDetectedPattern,
	}
}

var ErrUnsupportedTopic = errors.New("unsupported topic")

// MatchTopic reports whether an MQTT-style pattern matches a concrete topic.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, seg := range p {
		if seg == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if seg != "+" && seg != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

// ParseInbound decodes a bus message into its typed inbound form.
// Unrecognized topics return ErrUnsupportedTopic.
func ParseInbound(topic string, payload []byte) (Inbound, error) {
	switch topic {
	case TopicStartSession:
		var msg SessionStartRequest
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		if msg.SiteID == "" {
			msg.SiteID = "default"
		}
		if msg.Init.Type == "" {
			msg.Init.Type = InitAction
		}
		if msg.Init.Type != InitAction && msg.Init.Type != InitNotification {
			return nil, fmt.Errorf("%s: invalid init type %q", topic, msg.Init.Type)
		}
		return msg, nil
	case TopicContinueSession:
		var msg SessionContinueRequest
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("%s: missing sessionId", topic)
		}
		return msg, nil
	case TopicEndSession:
		var msg SessionEndRequest
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("%s: missing sessionId", topic)
		}
		return msg, nil
	case TopicASRTextCaptured:
		var msg TranscriptFinal
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TopicNLUNotRecognized:
		var msg IntentNotRecognized
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TopicNLUError:
		var msg RecognitionError
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TopicTTSSayFinished:
		var msg SpeechFinished
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	}

	if wakewordID, ok := hotwordDetectedID(topic); ok {
		var msg WakeWordDetected
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		if msg.SiteID == "" {
			msg.SiteID = "default"
		}
		msg.WakewordID = wakewordID
		return msg, nil
	}

	if MatchTopic(TopicIntentPattern, topic) {
		var msg IntentRecognized
		if err := decode(topic, payload, &msg); err != nil {
			return nil, err
		}
		if msg.Intent.IntentName == "" {
			return nil, fmt.Errorf("%s: missing intent name", topic)
		}
		return msg, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedTopic, topic)
}

func hotwordDetectedID(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) == 4 && parts[0] == "hermes" && parts[1] == "hotword" && parts[3] == "detected" {
		return parts[2], parts[2] != ""
	}
	return "", false
}

func decode(topic string, payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", topic, err)
	}
	return nil
}
