package dialogue

import (
	"time"
)

// State is the lifecycle phase of a dialogue session.
type State string

const (
	StateStarted        State = "started"
	StateListening      State = "listening"
	StateAwaitingIntent State = "awaiting_intent"
	StateSpeaking       State = "speaking"
	StateEnded          State = "ended"
)

// Termination reasons carried on the session-ended notification.
const (
	ReasonSuccess       = "success"
	ReasonNominal       = "nominal"
	ReasonTimeout       = "timeout"
	ReasonNotRecognized = "not recognized"
	ReasonError         = "error"
	ReasonSuperseded    = "superseded"
)

// ProvenanceKind records how a session was started.
type ProvenanceKind string

const (
	StartedByHotword ProvenanceKind = "hotword"
	StartedByAPI     ProvenanceKind = "api"
)

// Provenance is the session's start trigger.
type Provenance struct {
	Kind       ProvenanceKind
	WakewordID string
}

// session is the manager-internal record for one live session. It is only
// ever touched with the manager lock held.
type session struct {
	id         string
	siteID     string
	state      State
	startedBy  Provenance
	customData string

	intentFilter      []string
	sendNotRecognized bool
	notification      bool

	lastText      string
	intentName    string
	captured      bool
	hotwordOff    bool
	pendingReason string

	timer     *timerHandle
	startedAt time.Time
}

// Session is a read-only snapshot exposed to the control API.
type Session struct {
	ID         string         `json:"sessionId"`
	SiteID     string         `json:"siteId"`
	State      State          `json:"state"`
	StartedBy  ProvenanceKind `json:"startedBy"`
	WakewordID string         `json:"wakewordId,omitempty"`
	CustomData string         `json:"customData,omitempty"`
	LastText   string         `json:"lastText,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
}

func (s *session) snapshot() Session {
	return Session{
		ID:         s.id,
		SiteID:     s.siteID,
		State:      s.state,
		StartedBy:  s.startedBy.Kind,
		WakewordID: s.startedBy.WakewordID,
		CustomData: s.customData,
		LastText:   s.lastText,
		StartedAt:  s.startedAt,
	}
}

// seed holds everything needed to start a session later. Queued starts keep
// their pre-allocated session id so SessionQueued and SessionStarted agree.
type seed struct {
	id                string
	siteID            string
	startedBy         Provenance
	customData        string
	intentFilter      []string
	sendNotRecognized bool
	notification      bool
	initText          string
}
