package dialogue

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lbartoli/parley/internal/hermes"
	"github.com/lbartoli/parley/internal/history"
	"github.com/lbartoli/parley/internal/observability"
	"github.com/lbartoli/parley/internal/sounds"
)

var (
	ErrSessionActive  = errors.New("session already active for site")
	ErrNoSession      = errors.New("no matching session")
	ErrQueueFull      = errors.New("session queue full")
	ErrSiteNotAllowed = errors.New("site not in allow-list")
	ErrClosed         = errors.New("manager closed")
)

const (
	defaultCharsPerSecond = 25.0
	defaultQueueLimit     = 8
	journalTimeout        = 2 * time.Second
)

// Publisher is the outbound half of the bus the manager needs. Publishes
// are fire-and-forget; the manager never blocks on delivery.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// SoundSource resolves feedback earcons per site. *sounds.Resolver
// satisfies it; nil disables feedback sounds entirely.
type SoundSource interface {
	Render(siteID string, kind sounds.Kind) ([]byte, bool)
}

// Journal records ended sessions. history.Store satisfies it; nil disables
// journaling.
type Journal interface {
	Record(ctx context.Context, e history.Entry) error
}

// Settings is the immutable configuration slice the manager reads.
type Settings struct {
	SiteIDs              []string
	WakewordIDs          []string
	SessionTimeout       time.Duration
	SpeechMinDuration    time.Duration
	SpeechCharsPerSecond float64
	ConfidenceFloor      *float64
	// HotwordSendNotRecognized controls whether hotword-started sessions
	// emit an intent-not-recognized notice on failure.
	HotwordSendNotRecognized bool
	// SoundOnSuperseded plays the superseded session's termination earcon
	// when a forced start replaces it.
	SoundOnSuperseded bool
	QueueLimit        int
	Debug             bool
}

// StartResult reports what happened to an accepted start request.
type StartResult struct {
	SessionID string `json:"sessionId"`
	Queued    bool   `json:"queued"`
}

// Manager owns the per-site session table and drives every state
// transition. All mutation happens under one mutex; bus delivery, HTTP
// requests, and timer expiries funnel into the same locked dispatch
// methods, so transitions for a site are serialized.
type Manager struct {
	settings Settings
	pub      Publisher
	sounds   SoundSource
	journal  Journal
	metrics  *observability.Metrics
	gate     Gate

	mu       sync.Mutex
	sessions map[string]*session // keyed by site id
	queues   map[string][]*seed
	sites    map[string]string // session id -> site id
	timerGen uint64
	closed   bool
}

func NewManager(settings Settings, pub Publisher, snd SoundSource, journal Journal, metrics *observability.Metrics) *Manager {
	if settings.QueueLimit <= 0 {
		settings.QueueLimit = defaultQueueLimit
	}
	return &Manager{
		settings: settings,
		pub:      pub,
		sounds:   snd,
		journal:  journal,
		metrics:  metrics,
		gate:     Gate{Floor: settings.ConfidenceFloor},
		sessions: make(map[string]*session),
		queues:   make(map[string][]*seed),
		sites:    make(map[string]string),
	}
}

// HandleInbound dispatches one bus message. Protocol noise (unknown sites,
// stale session ids, unexpected states) is dropped and counted, never an
// error; see the taxonomy in the package tests.
func (m *Manager) HandleInbound(msg hermes.Inbound) {
	switch ev := msg.(type) {
	case hermes.WakeWordDetected:
		m.handleWake(ev)
	case hermes.SessionStartRequest:
		if !m.siteAllowed(ev.SiteID) {
			m.drop("site_not_allowed")
			return
		}
		if _, err := m.StartSession(ev); err != nil {
			m.publish(hermes.SessionError{
				SiteID:  ev.SiteID,
				Error:   err.Error(),
				Context: hermes.TopicStartSession,
			})
		}
	case hermes.SessionContinueRequest:
		if err := m.ContinueSession(ev); err != nil {
			m.drop("stale_continue")
		}
	case hermes.SessionEndRequest:
		if err := m.EndSession(ev.SiteID, ev.SessionID, ReasonNominal); err != nil {
			m.drop("stale_end")
		}
	case hermes.TranscriptFinal:
		m.handleTranscript(ev)
	case hermes.IntentRecognized:
		m.handleIntentRecognized(ev)
	case hermes.IntentNotRecognized:
		m.handleIntentNotRecognized(ev)
	case hermes.RecognitionError:
		m.handleRecognitionError(ev)
	case hermes.SpeechFinished:
		m.handleSpeechFinished(ev)
	default:
		m.drop("unknown_kind")
	}
}

// StartSession starts, queues, or rejects a session per the contention
// rules: force supersedes the live session, canBeEnqueued parks the request,
// anything else is rejected with ErrSessionActive.
func (m *Manager) StartSession(req hermes.SessionStartRequest) (StartResult, error) {
	if !m.siteAllowed(req.SiteID) {
		return StartResult{}, ErrSiteNotAllowed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return StartResult{}, ErrClosed
	}

	sd := &seed{
		id:                uuid.NewString(),
		siteID:            req.SiteID,
		startedBy:         Provenance{Kind: StartedByAPI},
		customData:        req.CustomData,
		intentFilter:      req.Init.IntentFilter,
		sendNotRecognized: req.Init.SendIntentNotRecognized,
		notification:      req.Init.Type == hermes.InitNotification,
		initText:          req.Init.Text,
	}

	live := m.sessions[req.SiteID]
	switch {
	case live == nil:
		m.startLocked(sd)
		return StartResult{SessionID: sd.id}, nil
	case req.Force:
		// Jump the queue, then let the end funnel start us.
		m.queues[req.SiteID] = append([]*seed{sd}, m.queues[req.SiteID]...)
		m.endLocked(live, ReasonSuperseded)
		return StartResult{SessionID: sd.id}, nil
	case req.Init.CanBeEnqueued:
		if len(m.queues[req.SiteID]) >= m.settings.QueueLimit {
			return StartResult{}, ErrQueueFull
		}
		m.queues[req.SiteID] = append(m.queues[req.SiteID], sd)
		m.publish(hermes.SessionQueued{
			SiteID:     sd.siteID,
			SessionID:  sd.id,
			CustomData: sd.customData,
		})
		return StartResult{SessionID: sd.id, Queued: true}, nil
	default:
		return StartResult{}, ErrSessionActive
	}
}

// ContinueSession re-opens capture on the live session identified by the
// request's session id, refreshing customData, intent filter, and the
// not-recognized flag.
func (m *Manager) ContinueSession(req hermes.SessionContinueRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.bySessionIDLocked(req.SessionID)
	if s == nil {
		return ErrNoSession
	}
	if s.state != StateAwaitingIntent && s.state != StateSpeaking {
		return ErrNoSession
	}

	if req.CustomData != "" {
		s.customData = req.CustomData
	}
	if req.IntentFilter != nil {
		s.intentFilter = *req.IntentFilter
	}
	s.sendNotRecognized = req.SendIntentNotRecognized

	if req.Text != "" {
		m.publish(hermes.SpeakText{
			ID:        uuid.NewString(),
			SiteID:    s.siteID,
			SessionID: s.id,
			Text:      req.Text,
		})
	}
	m.listenLocked(s)
	return nil
}

// EndSession terminates the live session for a site if the session id
// matches it.
func (m *Manager) EndSession(siteID, sessionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[siteID]
	if s == nil || s.id != sessionID {
		return ErrNoSession
	}
	m.endLocked(s, reason)
	return nil
}

// EndSessionByID terminates a session located by id alone; used by the
// control API where the caller does not know the site.
func (m *Manager) EndSessionByID(sessionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.bySessionIDLocked(sessionID)
	if s == nil {
		return ErrNoSession
	}
	m.endLocked(s, reason)
	return nil
}

// ActiveSessions snapshots the live table, ordered by site id.
func (m *Manager) ActiveSessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// Close ends every live session and drops all queued starts. Further starts
// are rejected.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queues = make(map[string][]*seed)
	for _, s := range m.sessions {
		m.endLocked(s, ReasonNominal)
	}
	m.closed = true
}

// ---------------------------------------------------------------------------
// Inbound transition handlers.

func (m *Manager) handleWake(ev hermes.WakeWordDetected) {
	if !m.siteAllowed(ev.SiteID) {
		m.drop("site_not_allowed")
		return
	}
	if !m.wakewordAllowed(ev.WakewordID) {
		m.drop("wakeword_not_allowed")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if live := m.sessions[ev.SiteID]; live != nil {
		m.logf("wake %q ignored, session %s live on site %s", ev.WakewordID, live.id, ev.SiteID)
		m.drop("session_live")
		return
	}

	m.startLocked(&seed{
		id:                uuid.NewString(),
		siteID:            ev.SiteID,
		startedBy:         Provenance{Kind: StartedByHotword, WakewordID: ev.WakewordID},
		customData:        ev.WakewordID,
		sendNotRecognized: m.settings.HotwordSendNotRecognized,
	})
}

func (m *Manager) handleTranscript(ev hermes.TranscriptFinal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.matchLocked(ev.SessionID, StateListening)
	if s == nil {
		m.drop("stale_transcript")
		return
	}

	m.cancelTimer(s)
	s.lastText = ev.Text
	s.captured = true

	m.publish(hermes.StopCapture{SiteID: s.siteID, SessionID: s.id})
	m.toggleHotwordLocked(s, true)
	m.publish(hermes.IntentQuery{
		ID:           uuid.NewString(),
		SiteID:       s.siteID,
		SessionID:    s.id,
		Input:        ev.Text,
		IntentFilter: s.intentFilter,
	})

	s.state = StateAwaitingIntent
	m.armTimer(s, timerSession, m.settings.SessionTimeout)
}

func (m *Manager) handleIntentRecognized(ev hermes.IntentRecognized) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.matchLocked(ev.SessionID, StateAwaitingIntent)
	if s == nil {
		m.drop("stale_intent")
		return
	}

	// Filter first, gate second; both fall into the same not-recognized
	// outcome and both honor sendIntentNotRecognized.
	if !intentAllowed(s.intentFilter, ev.Intent.IntentName) {
		m.logf("intent %q rejected by filter for session %s", ev.Intent.IntentName, s.id)
		m.notRecognizedLocked(s, ev.Input, ReasonNotRecognized)
		return
	}
	if !m.gate.Accept(ev.Intent.ConfidenceScore) {
		m.logf("intent %q below confidence floor (%.2f) for session %s",
			ev.Intent.IntentName, ev.Intent.ConfidenceScore, s.id)
		m.notRecognizedLocked(s, ev.Input, ReasonNotRecognized)
		return
	}

	s.intentName = ev.Intent.IntentName
	if ev.ResponseText != "" {
		m.speakLocked(s, ev.ResponseText, ReasonSuccess)
		return
	}
	m.endLocked(s, ReasonSuccess)
}

func (m *Manager) handleIntentNotRecognized(ev hermes.IntentNotRecognized) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.matchLocked(ev.SessionID, StateAwaitingIntent)
	if s == nil {
		m.drop("stale_intent")
		return
	}
	m.notRecognizedLocked(s, ev.Input, ReasonNotRecognized)
}

func (m *Manager) handleRecognitionError(ev hermes.RecognitionError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.matchLocked(ev.SessionID, StateAwaitingIntent)
	if s == nil {
		m.drop("stale_intent")
		return
	}
	m.logf("recognition error for session %s: %s", s.id, ev.Error)
	m.notRecognizedLocked(s, "", ReasonError)
}

func (m *Manager) handleSpeechFinished(ev hermes.SpeechFinished) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.matchLocked(ev.SessionID, StateSpeaking)
	if s == nil {
		m.drop("stale_speech")
		return
	}
	m.endLocked(s, s.pendingReason)
}

// onTimer is the timer-expiry entry point. The generation check drops any
// firing that raced with a cancel or re-arm, so a dead timer can never act
// on a reused session slot.
func (m *Manager) onTimer(siteID, sessionID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[siteID]
	if s == nil || s.id != sessionID || s.timer == nil || s.timer.gen != gen {
		return
	}
	kind := s.timer.kind
	s.timer = nil
	m.metrics.ObserveTimerExpiry(string(kind))

	switch kind {
	case timerSession:
		m.logf("session %s timed out in state %s", s.id, s.state)
		m.endLocked(s, ReasonTimeout)
	case timerSpeech:
		m.endLocked(s, s.pendingReason)
	}
}

// ---------------------------------------------------------------------------
// Locked transition internals.

// startLocked creates the session and runs the start transition: earcon,
// session-started notification, then either speech (notification sessions)
// or the capture window.
func (m *Manager) startLocked(sd *seed) {
	if prior := m.sessions[sd.siteID]; prior != nil {
		panic("dialogue: startLocked with live session for site " + sd.siteID)
	}
	if sd.id == "" {
		sd.id = uuid.NewString()
	}

	s := &session{
		id:                sd.id,
		siteID:            sd.siteID,
		state:             StateStarted,
		startedBy:         sd.startedBy,
		customData:        sd.customData,
		intentFilter:      sd.intentFilter,
		sendNotRecognized: sd.sendNotRecognized,
		notification:      sd.notification,
		startedAt:         time.Now().UTC(),
	}
	m.sessions[s.siteID] = s
	m.sites[s.id] = s.siteID
	m.metrics.SetActiveSessions(len(m.sessions))
	m.logf("session %s started on site %s (%s)", s.id, s.siteID, s.startedBy.Kind)

	m.playSoundLocked(s.siteID, sounds.KindSessionStart)
	m.publish(hermes.SessionStarted{SiteID: s.siteID, SessionID: s.id, CustomData: s.customData})

	if s.notification {
		if sd.initText == "" {
			m.endLocked(s, ReasonNominal)
			return
		}
		m.speakLocked(s, sd.initText, ReasonNominal)
		return
	}

	if sd.initText != "" {
		m.publish(hermes.SpeakText{
			ID:        uuid.NewString(),
			SiteID:    s.siteID,
			SessionID: s.id,
			Text:      sd.initText,
		})
	}
	m.listenLocked(s)
}

// listenLocked opens a capture window: hotword off, begin capture, general
// session deadline armed.
func (m *Manager) listenLocked(s *session) {
	m.cancelTimer(s)
	s.captured = false
	m.toggleHotwordLocked(s, false)
	m.publish(hermes.BeginCapture{SiteID: s.siteID, SessionID: s.id})
	s.state = StateListening
	m.armTimer(s, timerSession, m.settings.SessionTimeout)
}

// speakLocked dispatches an utterance and waits for either the synthesis
// confirmation or the computed speech deadline, whichever comes first.
func (m *Manager) speakLocked(s *session, text string, endReason string) {
	m.cancelTimer(s)
	s.state = StateSpeaking
	s.pendingReason = endReason
	m.publish(hermes.SpeakText{
		ID:        uuid.NewString(),
		SiteID:    s.siteID,
		SessionID: s.id,
		Text:      text,
	})
	m.armTimer(s, timerSpeech, m.speechDeadline(text))
}

// notRecognizedLocked is the shared failure outcome for filter rejection,
// confidence-gate rejection, NLU misses, and recognition errors.
func (m *Manager) notRecognizedLocked(s *session, input, reason string) {
	if input == "" {
		input = s.lastText
	}
	if s.sendNotRecognized {
		m.publish(hermes.IntentNotRecognizedNotice{
			SiteID:     s.siteID,
			SessionID:  s.id,
			CustomData: s.customData,
			Input:      input,
		})
	}
	m.endLocked(s, reason)
}

// endLocked is the single termination funnel. Every end path goes through
// here, which is what guarantees at most one session-ended notification and
// that the table slot is freed with no timer left live.
func (m *Manager) endLocked(s *session, reason string) {
	if s.state == StateEnded {
		return
	}
	m.cancelTimer(s)

	if !s.notification && !s.captured {
		m.publish(hermes.StopCapture{SiteID: s.siteID, SessionID: s.id})
	}
	m.toggleHotwordLocked(s, true)

	switch reason {
	case ReasonTimeout:
		m.playSoundLocked(s.siteID, sounds.KindError)
	case ReasonNotRecognized, ReasonError:
		m.playSoundLocked(s.siteID, sounds.KindNotRecognized)
	case ReasonSuperseded:
		if m.settings.SoundOnSuperseded {
			m.playSoundLocked(s.siteID, sounds.KindError)
		}
	}

	s.state = StateEnded
	m.publish(hermes.SessionEnded{
		SiteID:      s.siteID,
		SessionID:   s.id,
		CustomData:  s.customData,
		Termination: hermes.Termination{Reason: reason},
		IntentName:  s.intentName,
	})

	delete(m.sessions, s.siteID)
	delete(m.sites, s.id)
	m.metrics.SetActiveSessions(len(m.sessions))
	endedAt := time.Now().UTC()
	m.metrics.ObserveSessionEnded(reason, endedAt.Sub(s.startedAt))
	m.logf("session %s ended on site %s: %s", s.id, s.siteID, reason)

	if m.journal != nil {
		entry := history.Entry{
			SiteID:     s.siteID,
			SessionID:  s.id,
			Reason:     reason,
			Transcript: s.lastText,
			Intent:     s.intentName,
			CustomData: s.customData,
			StartedAt:  s.startedAt,
			EndedAt:    endedAt,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
			defer cancel()
			if err := m.journal.Record(ctx, entry); err != nil {
				log.Printf("dialogue: journal record failed: %v", err)
			}
		}()
	}

	// Hand the site to the next queued start, if any.
	if q := m.queues[s.siteID]; len(q) > 0 {
		next := q[0]
		m.queues[s.siteID] = q[1:]
		m.startLocked(next)
	}
}

// toggleHotwordLocked tracks the hotword suppression state per session so
// the on/off commands are never published twice in a row.
func (m *Manager) toggleHotwordLocked(s *session, on bool) {
	if on {
		if !s.hotwordOff {
			return
		}
		s.hotwordOff = false
		m.publish(hermes.HotwordToggleOn{SiteID: s.siteID})
		return
	}
	if s.hotwordOff {
		return
	}
	s.hotwordOff = true
	m.publish(hermes.HotwordToggleOff{SiteID: s.siteID})
}

func (m *Manager) playSoundLocked(siteID string, kind sounds.Kind) {
	if m.sounds == nil {
		return
	}
	wav, ok := m.sounds.Render(siteID, kind)
	if !ok {
		return
	}
	m.publish(hermes.PlaySound{SiteID: siteID, RequestID: uuid.NewString(), WAV: wav})
}

// matchLocked returns the session with the given id only if it is in the
// expected state; anything else is protocol noise for the caller to drop.
func (m *Manager) matchLocked(sessionID string, want State) *session {
	s := m.bySessionIDLocked(sessionID)
	if s == nil || s.state != want {
		return nil
	}
	return s
}

func (m *Manager) bySessionIDLocked(sessionID string) *session {
	siteID, ok := m.sites[sessionID]
	if !ok {
		return nil
	}
	return m.sessions[siteID]
}

// ---------------------------------------------------------------------------
// Helpers.

func (m *Manager) siteAllowed(siteID string) bool {
	if len(m.settings.SiteIDs) == 0 {
		return true
	}
	for _, id := range m.settings.SiteIDs {
		if id == siteID {
			return true
		}
	}
	return false
}

func (m *Manager) wakewordAllowed(wakewordID string) bool {
	if len(m.settings.WakewordIDs) == 0 {
		return true
	}
	for _, id := range m.settings.WakewordIDs {
		if id == wakewordID {
			return true
		}
	}
	return false
}

func intentAllowed(filter []string, intentName string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, name := range filter {
		if name == intentName {
			return true
		}
	}
	return false
}

func (m *Manager) publish(msg hermes.Outbound) {
	payload, err := msg.Payload()
	if err != nil {
		log.Printf("dialogue: marshal %T: %v", msg, err)
		return
	}
	m.metrics.ObserveBusMessage("outbound", outboundKind(msg))
	if err := m.pub.Publish(msg.Topic(), payload); err != nil {
		log.Printf("dialogue: publish %s: %v", msg.Topic(), err)
	}
}

func (m *Manager) drop(cause string) {
	m.metrics.ObserveDropped(cause)
}

func (m *Manager) logf(format string, args ...any) {
	if m.settings.Debug {
		log.Printf("dialogue: "+format, args...)
	}
}

func outboundKind(msg hermes.Outbound) string {
	switch msg.(type) {
	case hermes.SessionStarted:
		return "session_started"
	case hermes.SessionQueued:
		return "session_queued"
	case hermes.SessionEnded:
		return "session_ended"
	case hermes.BeginCapture:
		return "begin_capture"
	case hermes.StopCapture:
		return "stop_capture"
	case hermes.IntentQuery:
		return "intent_query"
	case hermes.SpeakText:
		return "speak_text"
	case hermes.PlaySound:
		return "play_sound"
	case hermes.IntentNotRecognizedNotice:
		return "intent_not_recognized"
	case hermes.SessionError:
		return "session_error"
	case hermes.HotwordToggleOn:
		return "hotword_toggle_on"
	case hermes.HotwordToggleOff:
		return "hotword_toggle_off"
	default:
		return "unknown"
	}
}
