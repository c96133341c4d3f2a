package dialogue

import (
	"time"
	"unicode/utf8"
)

// timerKind distinguishes the general session deadline from the computed
// speech deadline.
type timerKind string

const (
	timerSession timerKind = "session"
	timerSpeech  timerKind = "speech"
)

// timerHandle is the single armed deadline a session may hold. Expiry is
// re-injected through Manager.onTimer on the timer goroutine; the generation
// number lets the manager drop firings that lost the race with a cancel.
type timerHandle struct {
	kind timerKind
	gen  uint64
	t    *time.Timer
}

// armTimer replaces any live timer for the session with a new one. Called
// with the manager lock held, so replace-and-arm is atomic with the state
// transition that requested it.
func (m *Manager) armTimer(s *session, kind timerKind, d time.Duration) {
	if s.timer != nil {
		s.timer.t.Stop()
		s.timer = nil
	}
	m.timerGen++
	gen := m.timerGen
	siteID, sessionID := s.siteID, s.id
	s.timer = &timerHandle{
		kind: kind,
		gen:  gen,
		t: time.AfterFunc(d, func() {
			m.onTimer(siteID, sessionID, gen)
		}),
	}
}

// cancelTimer is idempotent and safe on a never-armed or already-fired
// timer. Called with the manager lock held.
func (m *Manager) cancelTimer(s *session) {
	if s.timer == nil {
		return
	}
	s.timer.t.Stop()
	s.timer = nil
}

// speechDeadline estimates how long an utterance takes to play out, floored
// at the configured minimum so one-word confirmations still get a window.
func (m *Manager) speechDeadline(text string) time.Duration {
	cps := m.settings.SpeechCharsPerSecond
	if cps <= 0 {
		cps = defaultCharsPerSecond
	}
	d := time.Duration(float64(utf8.RuneCountInString(text)) / cps * float64(time.Second))
	if d < m.settings.SpeechMinDuration {
		d = m.settings.SpeechMinDuration
	}
	return d
}
