package rollup

import "time"

// SessionEvent is one raw event projected down to what session
// reconstruction needs. Callers must supply events already ordered by
// timestamp with ingestion order breaking ties.
type SessionEvent struct {
	SessionID string
	EventType string
	Path      string
	Time      time.Time
	TimeOK    bool
}

// Session is one reconstructed visit: the ordered pageview paths plus the
// wall-clock span of its parseable events.
type Session struct {
	ID        string
	PageViews []string

	first   time.Time
	last    time.Time
	spanned int
}

// DurationSec is the span between the session's first and last parseable
// event. Sessions with fewer than two parseable timestamps report no
// duration.
func (s *Session) DurationSec() (float64, bool) {
	if s.spanned < 2 {
		return 0, false
	}
	return s.last.Sub(s.first).Seconds(), true
}

// Bounced reports whether the session contained exactly one pageview.
func (s *Session) Bounced() bool {
	return len(s.PageViews) == 1
}

// ExitPage is the path of the session's last pageview.
func (s *Session) ExitPage() (string, bool) {
	if len(s.PageViews) == 0 {
		return "", false
	}
	return s.PageViews[len(s.PageViews)-1], true
}

// SessionSet holds all sessions reconstructed from one site-day, in
// first-seen order.
type SessionSet struct {
	sessions []*Session
	index    map[string]*Session
}

// ReconstructSessions groups events by session id and accumulates per-session
// pageview order and time span. Events without a session id share the
// "unknown" bucket.
func ReconstructSessions(evts []SessionEvent) *SessionSet {
	set := &SessionSet{index: make(map[string]*Session)}
	for _, ev := range evts {
		id := ev.SessionID
		if id == "" {
			id = "unknown"
		}
		sess, ok := set.index[id]
		if !ok {
			sess = &Session{ID: id}
			set.index[id] = sess
			set.sessions = append(set.sessions, sess)
		}

		if ev.TimeOK {
			if sess.spanned == 0 || ev.Time.Before(sess.first) {
				sess.first = ev.Time
			}
			if sess.spanned == 0 || ev.Time.After(sess.last) {
				sess.last = ev.Time
			}
			sess.spanned++
		}
		if ev.EventType == "pageview" {
			sess.PageViews = append(sess.PageViews, ev.Path)
		}
	}
	return set
}

func (s *SessionSet) Count() int { return len(s.sessions) }

// Sessions returns the reconstructed sessions in first-seen order.
func (s *SessionSet) Sessions() []*Session { return s.sessions }

// AvgDurationSec averages over sessions that have a measurable span.
func (s *SessionSet) AvgDurationSec() float64 {
	var sum float64
	var n int
	for _, sess := range s.sessions {
		if d, ok := sess.DurationSec(); ok {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (s *SessionSet) AvgPagesPerSession() float64 {
	if len(s.sessions) == 0 {
		return 0
	}
	var pages int
	for _, sess := range s.sessions {
		pages += len(sess.PageViews)
	}
	return float64(pages) / float64(len(s.sessions))
}

func (s *SessionSet) BounceCount() int {
	var n int
	for _, sess := range s.sessions {
		if sess.Bounced() {
			n++
		}
	}
	return n
}

func (s *SessionSet) BounceRatePercent() float64 {
	if len(s.sessions) == 0 {
		return 0
	}
	return float64(s.BounceCount()) / float64(len(s.sessions)) * 100
}

// BouncesByPath counts bounced sessions per page path.
func (s *SessionSet) BouncesByPath() map[string]int {
	out := make(map[string]int)
	for _, sess := range s.sessions {
		if sess.Bounced() {
			out[sess.PageViews[0]]++
		}
	}
	return out
}

// ExitsByPath counts sessions whose last pageview landed on each path.
func (s *SessionSet) ExitsByPath() map[string]int {
	out := make(map[string]int)
	for _, sess := range s.sessions {
		if page, ok := sess.ExitPage(); ok {
			out[page]++
		}
	}
	return out
}
