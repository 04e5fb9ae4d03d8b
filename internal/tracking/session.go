// Package tracking accumulates a behavioral trail of the active browsing
// session, persists it across restarts, and delivers it to the analytics
// collector exactly once when the goal condition is reached.
package tracking

import "time"

// ClickEvent is one recorded interaction. Immutable once appended.
type ClickEvent struct {
	Sequence  int    `json:"sequence"`
	Category  string `json:"category"`
	Text      string `json:"text,omitempty"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// Session is the aggregate record of one browsing session. Timestamps are
// Unix milliseconds. Once GoalReached is set the session is immutable
// except for FlushAttempted.
type Session struct {
	ID             string       `json:"sessionId"`
	StartTime      int64        `json:"startTime"`
	EndTime        int64        `json:"endTime,omitempty"`
	TotalClicks    int          `json:"totalClicks"`
	ClickPath      []ClickEvent `json:"clickPath"`
	UserPath       []string     `json:"userPath"`
	GoalReached    bool         `json:"goalReached"`
	FlushAttempted bool         `json:"flushAttempted"`
}

// clone returns a deep copy safe to hand to observers and the collector.
func (s *Session) clone() Session {
	cp := *s
	cp.ClickPath = append([]ClickEvent(nil), s.ClickPath...)
	cp.UserPath = append([]string(nil), s.UserPath...)
	return cp
}

// expired reports whether the session started longer than maxAge ago.
func (s *Session) expired(now time.Time, maxAge time.Duration) bool {
	start := time.UnixMilli(s.StartTime)
	return now.Sub(start) > maxAge
}

// Stats is a derived, read-only view of the session.
type Stats struct {
	TotalClicks     int   `json:"totalClicks"`
	SessionDuration int64 `json:"sessionDurationMs"`
	PagesVisited    int   `json:"pagesVisited"`
	GoalReached     bool  `json:"goalReached"`
}
