// Package engine implements the automated trading lifecycle engine.
package engine

import (
	"sync"
	"time"

	"soar-trader/internal/models"
)

// nyLocation is the timezone of the US exchanges the engine trades on.
var nyLocation *time.Location

func init() {
	var err error
	nyLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST; DST handling degrades but the engine stays up
		nyLocation = time.FixedZone("EST", -5*60*60)
	}
}

// SessionClock classifies wall-clock time into session phases and detects
// the closed-to-open transition. Observe raises the open edge exactly once
// per trading day.
type SessionClock struct {
	location *time.Location

	mu           sync.Mutex
	prevPhase    models.SessionPhase
	lastOpenDate string // "2006-01-02" of the last raised open edge
}

// NewSessionClock creates a session clock for the exchange timezone.
func NewSessionClock() *SessionClock {
	return &SessionClock{location: nyLocation}
}

// PhaseAt returns the session phase at a specific time.
// The regular session is [09:30, 16:00) exchange local time on weekdays;
// weekends are always closed.
func (c *SessionClock) PhaseAt(t time.Time) models.SessionPhase {
	t = t.In(c.location)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return models.PhaseWeekend
	}

	minutes := t.Hour()*60 + t.Minute()
	openMinutes := 9*60 + 30
	closeMinutes := 16 * 60

	switch {
	case minutes < openMinutes:
		return models.PhasePreOpen
	case minutes < closeMinutes:
		return models.PhaseRegular
	default:
		return models.PhaseAfterClose
	}
}

// Observe evaluates the phase at t and reports whether the market just
// opened. The open edge fires on the first observation where the previous
// phase was non-regular and the new phase is regular, at most once per day.
func (c *SessionClock) Observe(t time.Time) (models.SessionPhase, bool) {
	phase := c.PhaseAt(t)

	c.mu.Lock()
	defer c.mu.Unlock()

	justOpened := false
	day := t.In(c.location).Format("2006-01-02")
	if phase == models.PhaseRegular && c.prevPhase != models.PhaseRegular && c.prevPhase != "" && c.lastOpenDate != day {
		justOpened = true
		c.lastOpenDate = day
	}
	c.prevPhase = phase

	return phase, justOpened
}

// IsRegularSession reports whether t falls inside the regular session.
func (c *SessionClock) IsRegularSession(t time.Time) bool {
	return c.PhaseAt(t) == models.PhaseRegular
}
