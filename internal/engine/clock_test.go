package engine

import (
	"testing"
	"time"

	"soar-trader/internal/models"
)

func TestPhaseAt(t *testing.T) {
	clock := NewSessionClock()

	tests := []struct {
		name string
		at   time.Time
		want models.SessionPhase
	}{
		{"saturday morning", nyTime(2026, time.January, 3, 10, 0), models.PhaseWeekend},
		{"sunday during regular hours", nyTime(2026, time.January, 4, 12, 0), models.PhaseWeekend},
		{"weekday before open", nyTime(2026, time.January, 5, 9, 29), models.PhasePreOpen},
		{"weekday midnight", nyTime(2026, time.January, 5, 0, 0), models.PhasePreOpen},
		{"open boundary inclusive", nyTime(2026, time.January, 5, 9, 30), models.PhaseRegular},
		{"midday", nyTime(2026, time.January, 5, 12, 0), models.PhaseRegular},
		{"last regular minute", nyTime(2026, time.January, 5, 15, 59), models.PhaseRegular},
		{"close boundary exclusive", nyTime(2026, time.January, 5, 16, 0), models.PhaseAfterClose},
		{"evening", nyTime(2026, time.January, 5, 20, 0), models.PhaseAfterClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.PhaseAt(tt.at); got != tt.want {
				t.Errorf("PhaseAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestObserveOpenEdge(t *testing.T) {
	clock := NewSessionClock()

	// First ever observation never raises an edge, even inside the
	// regular session: there is no known previous phase.
	phase, opened := clock.Observe(nyTime(2026, time.January, 5, 10, 0))
	if phase != models.PhaseRegular {
		t.Fatalf("expected regular phase, got %v", phase)
	}
	if opened {
		t.Fatal("first observation must not raise an open edge")
	}

	// Next day: pre-open then open raises exactly one edge.
	if _, opened := clock.Observe(nyTime(2026, time.January, 6, 9, 0)); opened {
		t.Fatal("pre-open must not raise an open edge")
	}
	if _, opened := clock.Observe(nyTime(2026, time.January, 6, 9, 30)); !opened {
		t.Fatal("expected open edge on pre-open to regular transition")
	}
	if _, opened := clock.Observe(nyTime(2026, time.January, 6, 9, 31)); opened {
		t.Fatal("open edge must fire once, not on every regular sample")
	}

	// A dip out of the session and back on the same day stays quiet.
	clock.Observe(nyTime(2026, time.January, 6, 16, 5))
	if _, opened := clock.Observe(nyTime(2026, time.January, 6, 15, 0)); opened {
		t.Fatal("open edge must not fire twice on the same day")
	}

	// A fresh day opens again.
	clock.Observe(nyTime(2026, time.January, 7, 9, 0))
	if _, opened := clock.Observe(nyTime(2026, time.January, 7, 9, 45)); !opened {
		t.Fatal("expected open edge on the next trading day")
	}
}

func TestIsRegularSession(t *testing.T) {
	clock := NewSessionClock()

	if clock.IsRegularSession(nyTime(2026, time.January, 3, 11, 0)) {
		t.Error("saturday must not be a regular session")
	}
	if !clock.IsRegularSession(nyTime(2026, time.January, 5, 11, 0)) {
		t.Error("monday 11:00 must be a regular session")
	}
	if clock.IsRegularSession(nyTime(2026, time.January, 5, 16, 0)) {
		t.Error("16:00 is outside the regular session")
	}
}
