package app_test

import (
	"testing"

	"trivia-service/internal/app"
)

func TestCountdown(t *testing.T) {
	c := app.NewCountdown(2)
	if c.Tick() {
		t.Fatalf("expected unarmed countdown to ignore ticks")
	}

	c.Rearm()
	if c.Tick() || c.Left() != 1 {
		t.Fatalf("expected 1s left, got %d", c.Left())
	}
	if !c.Tick() || c.Left() != 0 || c.Armed() {
		t.Fatalf("expected expiry to disarm at 0")
	}
	if c.Tick() {
		t.Fatalf("expected expiry to fire once")
	}

	c.Rearm()
	c.Disarm()
	if c.Tick() || c.Left() != 2 {
		t.Fatalf("expected disarmed countdown to hold at 2, got %d", c.Left())
	}

	if app.NewCountdown(0).Left() != app.DefaultCountdownSeconds {
		t.Fatalf("expected default start")
	}
}
