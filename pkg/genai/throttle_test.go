package genai

import (
	"testing"
	"time"
)

func TestRateWindowEnforcesLimit(t *testing.T) {
	w := NewRateWindow(5, time.Minute)
	base := time.Now()
	now := base
	w.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !w.Allow() {
			t.Fatalf("call %d rejected under the limit", i)
		}
	}
	if w.Allow() {
		t.Error("sixth call inside the window was allowed")
	}
}

func TestRateWindowSlides(t *testing.T) {
	w := NewRateWindow(5, time.Minute)
	base := time.Now()
	now := base
	w.now = func() time.Time { return now }

	// Two early calls, then three near the end of the window.
	w.Allow()
	w.Allow()
	now = base.Add(50 * time.Second)
	w.Allow()
	w.Allow()
	w.Allow()
	if w.Allow() {
		t.Fatal("over-limit call allowed")
	}

	// Once the first two stamps age out, their budget frees up.
	now = base.Add(61 * time.Second)
	if !w.Allow() {
		t.Error("call rejected after early stamps expired")
	}
	if !w.Allow() {
		t.Error("second freed slot rejected")
	}
	if w.Allow() {
		t.Error("window refilled beyond freed slots")
	}
}

func TestRateWindowDefaults(t *testing.T) {
	w := NewRateWindow(0, 0)
	if w.limit != 5 || w.window != time.Minute {
		t.Errorf("defaults = %d/%v", w.limit, w.window)
	}
}
