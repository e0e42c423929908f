package app

import (
	"sync"
	"time"
)

// QuestionTimer guarantees one terminal submission per question per player
// session. Arm replaces any previous countdown, so a timer left over from an
// earlier question can never fire against the new one; the fire callback
// carries the question id it was armed with.
type QuestionTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	question string
}

// Arm starts (or restarts) the countdown for questionID. When it expires,
// fire runs with that id exactly once unless Arm or Stop intervenes.
func (t *QuestionTimer) Arm(questionID string, d time.Duration, fire func(questionID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.question = questionID
	t.timer = time.AfterFunc(d, func() {
		fire(questionID)
	})
}

// Stop cancels any pending countdown. Safe to call repeatedly and on a timer
// that never armed.
func (t *QuestionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
