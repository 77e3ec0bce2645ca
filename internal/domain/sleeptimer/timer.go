// Package sleeptimer schedules a playback stop after a delay.
package sleeptimer

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PrefKey is the preference holding the default duration in minutes.
const PrefKey = "sleep_timer_minutes"

// DefaultMinutes is used when no preference is stored.
const DefaultMinutes = 30

// Preferences is the subset of the preference store the timer uses.
type Preferences interface {
	GetInt(key string, def int) (int, error)
	SetInt(key string, value int) error
}

// Status is the timer state shown to the UI.
type Status struct {
	Active    bool      `json:"active"`
	Minutes   int       `json:"minutes"`
	Remaining int64     `json:"remaining"` // milliseconds
	EndsAt    time.Time `json:"endsAt,omitempty"`
}

// Timer fires a stop through the same command path the UI uses.
type Timer struct {
	prefs    Preferences
	stop     func() error
	onChange func(Status)
	tick     time.Duration

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	done    chan struct{}
	minutes int
	endsAt  time.Time
}

// New creates a timer. stop is called on expiry.
func New(prefs Preferences, stop func() error) *Timer {
	return &Timer{
		prefs: prefs,
		stop:  stop,
		tick:  time.Minute,
	}
}

// OnChange registers fn to receive every status change, including the
// periodic remaining-time refresh. Must be called before Start.
func (t *Timer) OnChange(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// SetTickInterval changes how often Remaining is refreshed while active.
func (t *Timer) SetTickInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > 0 {
		t.tick = d
	}
}

// DefaultDuration returns the stored default, falling back to DefaultMinutes.
func (t *Timer) DefaultDuration() time.Duration {
	minutes := DefaultMinutes
	if t.prefs != nil {
		m, err := t.prefs.GetInt(PrefKey, DefaultMinutes)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read sleep timer preference")
		} else if m > 0 {
			minutes = m
		}
	}
	return time.Duration(minutes) * time.Minute
}

// Start arms the timer, replacing any running one. A non-positive d uses the
// stored default; otherwise d becomes the new default.
func (t *Timer) Start(d time.Duration) Status {
	if d <= 0 {
		d = t.DefaultDuration()
	} else if t.prefs != nil {
		if err := t.prefs.SetInt(PrefKey, minutesOf(d)); err != nil {
			log.Warn().Err(err).Msg("Failed to store sleep timer preference")
		}
	}

	t.mu.Lock()
	t.disarmLocked()
	t.gen++
	gen := t.gen
	t.minutes = minutesOf(d)
	t.endsAt = time.Now().Add(d)
	t.done = make(chan struct{})
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
	go t.refresh(gen, t.done, t.tick)
	st := t.statusLocked()
	fn := t.onChange
	t.mu.Unlock()

	log.Info().Dur("duration", d).Msg("Sleep timer started")
	if fn != nil {
		fn(st)
	}
	return st
}

// Cancel disarms the timer. It reports whether a timer was running.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	if t.timer == nil {
		t.mu.Unlock()
		return false
	}
	t.disarmLocked()
	t.gen++
	st := t.statusLocked()
	fn := t.onChange
	t.mu.Unlock()

	log.Info().Msg("Sleep timer cancelled")
	if fn != nil {
		fn(st)
	}
	return true
}

// Status returns the current state.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Timer) statusLocked() Status {
	if t.timer == nil {
		return Status{}
	}
	remaining := time.Until(t.endsAt)
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Active:    true,
		Minutes:   t.minutes,
		Remaining: remaining.Milliseconds(),
		EndsAt:    t.endsAt,
	}
}

func (t *Timer) disarmLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	t.minutes = 0
	t.endsAt = time.Time{}
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.disarmLocked()
	t.gen++
	fn := t.onChange
	t.mu.Unlock()

	log.Info().Msg("Sleep timer expired, stopping playback")
	if t.stop != nil {
		if err := t.stop(); err != nil {
			log.Warn().Err(err).Msg("Sleep timer stop failed")
		}
	}
	if fn != nil {
		fn(Status{})
	}
}

// refresh reports the remaining time every interval while gen is armed.
func (t *Timer) refresh(gen uint64, done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if gen != t.gen {
				t.mu.Unlock()
				return
			}
			st := t.statusLocked()
			fn := t.onChange
			t.mu.Unlock()
			if fn != nil {
				fn(st)
			}
		}
	}
}

// minutesOf rounds d up to whole minutes, at least one.
func minutesOf(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}
