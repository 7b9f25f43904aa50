package commands

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// MinTimerInterval is the shortest interval a timer may repeat at.
const MinTimerInterval = time.Minute

// Timer is a message posted to chat on a fixed interval.
type Timer struct {
	Name     string        `json:"name" yaml:"name"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Message  string        `json:"message" yaml:"message"`
	LastSent time.Time     `json:"last_sent" yaml:"-"`
}

// Timers is the named set of repeating messages.
type Timers struct {
	mu     sync.Mutex
	timers map[string]*Timer
}

// NewTimers creates an empty set.
func NewTimers() *Timers {
	return &Timers{timers: make(map[string]*Timer)}
}

// Set adds or replaces a timer. The first send happens one interval after
// now.
func (t *Timers) Set(name string, interval time.Duration, message string, now time.Time) error {
	name = NormalizeName(name)
	message = strings.TrimSpace(message)
	if name == "" || message == "" {
		return fmt.Errorf("%w: timer needs a name and a message", cerrors.ErrInvalidArgument)
	}
	if interval < MinTimerInterval {
		return fmt.Errorf("%w: timer interval %s is below %s", cerrors.ErrInvalidConfiguration, interval, MinTimerInterval)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers[name] = &Timer{Name: name, Interval: interval, Message: message, LastSent: now}
	return nil
}

// Remove deletes a timer and reports whether it existed.
func (t *Timers) Remove(name string) bool {
	name = NormalizeName(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.timers[name]; !ok {
		return false
	}
	delete(t.timers, name)
	return true
}

// List returns copies of all timers sorted by name.
func (t *Timers) List() []Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Timer, 0, len(t.timers))
	for _, tm := range t.timers {
		out = append(out, *tm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Due returns timers whose interval has elapsed at now and marks them sent.
func (t *Timers) Due(now time.Time) []Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []Timer
	for _, tm := range t.timers {
		if now.Sub(tm.LastSent) >= tm.Interval {
			tm.LastSent = now
			due = append(due, *tm)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	return due
}

// Restore loads persisted timers, keeping their last send time. Invalid
// timers are skipped. A timer that was never sent starts counting at now.
func (t *Timers) Restore(timers []Timer, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, tm := range timers {
		name := NormalizeName(tm.Name)
		if name == "" || strings.TrimSpace(tm.Message) == "" || tm.Interval < MinTimerInterval {
			continue
		}
		last := tm.LastSent
		if last.IsZero() {
			last = now
		}
		t.timers[name] = &Timer{Name: name, Interval: tm.Interval, Message: tm.Message, LastSent: last}
		n++
	}
	return n
}
