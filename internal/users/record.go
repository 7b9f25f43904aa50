package users

import (
	"sync"
	"time"
)

type record struct {
	mu sync.Mutex

	createdAt     time.Time
	lastMessageAt time.Time

	present      bool
	sessionStart time.Time
	accumulated  time.Duration

	currency int64
}

func (r *record) join(at time.Time) {
	if r.present {
		return
	}
	r.present = true
	r.sessionStart = at
}

func (r *record) part(at time.Time) {
	if !r.present {
		return
	}
	if elapsed := at.Sub(r.sessionStart); elapsed > 0 {
		r.accumulated += elapsed
	}
	r.present = false
	r.sessionStart = time.Time{}
}

func (r *record) viewDuration(now time.Time) time.Duration {
	total := r.accumulated
	if r.present {
		if elapsed := now.Sub(r.sessionStart); elapsed > 0 {
			total += elapsed
		}
	}
	return total
}

func (r *record) info(name string, now time.Time) Info {
	return Info{
		Name:          name,
		CreatedAt:     r.createdAt,
		LastMessageAt: r.lastMessageAt,
		Present:       r.present,
		ViewDuration:  r.viewDuration(now),
		Currency:      r.currency,
	}
}

// Info is a read-only copy of a user's record.
type Info struct {
	Name          string        `json:"name"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt time.Time     `json:"last_message_at"`
	Present       bool          `json:"present"`
	ViewDuration  time.Duration `json:"view_duration"`
	Currency      int64         `json:"currency"`
}
