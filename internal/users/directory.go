// Package users tracks per-user presence, view time and currency, and
// answers ranking queries over them.
package users

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// Metric selects the value users are ranked by.
type Metric int

const (
	MetricCurrency Metric = iota
	MetricViewTime
)

func (m Metric) String() string {
	switch m {
	case MetricCurrency:
		return "points"
	case MetricViewTime:
		return "watchtime"
	default:
		return "unknown"
	}
}

// ParseMetric accepts "points"/"currency" and "watchtime"/"viewtime".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "points", "currency":
		return MetricCurrency, nil
	case "watchtime", "viewtime", "view_time":
		return MetricViewTime, nil
	}
	return 0, fmt.Errorf("%w: unknown metric %q", cerrors.ErrInvalidArgument, s)
}

// Directory owns every user record. The directory lock guards the map and
// insertion order; each record carries its own lock for field updates.
type Directory struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string
	logger  zerolog.Logger
}

// NewDirectory creates an empty directory.
func NewDirectory(logger zerolog.Logger) *Directory {
	return &Directory{
		records: make(map[string]*record),
		logger:  logger.With().Str("component", "users").Logger(),
	}
}

func (d *Directory) lookup(user string) *record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.records[user]
}

func (d *Directory) getOrCreate(user string, at time.Time) *record {
	if rec := d.lookup(user); rec != nil {
		return rec
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[user]; ok {
		return rec
	}
	rec := &record{createdAt: at}
	d.records[user] = rec
	d.order = append(d.order, user)
	d.logger.Debug().Str("user", user).Msg("user created")
	return rec
}

// Join marks user present and opens a presence session. Joining while
// already present leaves the open session untouched.
func (d *Directory) Join(user string, at time.Time) {
	rec := d.getOrCreate(user, at)
	rec.mu.Lock()
	rec.join(at)
	rec.mu.Unlock()
}

// Part closes the user's open session, folding its duration into the
// accumulated total. Unknown or absent users are ignored.
func (d *Directory) Part(user string, at time.Time) {
	rec := d.lookup(user)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	rec.part(at)
	rec.mu.Unlock()
}

// Message records chat activity. A message from an unknown or absent user
// counts as an implicit join.
func (d *Directory) Message(user string, at time.Time) {
	rec := d.getOrCreate(user, at)
	rec.mu.Lock()
	rec.join(at)
	if at.After(rec.lastMessageAt) {
		rec.lastMessageAt = at
	}
	rec.mu.Unlock()
}

// Exists reports whether user has ever been observed.
func (d *Directory) Exists(user string) bool {
	return d.lookup(user) != nil
}

// Len returns the number of known users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// ViewDuration returns the accumulated view time plus the elapsed part of
// an open session. It does not modify the record.
func (d *Directory) ViewDuration(user string, now time.Time) (time.Duration, error) {
	rec := d.lookup(user)
	if rec == nil {
		return 0, noSuchUser(user)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.viewDuration(now), nil
}

// AdjustCurrency adds delta to the user's balance, clamping at zero, and
// returns the new balance.
func (d *Directory) AdjustCurrency(user string, delta int64) (int64, error) {
	rec := d.lookup(user)
	if rec == nil {
		return 0, noSuchUser(user)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.currency += delta
	if rec.currency < 0 {
		rec.currency = 0
	}
	return rec.currency, nil
}

// Spend deducts amount from the user's balance only when the balance covers
// it, and returns the new balance.
func (d *Directory) Spend(user string, amount int64) (int64, error) {
	rec := d.lookup(user)
	if rec == nil {
		return 0, noSuchUser(user)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative spend %d", cerrors.ErrInvalidArgument, amount)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.currency < amount {
		return rec.currency, cerrors.ErrInsufficientPoints
	}
	rec.currency -= amount
	return rec.currency, nil
}

// Currency returns the user's balance.
func (d *Directory) Currency(user string) (int64, error) {
	rec := d.lookup(user)
	if rec == nil {
		return 0, noSuchUser(user)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.currency, nil
}

// Info returns a point-in-time view of the user's record.
func (d *Directory) Info(user string, now time.Time) (Info, error) {
	rec := d.lookup(user)
	if rec == nil {
		return Info{}, noSuchUser(user)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.info(user, now), nil
}

// Present returns the users currently joined, in first-seen order.
func (d *Directory) Present() []string {
	var out []string
	d.each(func(name string, rec *record) {
		if rec.present {
			out = append(out, name)
		}
	})
	return out
}

// ActiveUsers returns present users whose last message falls within the
// window ending at now.
func (d *Directory) ActiveUsers(within time.Duration, now time.Time) []string {
	var out []string
	d.each(func(name string, rec *record) {
		if !rec.present || rec.lastMessageAt.IsZero() {
			return
		}
		if now.Sub(rec.lastMessageAt) <= within {
			out = append(out, name)
		}
	})
	return out
}

// each visits records in insertion order holding the directory read lock
// and each record's lock in turn.
func (d *Directory) each(fn func(name string, rec *record)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, name := range d.order {
		rec := d.records[name]
		rec.mu.Lock()
		fn(name, rec)
		rec.mu.Unlock()
	}
}

func noSuchUser(user string) error {
	return fmt.Errorf("%w: %s", cerrors.ErrNoSuchUser, user)
}
