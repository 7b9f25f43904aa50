// Package strikes counts spam offenses per user and escalates repeat
// offenders to a timeout.
package strikes

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
)

// Outcome is the result of recording an offense.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeEscalated
)

func (o Outcome) String() string {
	if o == OutcomeEscalated {
		return "escalated"
	}
	return "none"
}

// TimeoutFunc is invoked when a user reaches the strike threshold. It must
// not block; the ledger does not track whether the timeout succeeded.
type TimeoutFunc func(user string, seconds int)

// Config holds escalation policy.
type Config struct {
	Threshold        int  `json:"threshold"`
	TimeoutSeconds   int  `json:"timeout_seconds"`
	AllowPardons     bool `json:"allow_pardons"`
	TimeoutOnStrikes bool `json:"timeout_on_strikes"`
}

// DefaultConfig returns three strikes and a fifteen minute timeout.
func DefaultConfig() Config {
	return Config{
		Threshold:        3,
		TimeoutSeconds:   15 * 60,
		AllowPardons:     true,
		TimeoutOnStrikes: true,
	}
}

// Validate checks the policy values.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("%w: strike threshold %d must be at least 1", cerrors.ErrInvalidConfiguration, c.Threshold)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout seconds %d is negative", cerrors.ErrInvalidConfiguration, c.TimeoutSeconds)
	}
	return nil
}

// Ledger owns the per-user strike counts and the pardon set.
type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	timeout TimeoutFunc

	strikes *xsync.MapOf[string, int]
	pardons *xsync.MapOf[string, struct{}]

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLedger creates a ledger. An invalid cfg falls back to DefaultConfig.
func NewLedger(cfg Config, timeout TimeoutFunc, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Ledger{
		cfg:     cfg,
		timeout: timeout,
		strikes: xsync.NewMapOf[string, int](),
		pardons: xsync.NewMapOf[string, struct{}](),
		metrics: m,
		logger:  logger.With().Str("component", "strikes").Logger(),
	}
}

// SetTimeoutFunc replaces the escalation callback.
func (l *Ledger) SetTimeoutFunc(fn TimeoutFunc) {
	l.mu.Lock()
	l.timeout = fn
	l.mu.Unlock()
}

// Config returns the current policy.
func (l *Ledger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// SetConfig replaces the policy, keeping the previous one on error.
func (l *Ledger) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return nil
}

// Record registers an offense for user. A standing pardon absorbs the
// offense entirely. Reaching the threshold removes the user's record and
// fires the timeout callback.
func (l *Ledger) Record(user string, verdict filter.Verdict) Outcome {
	if verdict == filter.VerdictNone {
		return OutcomeNone
	}

	if _, pardoned := l.pardons.LoadAndDelete(user); pardoned {
		l.metrics.RecordPardonConsumed()
		l.logger.Info().
			Str("user", user).
			Str("verdict", verdict.String()).
			Msg("pardon consumed")
		return OutcomeNone
	}

	l.mu.RLock()
	cfg := l.cfg
	timeout := l.timeout
	l.mu.RUnlock()

	var count int
	escalated := false
	l.strikes.Compute(user, func(old int, _ bool) (int, bool) {
		count = old + 1
		if count >= cfg.Threshold {
			escalated = true
			return 0, true
		}
		return count, false
	})
	l.metrics.RecordStrike()

	if !escalated {
		l.logger.Debug().
			Str("user", user).
			Str("verdict", verdict.String()).
			Int("strikes", count).
			Msg("strike recorded")
		return OutcomeNone
	}

	l.metrics.RecordEscalation()
	l.logger.Warn().
		Str("user", user).
		Str("verdict", verdict.String()).
		Int("timeout_seconds", cfg.TimeoutSeconds).
		Msg("strike threshold reached")

	if cfg.TimeoutOnStrikes && timeout != nil {
		timeout(user, cfg.TimeoutSeconds)
	}
	return OutcomeEscalated
}

// Pardon grants user a one-shot exemption. It reports whether the pardon
// was granted, which is false when pardons are disabled.
func (l *Ledger) Pardon(user string) bool {
	if !l.Config().AllowPardons {
		return false
	}
	l.pardons.Store(user, struct{}{})
	l.logger.Info().Str("user", user).Msg("pardon granted")
	return true
}

// Pardoned reports whether user holds an unused pardon.
func (l *Ledger) Pardoned(user string) bool {
	_, ok := l.pardons.Load(user)
	return ok
}

// Strikes returns the current strike count, zero when the user has none.
func (l *Ledger) Strikes(user string) int {
	n, _ := l.strikes.Load(user)
	return n
}

// Reset clears the user's strikes.
func (l *Ledger) Reset(user string) {
	l.strikes.Delete(user)
}
