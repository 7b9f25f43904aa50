// Package filter classifies chat messages against the caps, link and
// blacklist rules.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// Verdict is the outcome of classifying a single message.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictCaps
	VerdictLink
	VerdictBlacklisted
)

func (v Verdict) String() string {
	switch v {
	case VerdictNone:
		return "none"
	case VerdictCaps:
		return "caps"
	case VerdictLink:
		return "link"
	case VerdictBlacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

// Rule names a single classification rule for toggling.
type Rule string

const (
	RuleCaps      Rule = "caps"
	RuleLinks     Rule = "links"
	RuleBlacklist Rule = "blacklist"
)

var linkRe = regexp.MustCompile(`(https?://)?([\da-z\.-]+)\.([a-z\.]{2,6})([/\w \.-]*)/?`)

// Config holds the rule thresholds and toggles.
type Config struct {
	CapsMinLength  int     `json:"caps_min_length"`
	CapsRatio      float64 `json:"caps_ratio"`
	CheckCaps      bool    `json:"check_caps"`
	CheckLinks     bool    `json:"check_links"`
	CheckBlacklist bool    `json:"check_blacklist"`
}

// DefaultConfig returns the stock rule configuration.
func DefaultConfig() Config {
	return Config{
		CapsMinLength:  5,
		CapsRatio:      0.75,
		CheckCaps:      true,
		CheckLinks:     true,
		CheckBlacklist: true,
	}
}

// Validate checks the thresholds for sane values.
func (c Config) Validate() error {
	if c.CapsMinLength < 0 {
		return fmt.Errorf("%w: caps minimum length %d is negative", cerrors.ErrInvalidConfiguration, c.CapsMinLength)
	}
	if c.CapsRatio <= 0 || c.CapsRatio > 1 {
		return fmt.Errorf("%w: caps ratio %v outside (0,1]", cerrors.ErrInvalidConfiguration, c.CapsRatio)
	}
	return nil
}

// Classifier evaluates messages. The only state it holds is configuration
// and the blacklist, both safe for concurrent use.
type Classifier struct {
	mu        sync.RWMutex
	cfg       Config
	blacklist *Blacklist
}

// NewClassifier creates a classifier. An invalid cfg falls back to DefaultConfig.
func NewClassifier(cfg Config, blacklist *Blacklist) *Classifier {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	if blacklist == nil {
		blacklist = NewBlacklist()
	}
	return &Classifier{cfg: cfg, blacklist: blacklist}
}

// Blacklist returns the word set consulted by the blacklist rule.
func (c *Classifier) Blacklist() *Blacklist {
	return c.blacklist
}

// Config returns a copy of the current configuration.
func (c *Classifier) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig replaces the configuration. Invalid values are rejected and the
// previous configuration is kept.
func (c *Classifier) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

// SetRuleEnabled toggles a single rule.
func (c *Classifier) SetRuleEnabled(rule Rule, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch rule {
	case RuleCaps:
		c.cfg.CheckCaps = enabled
	case RuleLinks:
		c.cfg.CheckLinks = enabled
	case RuleBlacklist:
		c.cfg.CheckBlacklist = enabled
	default:
		return fmt.Errorf("%w: unknown rule %q", cerrors.ErrInvalidConfiguration, rule)
	}
	return nil
}

// Classify runs the rules in priority order caps, link, blacklist and returns
// the first match.
func (c *Classifier) Classify(message string) Verdict {
	cfg := c.Config()

	if cfg.CheckCaps && exceedsCaps(message, cfg.CapsMinLength, cfg.CapsRatio) {
		return VerdictCaps
	}
	if cfg.CheckLinks && linkRe.MatchString(message) {
		return VerdictLink
	}
	if cfg.CheckBlacklist && c.containsBlacklisted(message) {
		return VerdictBlacklisted
	}
	return VerdictNone
}

// exceedsCaps counts uppercase characters over the whole message, spaces and
// punctuation included in the length.
func exceedsCaps(message string, minLength int, ratio float64) bool {
	length := utf8.RuneCountInString(message)
	if length <= minLength {
		return false
	}
	upper := 0
	for _, r := range message {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper)/float64(length) > ratio
}

func (c *Classifier) containsBlacklisted(message string) bool {
	for _, word := range strings.Split(message, " ") {
		if word == "" {
			continue
		}
		if c.blacklist.Contains(word) {
			return true
		}
	}
	return false
}
