// Package commands parses chat command invocations, enforces permission,
// cooldown and point cost, and runs builtin or user-defined commands.
package commands

import (
	"fmt"
	"strings"
	"sync"
	"time"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// Definition describes a command. Builtins use the same shape for their
// permission, cooldown and usage bookkeeping.
type Definition struct {
	Name            string    `json:"name" yaml:"name"`
	Level           Level     `json:"level" yaml:"level"`
	Content         string    `json:"content" yaml:"content"`
	CooldownSeconds int       `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	PointCost       int64     `json:"point_cost" yaml:"point_cost"`
	LastUsedAt      time.Time `json:"last_used_at" yaml:"-"`
	UseCount        int       `json:"use_count" yaml:"-"`
}

// Validate checks the name, cooldown and cost.
func (d Definition) Validate() error {
	if d.Name == "" || strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("%w: command name %q", cerrors.ErrInvalidConfiguration, d.Name)
	}
	if d.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown %d is negative", cerrors.ErrInvalidConfiguration, d.CooldownSeconds)
	}
	if d.PointCost < 0 {
		return fmt.Errorf("%w: point cost %d is negative", cerrors.ErrInvalidConfiguration, d.PointCost)
	}
	return nil
}

func (d Definition) cooldown() time.Duration {
	return time.Duration(d.CooldownSeconds) * time.Second
}

// onCooldown reports whether the command was used within its cooldown
// window. The boundary itself still counts as cooling down.
func (d Definition) onCooldown(now time.Time) bool {
	if d.CooldownSeconds <= 0 || d.LastUsedAt.IsZero() {
		return false
	}
	return now.Sub(d.LastUsedAt) <= d.cooldown()
}

// Patch carries the fields editcom may change. Nil fields are left alone.
type Patch struct {
	Level           *Level
	Content         *string
	CooldownSeconds *int
	PointCost       *int64
}

func (p Patch) apply(d Definition) Definition {
	if p.Level != nil {
		d.Level = *p.Level
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.CooldownSeconds != nil {
		d.CooldownSeconds = *p.CooldownSeconds
	}
	if p.PointCost != nil {
		d.PointCost = *p.PointCost
	}
	return d
}

// entry guards one definition. Invocations hold the lock across the
// cooldown check and the usage update.
type entry struct {
	mu  sync.Mutex
	def Definition
}

func (e *entry) snapshot() Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.def
}

// NormalizeName lower-cases a command name and strips a leading marker.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "!"))
}
