// Package api provides the management HTTP API for the moderation bot.
package api

import (
	"time"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// UserResponse is a user record with ranking context.
type UserResponse struct {
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	Present       bool      `json:"present"`
	ViewSeconds   int64     `json:"view_seconds"`
	Currency      int64     `json:"currency"`
	Strikes       int       `json:"strikes"`
	Pardoned      bool      `json:"pardoned"`
}

// RankResponse is a user's 1-based position for a metric.
type RankResponse struct {
	User   string `json:"user"`
	Metric string `json:"metric"`
	Rank   int    `json:"rank"`
}

// CurrencyRequest adjusts a balance by Delta.
type CurrencyRequest struct {
	Delta int64 `json:"delta"`
}

// CurrencyResponse is the balance after an adjustment.
type CurrencyResponse struct {
	User     string `json:"user"`
	Currency int64  `json:"currency"`
}

// UserListResponse lists user names.
type UserListResponse struct {
	Users []string `json:"users"`
	Total int      `json:"total"`
}

// CommandListResponse lists custom and builtin commands.
type CommandListResponse struct {
	Custom  []commands.Definition `json:"custom"`
	Builtin []commands.Definition `json:"builtin"`
}

// CommandRequest creates a custom command.
type CommandRequest struct {
	Name            string `json:"name"`
	Level           string `json:"level"`
	Content         string `json:"content"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	PointCost       int64  `json:"point_cost"`
}

// BlacklistRequest adds a word.
type BlacklistRequest struct {
	Word string `json:"word"`
}

// BlacklistResponse lists blacklisted words.
type BlacklistResponse struct {
	Words []string `json:"words"`
}

// InvokeRequest runs a command line on behalf of a user.
type InvokeRequest struct {
	User  string `json:"user"`
	Level string `json:"level"`
	Line  string `json:"line"`
}

// InvokeResponse is the command outcome.
type InvokeResponse struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

// PardonResponse reports whether a pardon was granted.
type PardonResponse struct {
	User    string `json:"user"`
	Granted bool   `json:"granted"`
}

// ConfigResponse is the live moderation policy.
type ConfigResponse struct {
	Filter  filter.Config  `json:"filter"`
	Strikes strikes.Config `json:"strikes"`
}

// ConfigPatch updates parts of the moderation policy. Nil fields are left
// unchanged.
type ConfigPatch struct {
	CheckCaps        *bool    `json:"check_caps,omitempty"`
	CheckLinks       *bool    `json:"check_links,omitempty"`
	CheckBlacklist   *bool    `json:"check_blacklist,omitempty"`
	CapsMinLength    *int     `json:"caps_min_length,omitempty"`
	CapsRatio        *float64 `json:"caps_ratio,omitempty"`
	StrikeThreshold  *int     `json:"strike_threshold,omitempty"`
	TimeoutSeconds   *int     `json:"timeout_seconds,omitempty"`
	AllowPardons     *bool    `json:"allow_pardons,omitempty"`
	TimeoutOnStrikes *bool    `json:"timeout_on_strikes,omitempty"`
}

// HealthDetailResponse is returned by GET /api/v1/health.
type HealthDetailResponse struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Checks      map[string]string `json:"checks"`
	Users       int               `json:"users"`
	Commands    int               `json:"commands"`
	DBSizeBytes int64             `json:"db_size_bytes,omitempty"`
}
