package commands

import (
	"fmt"
	"strings"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// Level is the ordered permission level of a chat user.
type Level int

const (
	LevelNone Level = iota
	LevelSubscriber
	LevelMod
	LevelBroadcaster
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelSubscriber:
		return "subscriber"
	case LevelMod:
		return "mod"
	case LevelBroadcaster:
		return "broadcaster"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name. Common aliases are accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "everyone", "default", "":
		return LevelNone, nil
	case "subscriber", "sub":
		return LevelSubscriber, nil
	case "mod", "moderator":
		return LevelMod, nil
	case "broadcaster", "owner":
		return LevelBroadcaster, nil
	}
	return LevelNone, fmt.Errorf("%w: unknown permission level %q", cerrors.ErrInvalidArgument, s)
}

// MarshalText implements encoding.TextMarshaler so levels read and write as
// names in YAML and JSON.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
