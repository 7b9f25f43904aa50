package dispatcher

import (
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/chatkeeper/internal/commands"
)

// EventKind identifies an inbound chat event.
type EventKind string

const (
	EventJoin    EventKind = "join"
	EventPart    EventKind = "part"
	EventMessage EventKind = "message"
)

// Event is an inbound chat event queued for Run.
type Event struct {
	ID    string
	Kind  EventKind
	User  string
	Text  string
	Level commands.Level
	At    time.Time
}

// NewEvent creates an event with a fresh ID. A zero at uses the current
// time.
func NewEvent(kind EventKind, user, text string, level commands.Level, at time.Time) Event {
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:    uuid.New().String(),
		Kind:  kind,
		User:  user,
		Text:  text,
		Level: level,
		At:    at,
	}
}

// Message is a chat line from a user.
type Message struct {
	User  string
	Text  string
	Level commands.Level
	At    time.Time
}

// Result describes how a message was handled.
type Result struct {
	// Command is the invoked command name, empty when the message was not
	// a command.
	Command   string
	Response  string
	Err       error
	Verdict   string
	Escalated bool
}
