// Package errors provides the error taxonomy shared by the moderation core.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoSuchUser             = errors.New("no such user")
	ErrNoSuchCommand          = errors.New("no such command")
	ErrOnCooldown             = errors.New("command on cooldown")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrInsufficientPoints     = errors.New("insufficient points")
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrCommandExists          = errors.New("command already exists")

	// ErrReservedName is returned when a custom command would shadow a builtin.
	ErrReservedName = fmt.Errorf("%w: name is reserved by a builtin command", ErrInvalidConfiguration)
)

// CommandError ties a failure to the command that produced it.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError wraps err with the command name.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// IsPolicyDenial reports whether err is a policy rejection that should be shown
// to the invoker rather than logged as a failure.
func IsPolicyDenial(err error) bool {
	return errors.Is(err, ErrOnCooldown) ||
		errors.Is(err, ErrInsufficientPermission) ||
		errors.Is(err, ErrInsufficientPoints)
}
