package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandError_Error(t *testing.T) {
	err := NewCommandError("hug", ErrOnCooldown)
	assert.Contains(t, err.Error(), "hug")
	assert.Contains(t, err.Error(), "cooldown")
	assert.ErrorIs(t, err, ErrOnCooldown)
}

func TestCommandError_As(t *testing.T) {
	wrapped := fmt.Errorf("invoke: %w", NewCommandError("so", ErrInsufficientPermission))
	var cmdErr *CommandError
	assert.True(t, errors.As(wrapped, &cmdErr))
	assert.Equal(t, "so", cmdErr.Command)
}

func TestIsPolicyDenial(t *testing.T) {
	assert.True(t, IsPolicyDenial(ErrOnCooldown))
	assert.True(t, IsPolicyDenial(ErrInsufficientPermission))
	assert.True(t, IsPolicyDenial(ErrInsufficientPoints))
	assert.True(t, IsPolicyDenial(NewCommandError("x", ErrOnCooldown)))

	assert.False(t, IsPolicyDenial(ErrNoSuchCommand))
	assert.False(t, IsPolicyDenial(ErrNoSuchUser))
	assert.False(t, IsPolicyDenial(ErrInvalidConfiguration))
	assert.False(t, IsPolicyDenial(nil))
}

func TestReservedNameIsInvalidConfiguration(t *testing.T) {
	assert.ErrorIs(t, ErrReservedName, ErrInvalidConfiguration)
	assert.False(t, errors.Is(ErrInvalidConfiguration, ErrReservedName))
}
