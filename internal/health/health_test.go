package health

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusOK })
	c.Register("slack", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Equal(t, []string{"db", "slack"}, c.Names())
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusOK })
	c.Register("slack", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
	assert.Equal(t, StatusDown, c.Last()["slack"])
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_Ready(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", PingCheck(func() error { return nil }))

	report, ok := c.Ready(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "ready", report.Status)
	assert.Equal(t, map[string]Status{"db": StatusOK}, report.Checks)

	c.Register("db", PingCheck(func() error { return errors.New("closed") }))
	report, ok = c.Ready(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "not_ready", report.Status)
}

func TestRuntimeCheck(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, StatusOK, RuntimeCheck(DefaultRuntimeLimits())(ctx))
	assert.Equal(t, StatusDegraded, RuntimeCheck(RuntimeLimits{MaxAllocMB: 1e-9})(ctx))
	assert.Equal(t, StatusOK, RuntimeCheck(RuntimeLimits{})(ctx), "zero limits disable the check")
}
