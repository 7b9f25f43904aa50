package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestTick_IntervalTasks(t *testing.T) {
	s := New(time.Minute, nil, zerolog.Nop())
	var every, hourly int
	s.Add(Task{Name: "every", Run: func(context.Context, time.Time) error { every++; return nil }})
	s.Add(Task{Name: "hourly", Interval: time.Hour, Run: func(context.Context, time.Time) error { hourly++; return nil }})

	ctx := context.Background()
	s.Tick(ctx, t0)
	s.Tick(ctx, t0.Add(30*time.Minute))
	s.Tick(ctx, t0.Add(time.Hour))

	assert.Equal(t, 3, every)
	assert.Equal(t, 1, hourly)
}

func TestTick_RecoversFromPanicsAndErrors(t *testing.T) {
	m := metrics.New()
	s := New(time.Minute, m, zerolog.Nop())
	ran := false
	s.Add(Task{Name: "boom", Run: func(context.Context, time.Time) error { panic("kaboom") }})
	s.Add(Task{Name: "fail", Run: func(context.Context, time.Time) error { return errors.New("nope") }})
	s.Add(Task{Name: "ok", Run: func(context.Context, time.Time) error { ran = true; return nil }})

	require.NotPanics(t, func() { s.Tick(context.Background(), t0) })
	assert.True(t, ran)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventErrorsTotal.WithLabelValues("task:boom")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventErrorsTotal.WithLabelValues("task:fail")))
}

func TestTimersTask(t *testing.T) {
	timers := commands.NewTimers()
	require.NoError(t, timers.Set("social", 10*time.Minute, "Follow us!", t0))
	sender := &fakeSender{}

	s := New(time.Minute, nil, zerolog.Nop())
	s.Add(TimersTask(timers, sender))

	ctx := context.Background()
	s.Tick(ctx, t0.Add(5*time.Minute))
	assert.Empty(t, sender.messages())

	s.Tick(ctx, t0.Add(10*time.Minute))
	s.Tick(ctx, t0.Add(11*time.Minute))
	assert.Equal(t, []string{"Follow us!"}, sender.messages())
}

func TestPayoutTask(t *testing.T) {
	dir := users.NewDirectory(zerolog.Nop())
	dir.Join("alice", t0)
	dir.Join("bob", t0)
	dir.Part("bob", t0)

	s := New(time.Minute, nil, zerolog.Nop())
	s.Add(PayoutTask(dir, 5, 10*time.Minute))

	ctx := context.Background()
	s.Tick(ctx, t0)
	s.Tick(ctx, t0.Add(9*time.Minute))
	s.Tick(ctx, t0.Add(10*time.Minute))
	s.Tick(ctx, t0.Add(20*time.Minute))

	alice, err := dir.Currency("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), alice)
	bob, err := dir.Currency("bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bob)
}

func TestPresenceTask(t *testing.T) {
	m := metrics.New()
	dir := users.NewDirectory(zerolog.Nop())
	dir.Join("alice", t0)
	dir.Join("bob", t0)

	s := New(time.Minute, m, zerolog.Nop())
	s.Add(PresenceTask(dir, m))
	s.Tick(context.Background(), t0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UsersPresent))
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(10*time.Millisecond, nil, zerolog.Nop())
	var runs atomic.Int32
	s.Add(Task{Name: "count", Run: func(context.Context, time.Time) error { runs.Add(1); return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}
