// Package scheduler runs periodic chat housekeeping: timer messages,
// currency payouts and state snapshots.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatkeeper/internal/metrics"
)

// DefaultTick is how often the scheduler wakes up.
const DefaultTick = time.Minute

// Task is periodic work. A zero Interval runs on every tick; otherwise the
// task runs once Interval has elapsed since its previous run, starting one
// Interval after the first tick.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

type task struct {
	Task
	last time.Time
}

// Scheduler drives tasks from a single ticker.
type Scheduler struct {
	mu      sync.Mutex
	tick    time.Duration
	tasks   []*task
	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a scheduler that wakes every tick. A non-positive tick uses
// DefaultTick.
func New(tick time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		tick:    tick,
		now:     time.Now,
		metrics: m,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
}

// Add registers a task. Tasks without Run are ignored.
func (s *Scheduler) Add(t Task) {
	if t.Run == nil {
		return
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, &task{Task: t})
	s.mu.Unlock()
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info().Dur("tick", s.tick).Int("tasks", s.taskCount()).Msg("scheduler started")
	s.Tick(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs every task that is due at now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*task
	for _, t := range s.tasks {
		if t.Interval > 0 {
			if t.last.IsZero() {
				t.last = now
				continue
			}
			if now.Sub(t.last) < t.Interval {
				continue
			}
		}
		t.last = now
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.runTask(ctx, t, now)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordEventError("task:" + t.Name)
			s.logger.Error().Str("task", t.Name).Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()
	if err := t.Run(ctx, now); err != nil {
		s.metrics.RecordEventError("task:" + t.Name)
		s.logger.Warn().Err(err).Str("task", t.Name).Msg("task failed")
		return
	}
	s.logger.Debug().Str("task", t.Name).Msg("task ran")
}

func (s *Scheduler) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
