package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
)

// Sender posts text to the chat channel.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Roster is the part of the user directory payouts need.
type Roster interface {
	Present() []string
	AdjustCurrency(user string, delta int64) (int64, error)
}

// TimersTask sends every due timer message on each tick.
func TimersTask(timers *commands.Timers, sender Sender) Task {
	return Task{
		Name: "timers",
		Run: func(ctx context.Context, now time.Time) error {
			var errs []error
			for _, t := range timers.Due(now) {
				if err := sender.SendText(ctx, t.Message); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// PayoutTask credits amount to every present user each interval.
func PayoutTask(roster Roster, amount int64, interval time.Duration) Task {
	return Task{
		Name:     "payout",
		Interval: interval,
		Run: func(_ context.Context, _ time.Time) error {
			var errs []error
			for _, user := range roster.Present() {
				if _, err := roster.AdjustCurrency(user, amount); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// PresenceTask publishes the number of present users as a gauge.
func PresenceTask(roster Roster, m *metrics.Metrics) Task {
	return Task{
		Name: "presence",
		Run: func(_ context.Context, _ time.Time) error {
			m.SetUsersPresent(len(roster.Present()))
			return nil
		},
	}
}
