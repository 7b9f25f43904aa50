package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/config"
	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/store"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

// botState groups the components whose contents are persisted.
type botState struct {
	dir       *users.Directory
	router    *commands.Router
	blacklist *filter.Blacklist
}

func (s botState) snapshot(now time.Time) store.Snapshot {
	return store.Snapshot{
		Users:     s.dir.Snapshot(now),
		Commands:  s.router.Table().List(),
		Blacklist: s.blacklist.Words(),
		Timers:    s.router.Timers().List(),
	}
}

func (s botState) save(ctx context.Context, st *store.Store, now time.Time) error {
	if err := st.SaveSnapshot(ctx, s.snapshot(now)); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (s botState) restore(ctx context.Context, st *store.Store, now time.Time, logger zerolog.Logger) error {
	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	s.dir.Restore(snap.Users)
	cmds := s.router.Table().Restore(snap.Commands)
	timers := s.router.Timers().Restore(snap.Timers, now)
	s.blacklist.Replace(snap.Blacklist)

	logger.Info().
		Int("users", len(snap.Users)).
		Int("commands", cmds).
		Int("timers", timers).
		Int("blacklist", s.blacklist.Len()).
		Msg("state restored")
	return nil
}

// seed applies the rules file on top of restored state. Entries that
// already exist keep their stored version.
func (s botState) seed(rules *config.Rules, now time.Time, logger zerolog.Logger) error {
	var errs []error
	for _, w := range rules.Blacklist {
		if err := s.blacklist.Add(w); err != nil {
			errs = append(errs, err)
		}
	}

	added := 0
	for _, c := range rules.Commands {
		level, err := commands.ParseLevel(c.Level)
		if err != nil {
			errs = append(errs, fmt.Errorf("command %q: %w", c.Name, err))
			continue
		}
		err = s.router.Table().Add(commands.Definition{
			Name:            c.Name,
			Level:           level,
			Content:         c.Content,
			CooldownSeconds: c.CooldownSeconds,
			PointCost:       c.PointCost,
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, cerrors.ErrCommandExists):
		default:
			errs = append(errs, err)
		}
	}

	existing := make(map[string]bool)
	for _, t := range s.router.Timers().List() {
		existing[t.Name] = true
	}
	for _, t := range rules.Timers {
		if existing[commands.NormalizeName(t.Name)] {
			continue
		}
		if err := s.router.Timers().Set(t.Name, t.Interval, t.Message, now); err != nil {
			errs = append(errs, fmt.Errorf("timer %q: %w", t.Name, err))
		}
	}

	logger.Info().Int("commands_added", added).Msg("rules applied")
	return errors.Join(errs...)
}
