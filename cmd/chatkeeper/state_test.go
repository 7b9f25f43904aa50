package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/config"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/store"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

func newState() botState {
	dir := users.NewDirectory(zerolog.Nop())
	bl := filter.NewBlacklist()
	ledger := strikes.NewLedger(strikes.DefaultConfig(), nil, nil, zerolog.Nop())
	router := commands.NewRouter(commands.Options{Directory: dir, Blacklist: bl, Pardoner: ledger}, zerolog.Nop())
	return botState{dir: dir, router: router, blacklist: bl}
}

func TestState_SaveAndRestore(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	src := newState()
	src.dir.Join("alice", t0)
	_, err = src.dir.AdjustCurrency("alice", 42)
	require.NoError(t, err)
	require.NoError(t, src.router.Table().Add(commands.Definition{Name: "hug", Content: "hugs <touser>", Level: commands.LevelSubscriber}))
	require.NoError(t, src.blacklist.Add("spam"))
	require.NoError(t, src.router.Timers().Set("social", 15*time.Minute, "follow us", t0))

	require.NoError(t, src.save(ctx, st, t0.Add(time.Hour)))

	dst := newState()
	require.NoError(t, dst.restore(ctx, st, t0.Add(2*time.Hour), zerolog.Nop()))

	bal, err := dst.dir.Currency("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal)
	view, err := dst.dir.ViewDuration("alice", t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, view, "restored users start absent")

	def, ok := dst.router.Table().Get("hug")
	require.True(t, ok)
	assert.Equal(t, commands.LevelSubscriber, def.Level)
	assert.Equal(t, []string{"spam"}, dst.blacklist.Words())
	timers := dst.router.Timers().List()
	require.Len(t, timers, 1)
	assert.Equal(t, t0, timers[0].LastSent, "restored timers keep their last send time")
}

func TestState_SeedKeepsStoredCommands(t *testing.T) {
	s := newState()
	require.NoError(t, s.router.Table().Add(commands.Definition{Name: "discord", Content: "stored"}))

	rules := &config.Rules{
		Blacklist: []string{"spam"},
		Commands: []config.CommandRule{
			{Name: "discord", Content: "from rules"},
			{Name: "rules", Content: "be nice", Level: "mod"},
		},
		Timers: []config.TimerRule{{Name: "social", Interval: 10 * time.Minute, Message: "follow"}},
	}
	require.NoError(t, s.seed(rules, t0, zerolog.Nop()))

	def, _ := s.router.Table().Get("discord")
	assert.Equal(t, "stored", def.Content)
	def, ok := s.router.Table().Get("rules")
	require.True(t, ok)
	assert.Equal(t, commands.LevelMod, def.Level)
	assert.Equal(t, []string{"spam"}, s.blacklist.Words())
	assert.Len(t, s.router.Timers().List(), 1)
}

func TestState_SeedReportsRejectedRules(t *testing.T) {
	s := newState()
	rules := &config.Rules{
		Commands: []config.CommandRule{
			{Name: "raffle", Content: "shadows a builtin"},
			{Name: "bad", Content: "x", Level: "king"},
			{Name: "ok", Content: "fine"},
		},
		Timers: []config.TimerRule{{Name: "fast", Interval: time.Second, Message: "spam"}},
	}
	err := s.seed(rules, t0, zerolog.Nop())
	require.Error(t, err)

	_, ok := s.router.Table().Get("ok")
	assert.True(t, ok)
	assert.Empty(t, s.router.Timers().List())
}
