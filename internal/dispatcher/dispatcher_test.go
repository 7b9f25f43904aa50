package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
	"github.com/p-blackswan/chatkeeper/internal/store"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

type timeoutCall struct {
	user    string
	seconds int
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []string
	timeouts []timeoutCall
	err      error
}

func (f *fakeTransport) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeTransport) TimeoutUser(_ context.Context, user string, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, timeoutCall{user, seconds})
	return f.err
}

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) timeoutCalls() []timeoutCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]timeoutCall(nil), f.timeouts...)
}

type fakeAuditor struct {
	mu      sync.Mutex
	actions []store.ModAction
}

func (f *fakeAuditor) RecordAction(_ context.Context, a store.ModAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
	return nil
}

type fixture struct {
	d         *Dispatcher
	dir       *users.Directory
	ledger    *strikes.Ledger
	router    *commands.Router
	transport *fakeTransport
	auditor   *fakeAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New()
	dir := users.NewDirectory(zerolog.Nop())
	bl := filter.NewBlacklist("foobar")
	classifier := filter.NewClassifier(filter.DefaultConfig(), bl)
	ledger := strikes.NewLedger(strikes.DefaultConfig(), nil, m, zerolog.Nop())
	router := commands.NewRouter(commands.Options{
		Directory: dir,
		Blacklist: bl,
		Pardoner:  ledger,
		Metrics:   m,
	}, zerolog.Nop())
	transport := &fakeTransport{}
	auditor := &fakeAuditor{}
	d := New(Options{
		Directory:  dir,
		Classifier: classifier,
		Ledger:     ledger,
		Router:     router,
		Transport:  transport,
		Auditor:    auditor,
		Metrics:    m,
		Channel:    "general",
	}, zerolog.Nop())
	return &fixture{d: d, dir: dir, ledger: ledger, router: router, transport: transport, auditor: auditor}
}

func (f *fixture) say(user, text string, at time.Time) Result {
	return f.d.Message(Message{User: user, Text: text, Level: commands.LevelNone, At: at})
}

func TestMessage_CleanLineTracksUser(t *testing.T) {
	f := newFixture(t)

	res := f.say("alice", "hello everyone", t0)
	f.d.Wait()

	assert.Equal(t, "none", res.Verdict)
	assert.Empty(t, res.Command)
	assert.True(t, f.dir.Exists("alice"))
	assert.Equal(t, []string{"alice"}, f.dir.Present())
	assert.Empty(t, f.transport.messages())
}

func TestMessage_ThreeStrikesTimeout(t *testing.T) {
	f := newFixture(t)

	res := f.say("troll", "THIS IS LOUD", t0)
	assert.Equal(t, "caps", res.Verdict)
	assert.False(t, res.Escalated)

	res = f.say("troll", "visit spam.com now", t0)
	assert.Equal(t, "link", res.Verdict)

	res = f.say("troll", "you foobar", t0)
	assert.Equal(t, "blacklisted", res.Verdict)
	assert.True(t, res.Escalated)
	f.d.Wait()

	assert.Equal(t, []timeoutCall{{"troll", 900}}, f.transport.timeoutCalls())
	assert.Equal(t, 0, f.ledger.Strikes("troll"))
	require.Len(t, f.auditor.actions, 1)
	assert.Equal(t, store.ActionTimeout, f.auditor.actions[0].Action)
	assert.Equal(t, "troll", f.auditor.actions[0].User)
}

func TestMessage_PardonAbsorbsOffense(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.ledger.Pardon("alice"))

	f.say("alice", "HELLO THERE", t0)
	assert.Equal(t, 0, f.ledger.Strikes("alice"))
	assert.False(t, f.ledger.Pardoned("alice"))

	f.say("alice", "HELLO AGAIN", t0)
	assert.Equal(t, 1, f.ledger.Strikes("alice"))
}

func TestMessage_CommandResponseSent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Table().Add(commands.Definition{Name: "discord", Content: "JOIN US AT DISCORD.GG/XYZ"}))

	res := f.say("alice", "!discord", t0)
	f.d.Wait()

	assert.Equal(t, "discord", res.Command)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Verdict, "matched commands skip the filter")
	assert.Equal(t, []string{"JOIN US AT DISCORD.GG/XYZ"}, f.transport.messages())
	assert.Equal(t, 0, f.ledger.Strikes("alice"))
}

func TestMessage_UnknownCommandIsClassified(t *testing.T) {
	f := newFixture(t)

	res := f.say("alice", "!WHATEVER MAN", t0)
	f.d.Wait()

	assert.Empty(t, res.Command)
	assert.Equal(t, "caps", res.Verdict)
	assert.Equal(t, 1, f.ledger.Strikes("alice"))
	assert.Empty(t, f.transport.messages())
}

func TestMessage_DenialNotifiesUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Table().Add(commands.Definition{Name: "secret", Content: "shh", Level: commands.LevelMod}))

	res := f.say("alice", "!secret", t0)
	f.d.Wait()

	assert.ErrorIs(t, res.Err, cerrors.ErrInsufficientPermission)
	assert.Equal(t, []string{"@alice you are not allowed to use !secret."}, f.transport.messages())
}

func TestMessage_CooldownDenial(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Table().Add(commands.Definition{Name: "hi", Content: "hey", CooldownSeconds: 30}))

	f.say("alice", "!hi", t0)
	res := f.say("bob", "!hi", t0.Add(10*time.Second))
	f.d.Wait()

	assert.ErrorIs(t, res.Err, cerrors.ErrOnCooldown)
	assert.ElementsMatch(t, []string{"hey", "@bob !hi is on cooldown."}, f.transport.messages())
}

func TestMessage_BuiltinErrorShown(t *testing.T) {
	f := newFixture(t)

	res := f.d.Message(Message{User: "mod", Text: "!delcom ghost", Level: commands.LevelMod, At: t0})
	f.d.Wait()

	assert.Equal(t, "delcom", res.Command)
	assert.ErrorIs(t, res.Err, cerrors.ErrNoSuchCommand)
	require.Len(t, f.transport.messages(), 1)
	assert.Contains(t, f.transport.messages()[0], "@mod")
	assert.Empty(t, res.Verdict)
}

func TestInvoke_UnknownReported(t *testing.T) {
	f := newFixture(t)

	res := f.d.Invoke("alice", commands.LevelNone, "nope", t0)
	assert.ErrorIs(t, res.Err, cerrors.ErrNoSuchCommand)
	assert.Empty(t, res.Verdict)
}

func TestJoinPart(t *testing.T) {
	f := newFixture(t)

	f.d.Join("alice", t0)
	f.d.Part("alice", t0.Add(15*time.Second))

	d, err := f.dir.ViewDuration("alice", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)
}

func TestTransportFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("slack down")
	require.NoError(t, f.router.Table().Add(commands.Definition{Name: "hi", Content: "hey"}))

	res := f.say("alice", "!hi", t0)
	f.d.Wait()
	assert.NoError(t, res.Err)
}

func TestRun_ProcessesEventsInOrder(t *testing.T) {
	f := newFixture(t)
	events := make(chan Event, 4)
	events <- NewEvent(EventJoin, "alice", "", commands.LevelNone, t0)
	events <- NewEvent(EventMessage, "alice", "hi", commands.LevelNone, t0.Add(time.Second))
	events <- NewEvent(EventPart, "alice", "", commands.LevelNone, t0.Add(10*time.Second))
	close(events)

	require.NoError(t, f.d.Run(context.Background(), events))

	info, err := f.dir.Info("alice", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, info.Present)
	d, err := f.dir.ViewDuration("alice", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestRun_RecoversFromPanics(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Table().Add(commands.Definition{Name: "hi", Content: "hey"}))

	events := make(chan Event, 3)
	events <- Event{ID: "bad", Kind: EventMessage, User: "alice", Text: "hi", At: t0}
	events <- Event{ID: "weird", Kind: EventKind("reaction"), User: "alice", At: t0}
	events <- NewEvent(EventJoin, "bob", "", commands.LevelNone, t0)
	close(events)

	// A nil classifier makes message handling panic.
	f.d.classifier = nil
	require.NotPanics(t, func() {
		require.NoError(t, f.d.Run(context.Background(), events))
	})
	assert.True(t, f.dir.Exists("bob"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event)

	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx, events) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestClose_DropsLateOutboundCalls(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.d.SendText(context.Background(), "late")
		}()
	}
	f.d.Close()
	wg.Wait()
	sent := len(f.transport.messages())

	require.NoError(t, f.d.SendText(context.Background(), "after close"))
	f.d.timeout("troll", 60)
	f.d.Wait()

	assert.Len(t, f.transport.messages(), sent)
	assert.NotContains(t, f.transport.messages(), "after close")
	assert.Empty(t, f.transport.timeoutCalls())
}

func TestRun_ClosesOnExit(t *testing.T) {
	f := newFixture(t)
	events := make(chan Event)
	close(events)
	require.NoError(t, f.d.Run(context.Background(), events))

	_ = f.d.SendText(context.Background(), "too late")
	f.d.Wait()
	assert.Empty(t, f.transport.messages())
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventMessage, "alice", "hi", commands.LevelMod, time.Time{})
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
	assert.NotEqual(t, ev.ID, NewEvent(EventMessage, "alice", "hi", commands.LevelMod, t0).ID)
}
