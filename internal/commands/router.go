package commands

import (
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

// Directory is the view of the user directory the router needs.
type Directory interface {
	Currency(user string) (int64, error)
	AdjustCurrency(user string, delta int64) (int64, error)
	Spend(user string, amount int64) (int64, error)
	ViewDuration(user string, now time.Time) (time.Duration, error)
	Rank(user string, metric users.Metric, now time.Time) (int, error)
	Top(n int, metric users.Metric, now time.Time) []string
}

// Blacklist is the mutable word list behind the blacklist builtin.
type Blacklist interface {
	Add(word string) error
	Remove(word string) bool
	Words() []string
}

// Pardoner grants one-shot strike exemptions.
type Pardoner interface {
	Pardon(user string) bool
}

// Invocation is one attempt to run a command.
type Invocation struct {
	User    string
	Level   Level
	Line    string
	Channel string
	At      time.Time
}

// Options wires the router to the rest of the bot. Nil collaborators
// disable the builtins that depend on them.
type Options struct {
	Directory Directory
	Blacklist Blacklist
	Pardoner  Pardoner
	Metrics   *metrics.Metrics
	Rand      *rand.Rand
}

// Router resolves and runs commands. Custom commands are looked up before
// builtins, but custom names may never shadow a builtin.
type Router struct {
	table    *Table
	builtins map[string]*builtin
	dir      Directory
	black    Blacklist
	pardoner Pardoner
	raffle   *Raffle
	auction  *Auction
	poll     *Poll
	timers   *Timers
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRouter creates a router with the builtin command set registered.
func NewRouter(opts Options, logger zerolog.Logger) *Router {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r := &Router{
		dir:      opts.Directory,
		black:    opts.Blacklist,
		pardoner: opts.Pardoner,
		raffle:   NewRaffle(rng),
		auction:  NewAuction(),
		poll:     NewPoll(),
		timers:   NewTimers(),
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "command-router").Logger(),
	}
	r.builtins = r.registerBuiltins()
	r.table = NewTable(r.IsBuiltin, logger)
	return r
}

// Table returns the custom command table.
func (r *Router) Table() *Table { return r.table }

// Timers returns the timer set driven by the scheduler.
func (r *Router) Timers() *Timers { return r.timers }

// IsBuiltin reports whether name is a builtin command.
func (r *Router) IsBuiltin(name string) bool {
	_, ok := r.builtins[NormalizeName(name)]
	return ok
}

// Builtins returns the builtin definitions sorted by name.
func (r *Router) Builtins() []Definition {
	out := make([]Definition, 0, len(r.builtins))
	for _, b := range r.builtins {
		out = append(out, b.entry.snapshot())
	}
	sortDefinitions(out)
	return out
}

// Invoke runs the command named by the first token of inv.Line and returns
// its response text. Unknown names return ErrNoSuchCommand; policy
// denials are checked in order cooldown, permission, point cost.
func (r *Router) Invoke(inv Invocation) (string, error) {
	p := tokenize(inv.Line)
	if p.Name == "" {
		return "", cerrors.NewCommandError("", cerrors.ErrNoSuchCommand)
	}

	var (
		e  *entry
		fn handlerFunc
	)
	if custom := r.table.lookup(p.Name); custom != nil {
		e = custom
	} else if b, ok := r.builtins[p.Name]; ok {
		e = &b.entry
		fn = b.run
	} else {
		return "", cerrors.NewCommandError(p.Name, cerrors.ErrNoSuchCommand)
	}

	text, err := r.execute(e, fn, inv, p)
	r.metrics.RecordCommand(p.Name, resultLabel(err))
	if err != nil {
		r.logger.Debug().Err(err).Str("command", p.Name).Str("user", inv.User).Msg("command rejected")
		return "", cerrors.NewCommandError(p.Name, err)
	}
	r.logger.Debug().Str("command", p.Name).Str("user", inv.User).Msg("command invoked")
	return text, nil
}

func (r *Router) execute(e *entry, fn handlerFunc, inv Invocation, p parsed) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := e.def
	if def.onCooldown(inv.At) {
		return "", cerrors.ErrOnCooldown
	}
	if inv.Level < def.Level {
		return "", cerrors.ErrInsufficientPermission
	}
	if def.PointCost > 0 {
		if r.dir == nil {
			return "", cerrors.ErrInsufficientPoints
		}
		balance, err := r.dir.Currency(inv.User)
		if err != nil || balance < def.PointCost {
			return "", cerrors.ErrInsufficientPoints
		}
	}

	var text string
	if fn != nil {
		out, err := fn(r, call{inv: inv, parsed: p})
		if err != nil {
			return "", err
		}
		text = out
		e.def.UseCount++
	} else {
		e.def.UseCount++
		text = render(def.Content, r.resolver(inv, p, e.def.UseCount))
	}
	e.def.LastUsedAt = inv.At

	if def.PointCost > 0 {
		if _, err := r.dir.AdjustCurrency(inv.User, -def.PointCost); err != nil {
			r.logger.Warn().Err(err).Str("user", inv.User).Msg("failed to charge command cost")
		}
	}
	return text, nil
}

func (r *Router) resolver(inv Invocation, p parsed, count int) resolver {
	return func(name, arg string) (string, bool) {
		switch name {
		case "user":
			return inv.User, true
		case "touser":
			if len(p.Args) > 0 {
				return p.Args[0], true
			}
			return inv.User, true
		case "channel":
			return inv.Channel, true
		case "count":
			return strconv.Itoa(count), true
		case "args":
			return p.Rest, true
		case "arg":
			return argAt(p.Args, arg)
		case "points":
			if r.dir == nil {
				return "0", true
			}
			bal, err := r.dir.Currency(inv.User)
			if err != nil {
				return "0", true
			}
			return strconv.FormatInt(bal, 10), true
		case "watchtime":
			if r.dir == nil {
				return formatDuration(0), true
			}
			d, err := r.dir.ViewDuration(inv.User, inv.At)
			if err != nil {
				return formatDuration(0), true
			}
			return formatDuration(d), true
		}
		return "", false
	}
}

// IsUnknownCommand reports whether err means the invoked name matched no
// command. It is false when a builtin failed because some other command it
// referred to does not exist.
func IsUnknownCommand(err error) bool {
	var cmdErr *cerrors.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.Err == cerrors.ErrNoSuchCommand
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, cerrors.ErrOnCooldown):
		return "cooldown"
	case errors.Is(err, cerrors.ErrInsufficientPermission):
		return "permission"
	case errors.Is(err, cerrors.ErrInsufficientPoints):
		return "points"
	default:
		return "error"
	}
}

// formatDuration renders d as hours and minutes, or seconds below a minute.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d/time.Second)) + "s"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h == 0 {
		return strconv.Itoa(m) + "m"
	}
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
