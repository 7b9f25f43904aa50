package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

const (
	defaultTopN = 5
	maxTopN     = 10
)

type handlerFunc func(r *Router, c call) (string, error)

// call is a builtin invocation with its tokenized arguments.
type call struct {
	parsed
	inv Invocation
}

// sub returns the lower-cased first argument, or "".
func (c call) sub() string {
	if len(c.Args) == 0 {
		return ""
	}
	return strings.ToLower(c.Args[0])
}

// restAfter returns the raw text following the first n arguments.
func (c call) restAfter(n int) string {
	rest := c.Rest
	for i := 0; i < n && rest != ""; i++ {
		rest = strings.TrimSpace(rest)
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimSpace(rest)
}

func (c call) require(level Level) error {
	if c.inv.Level < level {
		return cerrors.ErrInsufficientPermission
	}
	return nil
}

type builtin struct {
	entry entry
	run   handlerFunc
}

func usage(text string) error {
	return fmt.Errorf("%w: usage: !%s", cerrors.ErrInvalidArgument, text)
}

func (r *Router) registerBuiltins() map[string]*builtin {
	reg := map[string]*builtin{}
	add := func(name string, level Level, fn handlerFunc) {
		reg[name] = &builtin{entry: entry{def: Definition{Name: name, Level: level}}, run: fn}
	}
	add("addcom", LevelMod, cmdAddCom)
	add("editcom", LevelMod, cmdEditCom)
	add("delcom", LevelMod, cmdDelCom)
	add("blacklist", LevelMod, cmdBlacklist)
	add("raffle", LevelNone, cmdRaffle)
	add("auction", LevelNone, cmdAuction)
	add("poll", LevelNone, cmdPoll)
	add("vote", LevelNone, cmdVote)
	add("timers", LevelMod, cmdTimers)
	add("pardon", LevelMod, cmdPardon)
	add("points", LevelNone, cmdPoints)
	add("watchtime", LevelNone, cmdWatchtime)
	add("rank", LevelNone, cmdRank)
	add("top", LevelNone, cmdTop)
	return reg
}

func cmdAddCom(r *Router, c call) (string, error) {
	const help = "addcom <name> [--level L] [--cooldown S] [--cost P] <response>"
	if len(c.Args) < 2 {
		return "", usage(help)
	}
	flags, err := parseDefinitionArgs(c.Args[1:])
	if err != nil {
		return "", err
	}
	if flags.content == "" {
		return "", usage(help)
	}
	def := flags.patch.apply(Definition{Name: c.Args[0], Content: flags.content})
	if err := r.table.Add(def); err != nil {
		return "", err
	}
	return fmt.Sprintf("Command !%s added.", NormalizeName(c.Args[0])), nil
}

func cmdEditCom(r *Router, c call) (string, error) {
	const help = "editcom <name> [--level L] [--cooldown S] [--cost P] [response]"
	if len(c.Args) < 2 {
		return "", usage(help)
	}
	flags, err := parseDefinitionArgs(c.Args[1:])
	if err != nil {
		return "", err
	}
	patch := flags.patch
	if flags.content != "" {
		content := flags.content
		patch.Content = &content
	}
	if patch == (Patch{}) {
		return "", usage(help)
	}
	if err := r.table.Edit(c.Args[0], patch); err != nil {
		return "", err
	}
	return fmt.Sprintf("Command !%s updated.", NormalizeName(c.Args[0])), nil
}

func cmdDelCom(r *Router, c call) (string, error) {
	if len(c.Args) < 1 {
		return "", usage("delcom <name>")
	}
	if err := r.table.Delete(c.Args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Command !%s deleted.", NormalizeName(c.Args[0])), nil
}

func cmdBlacklist(r *Router, c call) (string, error) {
	if r.black == nil {
		return "The blacklist is not available.", nil
	}
	switch c.sub() {
	case "add":
		if len(c.Args) != 2 {
			return "", usage("blacklist add <word>")
		}
		if err := r.black.Add(c.Args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("%q added to the blacklist.", c.Args[1]), nil
	case "del", "delete", "remove":
		if len(c.Args) != 2 {
			return "", usage("blacklist del <word>")
		}
		if !r.black.Remove(c.Args[1]) {
			return fmt.Sprintf("%q is not blacklisted.", c.Args[1]), nil
		}
		return fmt.Sprintf("%q removed from the blacklist.", c.Args[1]), nil
	case "", "list":
		words := r.black.Words()
		if len(words) == 0 {
			return "The blacklist is empty.", nil
		}
		return "Blacklisted: " + strings.Join(words, ", "), nil
	}
	return "", usage("blacklist add|del|list [word]")
}

func cmdRaffle(r *Router, c call) (string, error) {
	switch c.sub() {
	case "", "join", "enter":
		added, err := r.raffle.Enter(c.inv.User)
		if err != nil {
			return "", err
		}
		if !added {
			return fmt.Sprintf("%s, you are already in the raffle.", c.inv.User), nil
		}
		return fmt.Sprintf("%s joined the raffle.", c.inv.User), nil
	case "open", "start":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		if err := r.raffle.Open(); err != nil {
			return "", err
		}
		return "A raffle is open! Type !raffle to enter.", nil
	case "close":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		n, err := r.raffle.Close()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("The raffle is closed with %d entrants.", n), nil
	case "draw":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		winner, err := r.raffle.Draw()
		if errors.Is(err, errRaffleNoEntries) {
			return "Nobody entered the raffle.", nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("The raffle winner is %s!", winner), nil
	case "status":
		if !r.raffle.IsOpen() {
			return "No raffle is open.", nil
		}
		return fmt.Sprintf("The raffle is open with %d entrants.", r.raffle.Entrants()), nil
	}
	return "", usage("raffle [join|open|close|draw|status]")
}

func cmdAuction(r *Router, c call) (string, error) {
	switch c.sub() {
	case "":
		item, bidder, amount, open := r.auction.Leader()
		if !open {
			return "No auction is running.", nil
		}
		if bidder == "" {
			return fmt.Sprintf("Auction for %s has no bids yet.", item), nil
		}
		return fmt.Sprintf("Auction for %s: %s leads with %d.", item, bidder, amount), nil
	case "open", "start":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		item := c.restAfter(1)
		if err := r.auction.Open(item); err != nil {
			return "", err
		}
		return fmt.Sprintf("Auction open for %s! Bid with !auction bid <points>.", item), nil
	case "bid":
		if len(c.Args) != 2 {
			return "", usage("auction bid <points>")
		}
		amount, err := strconv.ParseInt(c.Args[1], 10, 64)
		if err != nil {
			return "", usage("auction bid <points>")
		}
		if err := r.auction.Bid(c.inv.User, amount, r.balance(c.inv.User)); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s leads with %d.", c.inv.User, amount), nil
	case "close":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		res, err := r.auction.Close()
		if err != nil {
			return "", err
		}
		if res.Winner == "" {
			return fmt.Sprintf("Auction for %s closed with no bids.", res.Item), nil
		}
		if r.dir == nil {
			return fmt.Sprintf("Auction for %s closed without a sale.", res.Item), nil
		}
		if _, err := r.dir.Spend(res.Winner, res.Amount); err != nil {
			r.logger.Warn().Err(err).Str("user", res.Winner).Int64("bid", res.Amount).Msg("auction winner could not pay")
			return fmt.Sprintf("%s can no longer cover %d points. %s goes unsold.", res.Winner, res.Amount, res.Item), nil
		}
		return fmt.Sprintf("%s won %s for %d points!", res.Winner, res.Item, res.Amount), nil
	}
	return "", usage("auction [open <item>|bid <points>|close]")
}

func cmdPoll(r *Router, c call) (string, error) {
	switch c.sub() {
	case "", "results":
		res, ok := r.poll.Results()
		if !ok {
			return "No poll is running.", nil
		}
		return res.String(), nil
	case "title", "new":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		if err := r.poll.Draft(c.restAfter(1)); err != nil {
			return "", err
		}
		return "Poll drafted. Add options with !poll option <text>.", nil
	case "option", "add":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		n, err := r.poll.AddOption(c.restAfter(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Option %d added.", n), nil
	case "open", "start":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		if err := r.poll.Open(); err != nil {
			return "", err
		}
		res, _ := r.poll.Results()
		return "Poll open! Vote with !vote <number>. " + res.String(), nil
	case "close", "end":
		if err := c.require(LevelMod); err != nil {
			return "", err
		}
		res, err := r.poll.Close()
		if err != nil {
			return "", err
		}
		return "Poll closed. " + res.String(), nil
	}
	return "", usage("poll [title <text>|option <text>|open|close|results]")
}

func cmdVote(r *Router, c call) (string, error) {
	if len(c.Args) != 1 {
		return "", usage("vote <number>")
	}
	n, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return "", usage("vote <number>")
	}
	if err := r.poll.Vote(c.inv.User, n); err != nil {
		return "", err
	}
	return "", nil
}

func cmdTimers(r *Router, c call) (string, error) {
	switch c.sub() {
	case "", "list":
		timers := r.timers.List()
		if len(timers) == 0 {
			return "No timers.", nil
		}
		parts := make([]string, 0, len(timers))
		for _, t := range timers {
			parts = append(parts, fmt.Sprintf("%s (every %s)", t.Name, formatDuration(t.Interval)))
		}
		return "Timers: " + strings.Join(parts, ", "), nil
	case "add", "set":
		const help = "timers add <name> <minutes> <message>"
		if len(c.Args) < 4 {
			return "", usage(help)
		}
		minutes, err := strconv.Atoi(c.Args[2])
		if err != nil {
			return "", usage(help)
		}
		if err := r.timers.Set(c.Args[1], time.Duration(minutes)*time.Minute, c.restAfter(3), c.inv.At); err != nil {
			return "", err
		}
		return fmt.Sprintf("Timer %s set.", NormalizeName(c.Args[1])), nil
	case "del", "delete", "remove":
		if len(c.Args) != 2 {
			return "", usage("timers del <name>")
		}
		if !r.timers.Remove(c.Args[1]) {
			return fmt.Sprintf("No timer named %s.", c.Args[1]), nil
		}
		return fmt.Sprintf("Timer %s removed.", NormalizeName(c.Args[1])), nil
	}
	return "", usage("timers [add|del|list]")
}

func cmdPardon(r *Router, c call) (string, error) {
	if len(c.Args) != 1 {
		return "", usage("pardon <user>")
	}
	user := c.target()
	if r.pardoner == nil || !r.pardoner.Pardon(user) {
		return "Pardons are disabled.", nil
	}
	return fmt.Sprintf("%s is pardoned for their next offense.", user), nil
}

// target returns the user named in the first argument, or the caller.
func (c call) target() string {
	if len(c.Args) > 0 {
		return strings.TrimPrefix(c.Args[0], "@")
	}
	return c.inv.User
}

func (r *Router) balance(user string) int64 {
	if r.dir == nil {
		return 0
	}
	bal, err := r.dir.Currency(user)
	if err != nil {
		return 0
	}
	return bal
}

func noData(user string) string {
	return fmt.Sprintf("No data for %s.", user)
}

func cmdPoints(r *Router, c call) (string, error) {
	user := c.target()
	if r.dir == nil {
		return noData(user), nil
	}
	bal, err := r.dir.Currency(user)
	if errors.Is(err, cerrors.ErrNoSuchUser) {
		return noData(user), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has %d points.", user, bal), nil
}

func cmdWatchtime(r *Router, c call) (string, error) {
	user := c.target()
	if r.dir == nil {
		return noData(user), nil
	}
	d, err := r.dir.ViewDuration(user, c.inv.At)
	if errors.Is(err, cerrors.ErrNoSuchUser) {
		return noData(user), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has watched for %s.", user, formatDuration(d)), nil
}

func cmdRank(r *Router, c call) (string, error) {
	metric, err := users.ParseMetric(c.sub())
	if err != nil {
		return "", err
	}
	if r.dir == nil {
		return noData(c.inv.User), nil
	}
	rank, err := r.dir.Rank(c.inv.User, metric, c.inv.At)
	if errors.Is(err, cerrors.ErrNoSuchUser) {
		return noData(c.inv.User), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s is ranked #%d by %s.", c.inv.User, rank, metric), nil
}

func cmdTop(r *Router, c call) (string, error) {
	n := defaultTopN
	metricName := ""
	for _, arg := range c.Args {
		if v, err := strconv.Atoi(arg); err == nil {
			n = v
			continue
		}
		metricName = arg
	}
	if n < 1 {
		n = defaultTopN
	}
	if n > maxTopN {
		n = maxTopN
	}
	metric, err := users.ParseMetric(metricName)
	if err != nil {
		return "", err
	}
	if r.dir == nil {
		return "Nobody is ranked yet.", nil
	}
	names := r.dir.Top(n, metric, c.inv.At)
	if len(names) == 0 {
		return "Nobody is ranked yet.", nil
	}
	parts := make([]string, 0, len(names))
	for i, name := range names {
		parts = append(parts, fmt.Sprintf("%d. %s (%s)", i+1, name, r.metricValue(name, metric, c.inv.At)))
	}
	return fmt.Sprintf("Top %d by %s: %s", len(names), metric, strings.Join(parts, ", ")), nil
}

func (r *Router) metricValue(user string, metric users.Metric, now time.Time) string {
	if metric == users.MetricViewTime {
		d, err := r.dir.ViewDuration(user, now)
		if err != nil {
			return "-"
		}
		return formatDuration(d)
	}
	bal, err := r.dir.Currency(user)
	if err != nil {
		return "-"
	}
	return strconv.FormatInt(bal, 10)
}
