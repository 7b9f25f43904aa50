// Package dispatcher routes inbound chat events to the user directory,
// the command router and the moderation filter, and sends the resulting
// chat output through a transport.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
	"github.com/p-blackswan/chatkeeper/internal/store"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

// DefaultPrefix marks a chat line as a command.
const DefaultPrefix = "!"

const sendTimeout = 10 * time.Second

// Transport delivers output to the chat service.
type Transport interface {
	SendText(ctx context.Context, text string) error
	TimeoutUser(ctx context.Context, user string, seconds int) error
}

// Auditor records moderation actions.
type Auditor interface {
	RecordAction(ctx context.Context, a store.ModAction) error
}

// Options configures a Dispatcher.
type Options struct {
	Directory  *users.Directory
	Classifier *filter.Classifier
	Ledger     *strikes.Ledger
	Router     *commands.Router
	Transport  Transport
	Auditor    Auditor
	Metrics    *metrics.Metrics
	Prefix     string
	Channel    string
}

// Dispatcher is the single entry point for chat events.
type Dispatcher struct {
	dir        *users.Directory
	classifier *filter.Classifier
	ledger     *strikes.Ledger
	router     *commands.Router
	auditor    Auditor
	metrics    *metrics.Metrics
	prefix     string
	channel    string
	logger     zerolog.Logger

	mu        sync.RWMutex
	transport Transport
	closed    bool
	inflight  sync.WaitGroup
}

// New creates a dispatcher and installs itself as the ledger's timeout
// callback.
func New(opts Options, logger zerolog.Logger) *Dispatcher {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	d := &Dispatcher{
		dir:        opts.Directory,
		classifier: opts.Classifier,
		ledger:     opts.Ledger,
		router:     opts.Router,
		auditor:    opts.Auditor,
		metrics:    opts.Metrics,
		prefix:     prefix,
		channel:    opts.Channel,
		transport:  opts.Transport,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
	d.ledger.SetTimeoutFunc(d.timeout)
	return d
}

// SetTransport replaces the outbound transport.
func (d *Dispatcher) SetTransport(t Transport) {
	d.mu.Lock()
	d.transport = t
	d.mu.Unlock()
}

// Join records a user entering the channel.
func (d *Dispatcher) Join(user string, at time.Time) {
	d.dir.Join(user, at)
}

// Part records a user leaving the channel.
func (d *Dispatcher) Part(user string, at time.Time) {
	d.dir.Part(user, at)
}

// Message handles a chat line: commands are routed first, and lines that
// are not known commands go through the filter and strike ledger.
func (d *Dispatcher) Message(msg Message) Result {
	d.dir.Message(msg.User, msg.At)

	if strings.HasPrefix(msg.Text, d.prefix) {
		res, handled := d.command(msg.User, msg.Level, strings.TrimPrefix(msg.Text, d.prefix), msg.At)
		if handled {
			return res
		}
	}

	verdict := d.classifier.Classify(msg.Text)
	d.metrics.RecordMessage(verdict.String())
	res := Result{Verdict: verdict.String()}
	if verdict == filter.VerdictNone {
		return res
	}

	d.logger.Info().
		Str("user", msg.User).
		Str("verdict", verdict.String()).
		Msg("message flagged")
	if d.ledger.Record(msg.User, verdict) == strikes.OutcomeEscalated {
		res.Escalated = true
	}
	return res
}

// Invoke runs a command line without the prefix on behalf of user, outside
// the message flow. Unknown commands are reported, not classified.
func (d *Dispatcher) Invoke(user string, level commands.Level, line string, at time.Time) Result {
	res, handled := d.command(user, level, line, at)
	if !handled {
		res.Err = cerrors.NewCommandError(firstWord(line), cerrors.ErrNoSuchCommand)
	}
	return res
}

// command runs a command and reports whether it matched one.
func (d *Dispatcher) command(user string, level commands.Level, line string, at time.Time) (Result, bool) {
	text, err := d.router.Invoke(commands.Invocation{
		User:    user,
		Level:   level,
		Line:    line,
		Channel: d.channel,
		At:      at,
	})
	if commands.IsUnknownCommand(err) {
		return Result{}, false
	}

	res := Result{Command: commands.NormalizeName(firstWord(line)), Response: text, Err: err}
	switch {
	case err == nil:
		if text != "" {
			d.send(text)
		}
	case cerrors.IsPolicyDenial(err):
		d.send(denialMessage(user, res.Command, err))
	default:
		d.send(fmt.Sprintf("@%s %s", user, userFacing(err)))
	}
	return res, true
}

func (d *Dispatcher) timeout(user string, seconds int) {
	d.mu.RLock()
	t := d.transport
	d.mu.RUnlock()

	d.async("timeout", func(ctx context.Context) error {
		if d.auditor != nil {
			err := d.auditor.RecordAction(ctx, store.ModAction{
				User:   user,
				Action: store.ActionTimeout,
				Reason: fmt.Sprintf("strike threshold reached, %ds", seconds),
				Actor:  "strikes",
			})
			if err != nil {
				d.logger.Warn().Err(err).Str("user", user).Msg("failed to record timeout")
			}
		}
		if t == nil {
			return nil
		}
		return t.TimeoutUser(ctx, user, seconds)
	})
}

func (d *Dispatcher) send(text string) {
	d.mu.RLock()
	t := d.transport
	d.mu.RUnlock()
	if t == nil {
		return
	}
	d.async("send", func(ctx context.Context) error {
		return t.SendText(ctx, text)
	})
}

// SendText posts text through the transport in the background.
func (d *Dispatcher) SendText(_ context.Context, text string) error {
	d.send(text)
	return nil
}

func (d *Dispatcher) async(op string, fn func(ctx context.Context) error) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.logger.Warn().Str("op", op).Msg("dispatcher closed, outbound call dropped")
		return
	}
	d.inflight.Add(1)
	d.mu.RUnlock()

	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.metrics.RecordEventError(op)
			d.logger.Warn().Err(err).Str("op", op).Msg("outbound call failed")
		}
	}()
}

// Wait blocks until outbound calls started so far have finished. New calls
// may still start; use Close at shutdown.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close stops accepting outbound calls and waits for those in flight.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()
}

// Handle processes a single event.
func (d *Dispatcher) Handle(ev Event) {
	switch ev.Kind {
	case EventJoin:
		d.Join(ev.User, ev.At)
	case EventPart:
		d.Part(ev.User, ev.At)
	case EventMessage:
		d.Message(Message{User: ev.User, Text: ev.Text, Level: ev.Level, At: ev.At})
	default:
		d.logger.Warn().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Msg("unknown event kind")
	}
}

// Run handles events in order until ctx is cancelled or events is closed.
// A panic while handling one event is logged and does not stop the loop.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	d.logger.Info().Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("dispatcher shutting down, waiting for outbound calls")
			d.Close()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				d.Close()
				return nil
			}
			d.safeHandle(ev)
		}
	}
}

func (d *Dispatcher) safeHandle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordEventError(string(ev.Kind))
			d.logger.Error().
				Str("event_id", ev.ID).
				Str("kind", string(ev.Kind)).
				Str("user", ev.User).
				Str("panic", fmt.Sprint(r)).
				Msg("event handler panicked")
		}
	}()
	d.Handle(ev)
}

func denialMessage(user, command string, err error) string {
	switch {
	case errors.Is(err, cerrors.ErrOnCooldown):
		return fmt.Sprintf("@%s !%s is on cooldown.", user, command)
	case errors.Is(err, cerrors.ErrInsufficientPermission):
		return fmt.Sprintf("@%s you are not allowed to use !%s.", user, command)
	case errors.Is(err, cerrors.ErrInsufficientPoints):
		return fmt.Sprintf("@%s you do not have enough points for !%s.", user, command)
	}
	return fmt.Sprintf("@%s !%s was refused.", user, command)
}

// userFacing strips the command wrapper and the sentinel prefix from err.
func userFacing(err error) string {
	var cmdErr *cerrors.CommandError
	if errors.As(err, &cmdErr) {
		err = cmdErr.Err
	}
	msg := err.Error()
	for _, sentinel := range []error{cerrors.ErrInvalidArgument, cerrors.ErrInvalidConfiguration} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
