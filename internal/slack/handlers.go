package slack

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/chatkeeper/internal/dispatcher"
)

// HandlerConfig configures event translation.
type HandlerConfig struct {
	Channel string
	Prefix  string
	Roles   Roles
	// CommandBurst is how many commands one user may send per
	// CommandWindow. Zero disables the flood guard.
	CommandBurst  int
	CommandWindow time.Duration
}

// Handler translates Socket Mode events for the moderated channel into
// dispatcher events.
type Handler struct {
	socket     *socketmode.Client
	names      *NameCache
	middleware *Middleware
	events     chan<- dispatcher.Event
	channel    string
	prefix     string
	roles      Roles
	logger     zerolog.Logger
}

// NewHandler creates a new event handler that queues onto events.
func NewHandler(cfg HandlerConfig, events chan<- dispatcher.Event, logger zerolog.Logger) *Handler {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = dispatcher.DefaultPrefix
	}
	window := cfg.CommandWindow
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Handler{
		names:      NewNameCache(nil, 0, logger),
		middleware: NewMiddleware(logger, cfg.CommandBurst, window),
		events:     events,
		channel:    cfg.Channel,
		prefix:     prefix,
		roles:      cfg.Roles,
		logger:     logger.With().Str("component", "slack.handler").Logger(),
	}
}

// SetSocket sets the Socket Mode client for acknowledging events.
func (h *Handler) SetSocket(s *socketmode.Client) {
	h.socket = s
}

// Names returns the handler's user name cache.
func (h *Handler) Names() *NameCache {
	return h.names
}

// HandleEvent routes Socket Mode events to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		h.handleEventsAPI(ctx, evt)
	case socketmode.EventTypeConnected:
		h.logger.Info().Msg("connected to Slack")
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

// handleEventsAPI processes Events API payloads.
func (h *Handler) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	// Slack requires an ack within 3 seconds.
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}

	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast events_api data")
		return
	}

	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		h.handleCallbackEvent(ctx, eventsAPIEvent.InnerEvent)
	}
}

func (h *Handler) handleCallbackEvent(ctx context.Context, innerEvent slackevents.EventsAPIInnerEvent) {
	switch ev := innerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		if ev.Channel != h.channel {
			return
		}
		h.emit(ctx, dispatcher.EventJoin, ev.User, "", time.Now())

	case *slackevents.MemberLeftChannelEvent:
		if ev.Channel != h.channel {
			return
		}
		h.emit(ctx, dispatcher.EventPart, ev.User, "", time.Now())

	case *slackevents.MessageEvent:
		// Skip bot messages and edits/deletes.
		if ev.Channel != h.channel || ev.User == "" || ev.BotID != "" || ev.SubType != "" {
			return
		}
		at := parseTimestamp(ev.TimeStamp)
		if strings.HasPrefix(ev.Text, h.prefix) && !h.middleware.CheckRateLimit(ev.User, at) {
			return
		}
		h.emit(ctx, dispatcher.EventMessage, ev.User, ev.Text, at)

	default:
		h.logger.Debug().
			Str("inner_type", innerEvent.Type).
			Msg("unhandled callback event type")
	}
}

func (h *Handler) emit(ctx context.Context, kind dispatcher.EventKind, userID, text string, at time.Time) {
	name := h.names.Resolve(ctx, userID)
	ev := dispatcher.NewEvent(kind, name, text, h.roles.LevelFor(userID), at)
	select {
	case h.events <- ev:
	case <-ctx.Done():
		h.logger.Warn().Str("kind", string(kind)).Str("user", name).Msg("event dropped on shutdown")
	}
}

// parseTimestamp converts a Slack "seconds.micros" timestamp.
func parseTimestamp(ts string) time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now()
	}
	var micros int64
	if frac != "" {
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, micros*int64(time.Microsecond)).UTC()
}
