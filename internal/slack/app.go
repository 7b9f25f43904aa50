// Package slack connects the moderation bot to a Slack channel over Socket
// Mode. Channel members are viewers; configured user IDs carry elevated
// levels.
package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/chatkeeper/internal/retry"
)

// BotAPI abstracts the Slack API client for testing.
type BotAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// AppConfig holds the Slack connection settings.
type AppConfig struct {
	BotToken string
	AppToken string
	// Channel is the moderated channel ID.
	Channel string
	// ModChannel receives timeout notices. Defaults to Channel.
	ModChannel string
}

// App is the Slack bot application using Socket Mode. It is also the
// dispatcher's outbound transport.
type App struct {
	api        BotAPI
	socket     *socketmode.Client
	handler    *Handler
	channel    string
	modChannel string
	retry      retry.Config
	logger     zerolog.Logger
}

// NewApp creates a new Slack bot app.
func NewApp(cfg AppConfig, handler *Handler, logger zerolog.Logger) (*App, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack bot and app tokens are required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}

	api := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socket := socketmode.New(api)
	handler.SetSocket(socket)
	handler.names.api = api

	return newApp(cfg, api, socket, handler, logger), nil
}

func newApp(cfg AppConfig, api BotAPI, socket *socketmode.Client, handler *Handler, logger zerolog.Logger) *App {
	modChannel := cfg.ModChannel
	if modChannel == "" {
		modChannel = cfg.Channel
	}
	return &App{
		api:        api,
		socket:     socket,
		handler:    handler,
		channel:    cfg.Channel,
		modChannel: modChannel,
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "slack").Logger(),
	}
}

// Run starts the Socket Mode event loop. Blocks until context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Str("channel", a.channel).Msg("starting Slack Socket Mode connection")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-a.socket.Events:
				if !ok {
					return
				}
				a.handler.HandleEvent(ctx, evt)
			}
		}
	}()

	if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode error: %w", err)
	}
	a.logger.Info().Msg("Slack Socket Mode stopped")
	return nil
}

// SendText posts a chat line to the moderated channel. Rate limited and
// 5xx responses are retried with backoff.
func (a *App) SendText(ctx context.Context, text string) error {
	err := retry.Do(ctx, a.retry, func(ctx context.Context) error {
		_, _, err := a.api.PostMessageContext(ctx, a.channel,
			slack.MsgOptionText(text, false),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	return nil
}

// TimeoutUser posts a timeout notice for user to the moderator channel.
// Slack has no per-channel mute, so moderators act on the notice.
func (a *App) TimeoutUser(ctx context.Context, user string, seconds int) error {
	id, _ := a.handler.names.ID(user)
	d := time.Duration(seconds) * time.Second
	err := retry.Do(ctx, a.retry, func(ctx context.Context) error {
		_, _, err := a.api.PostMessageContext(ctx, a.modChannel,
			slack.MsgOptionText(TimeoutSummary(user, d), false),
			slack.MsgOptionBlocks(TimeoutBlocks(user, id, a.channel, d)...),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("posting timeout notice: %w", err)
	}
	a.logger.Info().Str("user", user).Int("seconds", seconds).Msg("timeout notice posted")
	return nil
}

// Ping verifies the bot token. Used as a readiness check.
func (a *App) Ping(ctx context.Context) error {
	if _, err := a.api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	return nil
}
