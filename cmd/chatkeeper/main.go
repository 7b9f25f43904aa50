package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/chatkeeper/internal/api"
	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/config"
	"github.com/p-blackswan/chatkeeper/internal/dispatcher"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/health"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
	"github.com/p-blackswan/chatkeeper/internal/scheduler"
	slackpkg "github.com/p-blackswan/chatkeeper/internal/slack"
	"github.com/p-blackswan/chatkeeper/internal/store"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

const eventQueueSize = 1024

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("api_addr", cfg.APIListenAddr).
		Str("db", cfg.DBPath).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting chatkeeper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Moderation core
	dir := users.NewDirectory(logger)
	blacklist := filter.NewBlacklist()
	classifier := filter.NewClassifier(cfg.FilterConfig(), blacklist)
	ledger := strikes.NewLedger(cfg.StrikeConfig(), nil, m, logger)
	router := commands.NewRouter(commands.Options{
		Directory: dir,
		Blacklist: blacklist,
		Pardoner:  ledger,
		Metrics:   m,
	}, logger)

	state := botState{dir: dir, router: router, blacklist: blacklist}
	if err := state.restore(ctx, st, time.Now(), logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore state")
	}
	if cfg.RulesFile != "" {
		rules, err := config.LoadRules(cfg.RulesFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load rules")
		}
		if err := state.seed(rules, time.Now(), logger); err != nil {
			logger.Warn().Err(err).Msg("some rules were rejected")
		}
	}

	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(st.Ping))
	checker.Register("runtime", health.RuntimeCheck(health.DefaultRuntimeLimits()))

	d := dispatcher.New(dispatcher.Options{
		Directory:  dir,
		Classifier: classifier,
		Ledger:     ledger,
		Router:     router,
		Transport:  logTransport{logger: logger.With().Str("component", "chat_log").Logger()},
		Auditor:    st,
		Metrics:    m,
		Prefix:     cfg.CommandPrefix,
		Channel:    cfg.SlackChannel,
	}, logger)

	events := make(chan dispatcher.Event, eventQueueSize)

	// WaitGroup for background loops
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Run(ctx, events); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("dispatcher stopped")
		}
	}()

	// Slack Socket Mode (optional, only if tokens provided)
	if cfg.SlackEnabled() {
		handler := slackpkg.NewHandler(slackpkg.HandlerConfig{
			Channel: cfg.SlackChannel,
			Prefix:  cfg.CommandPrefix,
			Roles: slackpkg.Roles{
				Broadcaster: cfg.BroadcasterID,
				Moderators:  cfg.ModeratorList(),
				Subscribers: cfg.SubscriberList(),
			},
			CommandBurst:  5,
			CommandWindow: 10 * time.Second,
		}, events, logger)
		slackApp, slackErr := slackpkg.NewApp(slackpkg.AppConfig{
			BotToken:   cfg.SlackBotToken,
			AppToken:   cfg.SlackAppToken,
			Channel:    cfg.SlackChannel,
			ModChannel: cfg.SlackModChannel,
		}, handler, logger)
		if slackErr != nil {
			logger.Error().Err(slackErr).Msg("failed to init Slack app (non-fatal)")
		} else {
			d.SetTransport(slackApp)
			checker.Register("slack", func(ctx context.Context) health.Status {
				if err := slackApp.Ping(ctx); err != nil {
					return health.StatusDegraded
				}
				return health.StatusOK
			})

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := slackApp.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("Slack Socket Mode error")
				}
			}()
		}
	} else {
		logger.Info().Msg("Slack not configured, chat output goes to the log")
	}

	// Periodic work
	sched := scheduler.New(cfg.SchedulerTick, m, logger)
	sched.Add(scheduler.TimersTask(router.Timers(), d))
	sched.Add(scheduler.PresenceTask(dir, m))
	if cfg.PayoutAmount > 0 {
		sched.Add(scheduler.PayoutTask(dir, cfg.PayoutAmount, cfg.PayoutInterval))
	}
	sched.Add(scheduler.Task{
		Name:     "snapshot",
		Interval: cfg.SnapshotInterval,
		Run: func(ctx context.Context, now time.Time) error {
			return state.save(ctx, st, now)
		},
	})
	sched.Add(scheduler.Task{
		Name:     "retention",
		Interval: time.Hour,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := st.RunRetention(ctx, now, cfg.ModLogRetention)
			return err
		},
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// Management API
	roles := map[string]api.Role{}
	if cfg.APIOperatorKey != "" {
		roles[cfg.APIOperatorKey] = api.RoleOperator
	}
	if cfg.APIReadOnlyKey != "" {
		roles[cfg.APIReadOnlyKey] = api.RoleReadOnly
	}
	apiServer := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.APIListenAddr,
		AuthConfig: api.AuthConfig{
			Mode:   cfg.APIAuthMode(),
			APIKey: cfg.APIKey,
			Roles:  roles,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.APIRateLimitRPS,
			Burst: cfg.APIRateLimitBurst,
		},
		CORSOrigins: cfg.APICORSOrigins,
	}, api.Deps{
		Directory:  dir,
		Router:     router,
		Classifier: classifier,
		Ledger:     ledger,
		Dispatcher: d,
		Store:      st,
		Checker:    checker,
		Metrics:    m,
	}, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := apiServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	// Final snapshot so view time of open sessions is not lost.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := state.save(saveCtx, st, time.Now()); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	}

	logger.Info().Msg("chatkeeper stopped")
}

// logTransport writes chat output to the log when no chat service is
// connected.
type logTransport struct {
	logger zerolog.Logger
}

func (t logTransport) SendText(_ context.Context, text string) error {
	t.logger.Info().Str("text", text).Msg("chat output")
	return nil
}

func (t logTransport) TimeoutUser(_ context.Context, user string, seconds int) error {
	t.logger.Warn().Str("user", user).Int("seconds", seconds).Msg("timeout requested")
	return nil
}
