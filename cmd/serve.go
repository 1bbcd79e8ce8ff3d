package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/zjrosen/shopbot/internal/cart"
	"github.com/zjrosen/shopbot/internal/catalog"
	"github.com/zjrosen/shopbot/internal/config"
	"github.com/zjrosen/shopbot/internal/engine"
	"github.com/zjrosen/shopbot/internal/infrastructure/sqlite"
	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/pubsub"
	"github.com/zjrosen/shopbot/internal/session"
	"github.com/zjrosen/shopbot/internal/strapi"
	"github.com/zjrosen/shopbot/internal/telegram"
	"github.com/zjrosen/shopbot/internal/tracing"
)

// shutdownTimeout bounds flushing traces on exit.
const shutdownTimeout = 5 * time.Second

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	Long: `Run the bot with long polling until interrupted.

Each update is handled in its own goroutine. Conversation states are kept in
the configured session store so users resume where they left off after a
restart.

Example:
  shopbot serve
  SHOPBOT_TELEGRAM_TOKEN=123:abc shopbot serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "mirror log lines and state transitions to stderr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := setupLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.NewProvider(ctx, tracingConfig(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.ErrorErr(log.CatTracing, "Trace shutdown failed", err)
		}
	}()

	client, err := newBackendClient(cfg, strapi.WithTracer(provider.Tracer()))
	if err != nil {
		return err
	}

	store, err := openSessionStore(cfg.Session)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.ErrorErr(log.CatDB, "Closing session store failed", err)
		}
	}()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	bot.Debug = cfg.Telegram.Debug
	log.Info(log.CatBot, "Authorized", "bot", bot.Self.UserName)

	deps := engine.Deps{
		Store:     store,
		Catalog:   catalog.New(client, catalogConfig(cfg.Catalog)),
		Cart:      cart.New(client),
		Transport: telegram.NewTransport(bot),
	}
	if provider.Enabled() {
		deps.Tracer = provider.Tracer()
	}
	eng := engine.New(deps, engineConfig(cfg.Engine))
	defer eng.Close()

	if serveDebug {
		go mirrorLogs(ctx)
		go mirrorTransitions(ctx, eng.Subscribe(ctx))
	}

	log.Info(log.CatConfig, "shopbot starting", "version", version, "backend", cfg.Backend.URL, "session", cfg.Session.Driver)
	return telegram.NewPoller(bot, eng, cfg.Telegram.PollTimeout).Run(ctx)
}

func newBackendClient(c config.Config, opts ...strapi.Option) (*strapi.Client, error) {
	client, err := strapi.NewClient(strapi.Config{
		BaseURL:   c.Backend.URL,
		Token:     c.Backend.Token,
		APIPrefix: c.Backend.APIPrefix,
		Timeout:   c.Backend.Timeout,
		PageSize:  c.Catalog.PageSize,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	return client, nil
}

func openSessionStore(s config.SessionConfig) (session.Store, error) {
	if s.Driver == config.SessionDriverMemory {
		log.Warn(log.CatDB, "Using in-memory sessions, states are lost on restart")
		return session.NewMemoryStore(), nil
	}
	db, err := sqlite.NewDB(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return db.SessionStore(), nil
}

func engineConfig(e config.EngineConfig) engine.Config {
	return engine.Config{
		HandlerTimeout:   e.HandlerTimeout,
		SlowThreshold:    e.SlowThreshold,
		SerializePerUser: e.SerializePerUser,
		DedupWindow:      e.DedupWindow,
		Currency:         e.Currency,
	}
}

func catalogConfig(c config.CatalogConfig) catalog.Config {
	return catalog.Config{
		ImageTTL:          c.ImageTTL,
		DisableImageCache: c.DisableImageCache,
	}
}

func tracingConfig(t config.TracingConfig) tracing.Config {
	return tracing.Config{
		Enabled:      t.Enabled,
		Exporter:     t.Exporter,
		FilePath:     t.FilePath,
		OTLPEndpoint: t.OTLPEndpoint,
		SampleRate:   t.SampleRate,
		ServiceName:  t.ServiceName,
	}
}

// mirrorLogs copies log entries to stderr when the logger writes to a file.
func mirrorLogs(ctx context.Context) {
	if cfg.Log.Path == "" {
		return
	}
	entries := log.Subscribe(ctx)
	if entries == nil {
		return
	}
	for ev := range entries {
		fmt.Fprint(os.Stderr, ev.Payload)
	}
}

func mirrorTransitions(ctx context.Context, events <-chan pubsub.Event[engine.Transition]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(os.Stderr, formatTransition(ev))
		}
	}
}

func formatTransition(ev pubsub.Event[engine.Transition]) string {
	t := ev.Payload
	line := fmt.Sprintf("%s user=%s %s -> %s (%s)",
		ev.Type, t.UserID, t.From, t.To, t.Duration.Round(time.Millisecond))
	if t.Err != nil {
		line += " error=" + t.Err.Error()
	}
	return line
}
