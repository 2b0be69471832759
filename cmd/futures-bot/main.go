package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ducminhle1904/crypto-futures-bot/internal/api"
	"github.com/ducminhle1904/crypto-futures-bot/internal/bot"
	"github.com/ducminhle1904/crypto-futures-bot/internal/commands"
	"github.com/ducminhle1904/crypto-futures-bot/internal/config"
	boterrors "github.com/ducminhle1904/crypto-futures-bot/internal/errors"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/adapters"
	"github.com/ducminhle1904/crypto-futures-bot/internal/journal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/logger"
	"github.com/ducminhle1904/crypto-futures-bot/internal/monitoring"
	"github.com/ducminhle1904/crypto-futures-bot/internal/notifications"
	"github.com/ducminhle1904/crypto-futures-bot/internal/recovery"
	"github.com/ducminhle1904/crypto-futures-bot/internal/safety"
	"github.com/ducminhle1904/crypto-futures-bot/internal/state"
)

type options struct {
	configFile    string
	envFile       string
	dryRun        bool
	exportJournal string
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Configuration file (e.g., futures_bybit.json)")
	flag.StringVar(&opts.envFile, "env", ".env", "Environment file path")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Simulate orders regardless of the config file")
	flag.StringVar(&opts.exportJournal, "export-journal", "", "Write closed trades to this .xlsx file on shutdown")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(versionString())
		return
	}
	if opts.configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configFile, opts.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.dryRun {
		cfg.SetDryRun(true)
	}

	lg, err := logger.New(logger.Config{
		Name:    cfg.BotName,
		Dir:     cfg.Logging.Dir,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer lg.Close()
	zl := lg.Zerolog()
	zl.Info().Str("version", version).Str("log_file", lg.GetLogPath()).Bool("live", cfg.IsLive()).Msg("starting")

	metrics := monitoring.NewMetrics()
	ex, err := buildExchange(cfg, lg, metrics)
	if err != nil {
		return err
	}

	store, err := state.Open(state.Options{
		Backend:  cfg.State.Backend,
		Path:     cfg.State.Path,
		RedisURL: cfg.State.RedisURL,
		Key:      cfg.State.Key,
		TTL:      cfg.State.TTL.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	var (
		notifier notifications.Notifier = notifications.NopNotifier{}
		telegram *notifications.TelegramNotifier
	)
	if cfg.Notifications.Enabled && cfg.Notifications.TelegramToken != "" {
		telegram = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
		telegram.SetTitle(cfg.BotName)
		notifier = notifications.NewAsyncNotifier(telegram, cfg.Notifications.QueueSize, zl)
	} else {
		lg.Info("Telegram notifications disabled (no token configured)")
	}

	health := monitoring.NewHealthChecker(3 * cfg.Trading.PollInterval.Std())
	jrnl := journal.New(0)

	b, err := bot.New(cfg, bot.Deps{
		Exchange: ex,
		Notifier: notifier,
		Store:    store,
		Journal:  jrnl,
		Metrics:  metrics,
		Health:   health,
		Logger:   lg,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(b.Wait)

	if telegram != nil && cfg.Notifications.Commands {
		poller := commands.NewTelegramPoller(telegram, commands.NewHandler(b), cfg.Notifications.TelegramChatID, zl)
		g.Go(func() error { return poller.Run(gctx) })
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(api.Config{Addr: cfg.API.Addr, AuthToken: cfg.API.AuthToken}, b, metrics, health, zl)
		g.Go(server.Start)
	}

	<-gctx.Done()
	fmt.Println("\n🛑 Shutdown signal received...")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		cancel()
	}
	b.Stop()
	runErr := g.Wait()

	if opts.exportJournal != "" {
		if err := exportJournal(jrnl, opts.exportJournal); err != nil {
			return err
		}
	}
	if len(jrnl.Entries()) > 0 {
		fmt.Println(jrnl.RenderTable(0))
	}
	fmt.Println("✅ Bot stopped")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// buildExchange creates the configured exchange, paper-wrapped in dry run, behind
// circuit breakers and retries.
func buildExchange(cfg *config.BotConfig, lg *logger.Logger, metrics *monitoring.Metrics) (exchange.FuturesExchange, error) {
	inner, err := adapters.CreateExchange(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange: %w", err)
	}
	rh := recovery.NewRecoveryHandler(recovery.DefaultRetryConfig(), lg.Component("recovery"))
	rh.OnError(func(e *boterrors.BotError) { metrics.RecordError(string(e.Category)) })
	return exchange.NewProtectedExchange(inner, safety.NewCircuitBreakerManager(), rh), nil
}

func exportJournal(j *journal.Journal, path string) error {
	if filepath.Ext(path) == "" {
		path += ".xlsx"
	}
	if err := j.ExportXLSX(path); err != nil {
		return fmt.Errorf("failed to export journal: %w", err)
	}
	fmt.Printf("📊 Journal exported to %s (%d trades)\n", path, len(j.Entries()))
	return nil
}
