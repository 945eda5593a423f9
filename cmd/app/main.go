// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-vpn-provisioning/internal/application"
	"telegram-vpn-provisioning/internal/config"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
	"telegram-vpn-provisioning/internal/infra/adapters/provisioner"
	tele "telegram-vpn-provisioning/internal/infra/adapters/telegram"
	"telegram-vpn-provisioning/internal/infra/db/jsonfile"
	"telegram-vpn-provisioning/internal/infra/i18n"
	"telegram-vpn-provisioning/internal/infra/logging"
	"telegram-vpn-provisioning/internal/infra/memory"
	"telegram-vpn-provisioning/internal/infra/metrics"
	red "telegram-vpn-provisioning/internal/infra/redis"
	"telegram-vpn-provisioning/internal/infra/sched"
	"telegram-vpn-provisioning/internal/infra/web"
	"telegram-vpn-provisioning/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = ""
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted output)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	// ---- Registry + provisioning ----
	store, err := jsonfile.NewRegistryStore(cfg.Registry.Path, logger)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	prov, err := provisioner.NewScriptProvisioner(provisioner.Config{
		Command:    cfg.Provisioner.Command,
		ClientsDir: cfg.Provisioner.ClientsDir,
		Timeout:    cfg.Provisioner.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("provisioner: %w", err)
	}
	catalog, err := cfg.PlanCatalog()
	if err != nil {
		return fmt.Errorf("plans: %w", err)
	}

	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Conversation state: redis when configured, memory otherwise ----
	var (
		states      repository.StateRepository
		sessions    repository.PurchaseSessionRepository
		rateLimiter *red.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		states = red.NewStateRepo(redisClient, cfg.Purchase.SessionTTL)
		sessions = red.NewPurchaseSessionRepo(redisClient, cfg.Purchase.SessionTTL)
		rateLimiter = red.NewRateLimiter(redisClient)
		logger.Info().Msg("conversation state: redis")
	} else {
		states = memory.NewStateRepo(cfg.Purchase.SessionTTL)
		sessions = memory.NewPurchaseSessionRepo(cfg.Purchase.SessionTTL)
		logger.Info().Msg("conversation state: memory")
	}

	// ---- Transport ----
	var (
		notifier adapter.Notifier
		bot      *tele.RealTelegramBotAdapter
	)
	switch cfg.Bot.Mode {
	case config.BotModeNoop:
		notifier = tele.NewNoopBotAdapter(logger)
	default:
		bot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, rateLimiter, translator, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = bot
	}

	// ---- Use cases + facade ----
	lifecycleUC := usecase.NewLifecycleUseCase(store, prov, catalog, logger)
	purchaseUC := usecase.NewPurchaseUseCase(sessions, lifecycleUC, catalog, cfg.PaymentMethods(), notifier, translator, cfg.Bot.AdminID, logger)
	facade := application.NewBotFacade(lifecycleUC, purchaseUC, states, notifier, translator, cfg.Bot.AdminID, cfg.Listing.ExpiringWindow, logger)

	if st, err := lifecycleUC.Stats(ctx); err == nil {
		logger.Info().Int("active", st.Active).Int("expired", st.Expired).Int("invalid", st.Invalid).Msg("registry loaded")
	}

	g, ctx := errgroup.WithContext(ctx)

	if bot != nil {
		bot.Attach(facade)
		if err := bot.SetMenuCommands(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to publish bot commands")
		}
		g.Go(func() error { return bot.StartPolling(ctx) })
	}

	watcher := sched.NewExpiryWatcher(cfg.Watcher.Interval, cfg.Watcher.AlertThreshold, cfg.Bot.AdminID, lifecycleUC, notifier, translator, logger)
	g.Go(func() error { return watcher.Run(ctx) })

	if cfg.Web.Port != 0 {
		auth := web.NewAuthManager(cfg.Web.JWTSecret, cfg.Web.TokenTTL)
		srv := web.NewServer(lifecycleUC, purchaseUC, auth, cfg.Bot.AdminID, cfg.Listing.ExpiringWindow, logger)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Web.Port) })
	}

	logger.Info().Str("version", version).Str("mode", cfg.Bot.Mode).Msg("bot started")
	err = g.Wait()
	logger.Info().Msg("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
