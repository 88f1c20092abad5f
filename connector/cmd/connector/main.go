package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/common/messaging"
	"github.com/telhawk-systems/slack-connector/connector/internal/config"
	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/handlers"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/registry"
	"github.com/telhawk-systems/slack-connector/connector/internal/router"
	"github.com/telhawk-systems/slack-connector/connector/internal/sender"
	"github.com/telhawk-systems/slack-connector/connector/internal/server"
	"github.com/telhawk-systems/slack-connector/connector/internal/verifier"

	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("slack-connector"))
	logging.SetDefault(logger)

	slog.Info("Starting Slack connector",
		slog.Int("port", cfg.Server.Port),
		slog.String("http_prefix", cfg.Slack.HTTPPrefix),
		slog.String("registry_backend", cfg.Registry.Backend),
		slog.String("correlation_backend", cfg.Correlation.Backend),
		slog.String("dispatch_backend", cfg.Dispatch.Backend),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	defer startupCancel()

	inst := installation.Installation{
		TeamID:          cfg.Slack.TeamID,
		SigningSecret:   cfg.Slack.SigningSecret,
		BotToken:        cfg.Slack.BotToken,
		BotUserID:       cfg.Slack.BotUserID,
		BotID:           cfg.Slack.BotID,
		CallbackBaseURL: cfg.Slack.CallbackBaseURL,
	}
	if err := inst.Validate(); err != nil {
		// requests are rejected with 500 until a secret is configured
		slog.Warn("Slack signing secret not configured", logging.Error(err))
	}
	installations := installation.NewStatic(inst)

	// Subscriber registry
	reg, closeRegistry, err := openRegistry(startupCtx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize subscriber registry: %v", err)
	}
	defer closeRegistry()
	cachedRegistry := registry.NewCachedRegistry(reg, cfg.Registry.CacheTTL)

	// Correlation store
	kv, err := openKV(startupCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize correlation store: %v", err)
	}
	defer kv.Close()
	store := correlation.NewStore(kv,
		correlation.WithTTL(cfg.Correlation.TTL),
		correlation.WithKeyPrefix(cfg.Correlation.KeyPrefix),
	)

	// Message bus and dispatch transport
	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
		Logger:        logger.Logger,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer js.Close()

	transport, err := openTransport(startupCtx, cfg, js, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dispatch transport: %v", err)
	}

	// Slack Web API: bot identity and the send API for subscribers
	var sendService *sender.Service
	if cfg.Slack.BotToken != "" {
		snd := sender.New(sender.NewClient(inst, cfg.Slack.APIURL), store, logger)

		resolved, err := snd.ResolveIdentity(startupCtx, inst)
		if err != nil {
			slog.Warn("Could not resolve bot identity; self events are only filtered by configured ids",
				logging.Error(err))
		} else {
			installations.Update(resolved)
		}

		sendService = sender.NewService(snd, installations, js, logger)
		if err := sendService.Start(); err != nil {
			log.Fatalf("Failed to start send API: %v", err)
		}
	} else {
		slog.Warn("Slack bot token not configured; send API and identity resolution disabled")
	}

	// Per-team webhook activity
	var routerOpts []router.Option
	collector, closeActivity := openActivity(startupCtx, cfg, logger)
	defer closeActivity()
	if collector != nil {
		routerOpts = append(routerOpts, router.WithActivity(collector))
	}

	// HTTP surface
	rt := router.New(cachedRegistry, store, transport, logger, routerOpts...)
	handler := handlers.NewSlackHandler(
		installations,
		verifier.New(verifier.WithMaxSkew(cfg.Slack.MaxSkew)),
		rt,
		logger,
		handlers.ReadinessCheck{Name: "registry", Check: cachedRegistry.Ping},
		handlers.ReadinessCheck{Name: "correlation", Check: store.Ping},
		handlers.ReadinessCheck{Name: "nats", Check: func(ctx context.Context) error {
			return messaging.CheckClientHealth(ctx, js).Err()
		}},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, cfg.Slack.HTTPPrefix, cfg.Server.MaxBodyBytes),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Slack connector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// SIGHUP reloads file-backed subscribers; SIGINT/SIGTERM shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig == syscall.SIGHUP {
			reloadRegistry(reg, cachedRegistry)
			continue
		}
		break
	}

	slog.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	if sendService != nil {
		sendService.Stop()
	}
	if err := js.Drain(); err != nil {
		slog.Warn("NATS drain failed", logging.Error(err))
	}

	slog.Info("Server stopped")
}
