package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/telhawk-systems/slack-connector/common/database"
	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/connector/internal/activity"
	"github.com/telhawk-systems/slack-connector/connector/internal/config"
	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/dispatch"
	"github.com/telhawk-systems/slack-connector/connector/internal/registry"

	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
)

func openRegistry(ctx context.Context, cfg *config.Config, logger *logging.Logger) (registry.Store, func(), error) {
	switch cfg.Registry.Backend {
	case config.RegistryPostgres:
		if cfg.Database.AutoMigrate {
			version, err := database.Migrate(cfg.Database.MigrationsDir, cfg.Database.URL, database.Up)
			if err != nil {
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrations applied", slog.Uint64("version", uint64(version)))
		}

		poolCfg := database.DefaultPoolConfig(cfg.Database.URL)
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Database.MaxConns
		}
		pool, err := database.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, nil, err
		}
		reg := registry.NewPostgresRegistry(pool)
		return reg, reg.Close, nil

	case config.RegistryFile:
		reg, err := registry.NewFileRegistry(cfg.Registry.File)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loaded subscribers from file", slog.String("path", cfg.Registry.File))
		return reg, func() {}, nil

	case config.RegistryMemory:
		reg, err := registry.NewMemoryRegistry()
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("in-memory subscriber registry is empty; passive events will have no recipients")
		return reg, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
}

func reloadRegistry(reg registry.Store, cached *registry.CachedRegistry) {
	fileReg, ok := reg.(*registry.FileRegistry)
	if !ok {
		slog.Info("SIGHUP ignored: registry is not file-backed")
		return
	}
	if err := fileReg.Reload(); err != nil {
		slog.Error("subscriber reload failed, keeping previous set", logging.Error(err))
		return
	}
	cached.Invalidate()
	slog.Info("subscribers reloaded")
}

func openKV(ctx context.Context, cfg *config.Config) (correlation.KV, error) {
	switch cfg.Correlation.Backend {
	case config.CorrelationRedis:
		return correlation.DialRedis(ctx, cfg.Redis.URL)
	case config.CorrelationMemory:
		slog.Warn("in-memory correlation store: records are lost on restart and not shared between replicas")
		return correlation.NewMemoryKV(cfg.Correlation.CleanupInterval), nil
	}
	return nil, fmt.Errorf("unknown correlation backend %q", cfg.Correlation.Backend)
}

func openTransport(ctx context.Context, cfg *config.Config, js *natsclient.JetStreamClient, logger *logging.Logger) (dispatch.Transport, error) {
	opts := []dispatch.Option{
		dispatch.WithSubjectPrefix(cfg.Dispatch.SubjectPrefix),
		dispatch.WithLogger(logger.Logger),
	}

	if cfg.Dispatch.DLQEnabled {
		dlq, err := dispatch.NewJetStreamDLQ(ctx, js, logger.Logger)
		if err != nil {
			logger.Warn("dead-letter stream unavailable, failed dispatches will only be logged", logging.Error(err))
		} else {
			opts = append(opts, dispatch.WithDeadLetter(dlq))
		}
	}

	switch cfg.Dispatch.Backend {
	case config.DispatchJetStream:
		stream := natsclient.BlocksStream(cfg.Dispatch.SubjectPrefix)
		if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
			return nil, fmt.Errorf("create %s stream: %w", stream.Name, err)
		}
		return dispatch.NewJetStreamTransport(js, opts...), nil
	case config.DispatchNATS:
		return dispatch.NewNATSTransport(js, opts...), nil
	}
	return nil, errors.New("unknown dispatch backend " + cfg.Dispatch.Backend)
}

// openActivity starts the activity collector. Stats are optional: a Redis
// failure is logged and routing continues without them.
func openActivity(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*activity.Collector, func()) {
	if !cfg.Activity.Enabled {
		return nil, func() {}
	}

	instanceID := cfg.Activity.InstanceID
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}

	client, err := activity.NewClient(ctx, cfg.Redis.URL, instanceID,
		activity.WithKeyPrefix(cfg.Correlation.KeyPrefix))
	if err != nil {
		logger.Warn("activity stats disabled", logging.Error(err))
		return nil, func() {}
	}

	collector := activity.NewCollector(client, cfg.Activity.FlushInterval, logger.Logger)
	return collector, func() {
		collector.Stop()
		_ = client.Close()
	}
}
