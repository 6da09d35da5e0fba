package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/iconcache"
	"github.com/meigma/iconcache/cache/disk"
	"github.com/meigma/iconcache/internal/config"
	"github.com/meigma/iconcache/internal/otel"
	"github.com/meigma/iconcache/kv"
	"github.com/meigma/iconcache/kv/bolt"
	"github.com/meigma/iconcache/kv/sqlite"
	"github.com/meigma/iconcache/resolve"
)

const serviceName = "iconcache"

// app is one CLI invocation's wired client.
type app struct {
	cfg      config.Config
	client   *iconcache.Client
	logger   *slog.Logger
	stdout   io.Writer
	shutdown func(context.Context) error
}

func defaultConfigPath() string {
	if p := os.Getenv("ICONCACHE_CONFIG"); p != "" {
		return p
	}
	return config.FileName
}

func newApp(ctx context.Context, configPath string, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	shutdown, err := otel.Setup(ctx, serviceName, cfg.OTel.Endpoint, cfg.OTel.Enabled)
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
	}

	store, err := openKV(cfg.KV, logger)
	if err != nil {
		_ = shutdown(ctx) //nolint:errcheck // nothing was exported yet
		return nil, err
	}

	resolver := resolve.New(
		resolve.WithRuntime(resolve.ParseRuntime(cfg.Resolve.Runtime)),
		resolve.WithOrigin(cfg.Resolve.Origin),
		resolve.WithBase(cfg.Resolve.Base),
		resolve.WithProxyPath(cfg.Resolve.ProxyPath),
		resolve.WithLogger(logger),
	)
	client, err := iconcache.New(
		iconcache.WithCacheDir(cfg.Cache.Dir,
			disk.WithSchemaVersion(cfg.Cache.SchemaVersion),
			disk.WithMaxAge(cfg.Cache.MaxAge),
			disk.WithMaxBytes(cfg.Cache.MaxBytes),
		),
		iconcache.WithKV(store),
		iconcache.WithIconResolver(resolver),
		iconcache.WithClientLogger(logger),
		iconcache.WithRetryBaseDelay(cfg.Fetch.RetryBaseDelay),
		iconcache.WithLoaderOptions(
			iconcache.WithFetchTimeout(cfg.Fetch.Timeout),
			iconcache.WithProbeTimeout(cfg.Fetch.ProbeTimeout),
			iconcache.WithMaxRetries(cfg.Fetch.MaxRetries),
		),
		iconcache.WithoutBackgroundClean(),
	)
	if err != nil {
		_ = store.Close()
		_ = shutdown(ctx) //nolint:errcheck // nothing was exported yet
		return nil, err
	}

	logger.Debug("iconcache ready",
		slog.String("cache_dir", cfg.Cache.Dir),
		slog.String("kv_driver", cfg.KV.Driver),
		slog.Bool("tracing", cfg.TracingEnabled()))
	return &app{cfg: cfg, client: client, logger: logger, stdout: stdout, shutdown: shutdown}, nil
}

// openKV opens the configured rule record store.
func openKV(cfg config.KVConfig, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return kv.NewMemory(), nil
	case config.DriverSQLite, config.DriverBolt:
	default:
		return nil, fmt.Errorf("unknown kv driver %q", cfg.Driver)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create kv dir: %w", err)
	}
	if cfg.Driver == config.DriverBolt {
		return bolt.Open(cfg.Path, bolt.WithLogger(logger))
	}
	return sqlite.Open(cfg.Path)
}

func (a *app) close(ctx context.Context) error {
	return errors.Join(a.client.Close(), a.shutdown(ctx))
}
