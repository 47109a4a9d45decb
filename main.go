// entry point of the application
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tubedl/internal/config"
	"tubedl/internal/consts"
	"tubedl/internal/filestore"
	httprouter "tubedl/internal/infrastructure/delivery/http"
	"tubedl/internal/observability"
	"tubedl/internal/progress"
	"tubedl/internal/provider"
	"tubedl/internal/proxymgr"
	"tubedl/internal/publisher"
	"tubedl/internal/session"
	httpserver "tubedl/pkg/http/server"
	"tubedl/pkg/logger"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	if err := run(ctx, log, cfg); err != nil {
		log.ErrorContext(ctx, "tubedl stopped with error", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log.InfoContext(ctx, "tubedl shut down gracefully")
}

func run(ctx context.Context, log *slog.Logger, cfg *config.Config) error {
	metrics := observability.New()

	if cfg.App.Provider == consts.ProviderYTdlp {
		log.InfoContext(ctx, "checking if yt-dlp is installed. it may take some time...")

		if _, err := ytdlp.Install(ctx, nil); err != nil {
			return err
		}
	}

	// nil when no proxies are configured; every method tolerates that
	var proxyMgr *proxymgr.Manager
	if len(cfg.Proxy.Proxies) > 0 {
		proxyMgr = proxymgr.New(log, cfg, metrics)

		log.InfoContext(ctx, "proxy manager initialized", slog.Int("proxy_count", proxyMgr.ProxyCount()))
	}

	p, err := provider.New(log, cfg, proxyMgr, metrics)
	if err != nil {
		return err
	}

	store, err := filestore.New(log, cfg, metrics)
	if err != nil {
		return err
	}

	registry := progress.New(log, cfg, metrics)

	router := httprouter.New(log, cfg, httprouter.Services{
		Downloader: session.New(log, cfg, p, registry, store, metrics),
		Resolver:   p,
		SSE:        publisher.New(log, cfg, registry, metrics, publisher.TransportSSE),
		WebSocket:  publisher.New(log, cfg, registry, metrics, publisher.TransportWebSocket),
		Files:      store,
	}, metrics)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return httpSrv.Run(ctx) })
	g.Go(func() error { return proxyMgr.Run(ctx) })
	g.Go(func() error {
		registry.CleanupExpired(ctx, cfg.Progress.SweepInterval)

		return nil
	})
	g.Go(func() error {
		store.CleanupExpired(ctx, cfg.Storage.CleanupInterval)

		return nil
	})

	log.InfoContext(ctx, "tubedl started",
		slog.String("port", cfg.HTTP.Port), slog.String("provider", p.Name()))

	return g.Wait()
}
