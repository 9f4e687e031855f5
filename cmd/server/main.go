// Zipstream Server
//
// Features:
// - Streams zip / tar / tar.zst archives of logical paths
// - Ordered provider chain (fs, smb, s3, catalog) reloaded on SIGHUP
// - Optional JWT bearer auth and per-client rate limiting
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/zipstream/internal/api"
	"github.com/fruitsalade/zipstream/internal/archive"
	"github.com/fruitsalade/zipstream/internal/auth"
	"github.com/fruitsalade/zipstream/internal/config"
	"github.com/fruitsalade/zipstream/internal/logging"
	"github.com/fruitsalade/zipstream/internal/metrics"
	"github.com/fruitsalade/zipstream/internal/provider"
	"github.com/fruitsalade/zipstream/internal/quota"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("zipstream server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := provider.NewRegistry(ctx, provider.Loader(cfg.ProviderLoader()))
	if err != nil {
		logging.Fatal("provider registry init failed", zap.Error(err))
	}
	defer registry.Close()

	aggregator := archive.New(registry,
		archive.WithMaxDepth(cfg.MaxDepth),
		archive.WithResolveConcurrency(cfg.ResolveConcurrency))

	var authHandler *auth.Auth
	if cfg.JWTSecret != "" {
		authHandler = auth.New(cfg.JWTSecret)
		logging.Info("bearer auth enabled")
	} else {
		logging.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	var rateLimiter *quota.RateLimiter
	if cfg.RequestsPerMinute > 0 {
		rateLimiter = quota.NewRateLimiter(cfg.RequestsPerMinute, cfg.TrustProxy)
		logging.Info("rate limiter initialized", zap.Int("rpm", cfg.RequestsPerMinute))
	}

	srv := api.NewServer(cfg, registry, aggregator, authHandler, rateLimiter)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server. No write timeout: archives stream for as long
	// as they take.
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	if cfg.UseTLS() {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Reload providers on SIGHUP
	go func() {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				if err := registry.Reload(ctx); err != nil {
					logging.Error("provider reload failed", zap.Error(err))
				}
			}
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("graceful shutdown incomplete", zap.Error(err))
		}
		cancel()
		metricsServer.Close()
	}()

	// Start periodic rate limiter cleanup
	if rateLimiter != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					rateLimiter.Cleanup(time.Hour)
				}
			}
		}()
	}

	if cfg.UseTLS() {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	<-ctx.Done()
}
