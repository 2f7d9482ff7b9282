package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"telegate/internal/app"
	"telegate/internal/config"
	"telegate/internal/observability"
)

const (
	envHTTPReadHeaderTimeoutSeconds = "TELEGATE_HTTP_READ_HEADER_TIMEOUT_SECONDS"
	envHTTPReadTimeoutSeconds       = "TELEGATE_HTTP_READ_TIMEOUT_SECONDS"
	envHTTPWriteTimeoutSeconds      = "TELEGATE_HTTP_WRITE_TIMEOUT_SECONDS"
	envHTTPIdleTimeoutSeconds       = "TELEGATE_HTTP_IDLE_TIMEOUT_SECONDS"
	envHTTPShutdownTimeoutSeconds   = "TELEGATE_HTTP_SHUTDOWN_TIMEOUT_SECONDS"
)

var (
	defaultHTTPReadHeaderTimeout = 10 * time.Second
	defaultHTTPReadTimeout       = 120 * time.Second
	defaultHTTPWriteTimeout      = 0 * time.Second
	defaultHTTPIdleTimeout       = 120 * time.Second
	defaultHTTPShutdownTimeout   = 30 * time.Second
)

type httpRuntimeConfig struct {
	readHeaderTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := app.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("init server failed: %w", err)
	}
	defer srv.Close()

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	runtimeCfg := loadHTTPRuntimeConfig(logger)
	httpServer := newHTTPServer(addr, srv.Handler(), runtimeCfg)

	errCh := make(chan error, 1)
	go func() {
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errCh <- listenErr
			return
		}
		errCh <- nil
	}()

	logger.Info("gateway listening",
		zap.String("addr", addr),
		zap.Duration("read_header_timeout", runtimeCfg.readHeaderTimeout),
		zap.Duration("read_timeout", runtimeCfg.readTimeout),
		zap.Duration("write_timeout", runtimeCfg.writeTimeout),
		zap.Duration("idle_timeout", runtimeCfg.idleTimeout),
		zap.Duration("shutdown_timeout", runtimeCfg.shutdownTimeout),
		zap.Bool("scheduler", !cfg.DisableScheduler),
	)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case listenErr := <-errCh:
		if listenErr != nil {
			return fmt.Errorf("listen failed: %w", listenErr)
		}
		return nil
	case <-signalCtx.Done():
		logger.Info("shutdown signal received, draining in-flight requests", zap.Duration("timeout", runtimeCfg.shutdownTimeout))
	}

	timedOut, shutdownErr := shutdownHTTPServer(httpServer, runtimeCfg.shutdownTimeout)
	if shutdownErr != nil {
		return shutdownErr
	}
	if timedOut {
		logger.Warn("gateway shutdown degraded: in-flight requests exceeded timeout, forced close", zap.Duration("timeout", runtimeCfg.shutdownTimeout))
	} else {
		logger.Info("gateway shutdown complete")
	}

	if listenErr := <-errCh; listenErr != nil {
		return fmt.Errorf("listen failed during shutdown: %w", listenErr)
	}
	return nil
}

func loadHTTPRuntimeConfig(logger *zap.Logger) httpRuntimeConfig {
	return httpRuntimeConfig{
		readHeaderTimeout: readDurationSecondsEnv(logger, envHTTPReadHeaderTimeoutSeconds, defaultHTTPReadHeaderTimeout, false),
		readTimeout:       readDurationSecondsEnv(logger, envHTTPReadTimeoutSeconds, defaultHTTPReadTimeout, false),
		writeTimeout:      readDurationSecondsEnv(logger, envHTTPWriteTimeoutSeconds, defaultHTTPWriteTimeout, true),
		idleTimeout:       readDurationSecondsEnv(logger, envHTTPIdleTimeoutSeconds, defaultHTTPIdleTimeout, false),
		shutdownTimeout:   readDurationSecondsEnv(logger, envHTTPShutdownTimeoutSeconds, defaultHTTPShutdownTimeout, false),
	}
}

func newHTTPServer(addr string, handler http.Handler, runtimeCfg httpRuntimeConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: runtimeCfg.readHeaderTimeout,
		ReadTimeout:       runtimeCfg.readTimeout,
		WriteTimeout:      runtimeCfg.writeTimeout,
		IdleTimeout:       runtimeCfg.idleTimeout,
	}
}

func shutdownHTTPServer(httpServer *http.Server, timeout time.Duration) (bool, error) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if closeErr := httpServer.Close(); closeErr != nil {
				return true, fmt.Errorf("force close failed after shutdown timeout: %w", closeErr)
			}
			return true, nil
		}
		return false, fmt.Errorf("shutdown failed: %w", err)
	}
	return false, nil
}

func readDurationSecondsEnv(logger *zap.Logger, key string, fallback time.Duration, allowZero bool) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 || (seconds == 0 && !allowZero) {
		logger.Warn("invalid duration env, using fallback",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Duration("fallback", fallback),
		)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
