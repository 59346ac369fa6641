// Command liveserve serves a project over HTTP for live preview.
//
// Files under the project mount are served at /<route>/project/..., the
// editor control endpoints live under /_live/ and Prometheus metrics at
// /metrics. Configuration comes from BEAVER_LIVESERVE_* and
// BEAVER_LIVEFS_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/driver/local"
	"github.com/gobeaver/livefs/driver/memory"
	"github.com/gobeaver/livefs/internal/logging"
)

func main() {
	cfg, fsCfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.logConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := livefs.NewRegistry()
	local.Register(reg)
	memory.Register(reg)

	a, err := newApp(ctx, cfg, fsCfg, reg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("live preview server listening",
		zap.String("addr", cfg.addr()),
		zap.String("driver", fsCfg.Driver),
		zap.String("preview", a.router.Config().Prefix()+"/"))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Error("close failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
