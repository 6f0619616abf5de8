package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/bootstrap"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/config"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

// WriteTimeout must exceed PROVIDER_TIMEOUT.
const (
	readHeaderTimeout = 10 * time.Second
	writeTimeoutSlack = 15 * time.Second
	shutdownTimeout   = 45 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("load config", err)
	}
	if err := telemetry.Init(cfg.Env); err != nil {
		fatal("init logger", err)
	}
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		fatal("init tracing", err)
	}

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		fatal("bootstrap build", err)
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.ProviderTimeout + writeTimeoutSlack,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("api server starting", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		telemetry.Info("shutdown requested", map[string]any{"timeout": shutdownTimeout.String()})
	case err := <-errCh:
		if err != nil {
			telemetry.Error("api server stopped", map[string]any{"error": err})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Error("http shutdown", map[string]any{"error": err})
	}
	if err := app.Close(shutdownCtx); err != nil {
		telemetry.Error("close dependencies", map[string]any{"error": err})
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		telemetry.Error("tracing shutdown", map[string]any{"error": err})
	}
}

func fatal(msg string, err error) {
	telemetry.Error(msg, map[string]any{"error": err})
	telemetry.Sync()
	os.Exit(1)
}
