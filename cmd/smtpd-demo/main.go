// Command smtpd-demo embeds the smtp package behind a minimal host
// process: it wires configuration, logging, and a health/metrics HTTP
// mux around the SMTP server, and logs every accepted envelope instead
// of delivering it anywhere.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webrana/smtpcore/internal/config"
	"github.com/webrana/smtpcore/internal/logger"
	"github.com/webrana/smtpcore/internal/smtp"
)

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(appLogger)

	cfg.SMTP.Logger = appLogger

	appLogger.Info("starting smtpd-demo",
		slog.String("domain", cfg.SMTP.Domain),
		slog.Int("port", cfg.SMTP.ListenPort),
	)

	server, err := smtp.NewServer(&cfg.SMTP, logEnvelope(appLogger))
	if err != nil {
		appLogger.Error("invalid smtp configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		appLogger.Error("failed to start smtp server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	httpSrv := startOpsServer(server, appLogger)

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		appLogger.Error("error stopping smtp server", slog.String("error", err.Error()))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("error stopping ops http server", slog.String("error", err.Error()))
	}

	appLogger.Info("smtpd-demo stopped")
}

// logEnvelope is the host's MessageHandler: it logs the envelope and
// always accepts.
func logEnvelope(log *slog.Logger) smtp.MessageHandler {
	return func(ctx context.Context, env smtp.Envelope) smtp.HandlerOutcome {
		from := ""
		if env.From != nil {
			from = string(*env.From)
		}
		log.Info("message received",
			slog.String("from", from),
			slog.Int("recipients", len(env.Recipients)),
			slog.Int("bytes", len(env.Data)),
		)
		return smtp.HandlerAccepted
	}
}

// startOpsServer exposes /healthz and /metrics on a small chi mux,
// separate from the SMTP listener.
func startOpsServer(server *smtp.Server, log *slog.Logger) *http.Server {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := server.HealthCheck()
		w.Header().Set("Content-Type", "application/json")
		if !status.Running {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	r.Handle("/metrics", promhttp.HandlerFor(server.Collector(), promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:    ":8081",
		Handler: r,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ops http server failed", slog.String("error", err.Error()))
		}
	}()
	return httpSrv
}
