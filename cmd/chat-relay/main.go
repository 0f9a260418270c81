// cmd/chat-relay/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"insurebot-chat/internal/common/config"
	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/relay"
	"insurebot-chat/internal/transcript"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.FromConfig(cfg.Logging)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting chat relay...",
		zap.String("backend", cfg.Relay.BackendURL),
		zap.String("transcript", cfg.Transcript.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Transcript sink ---
	sink, err := transcript.New(cfg.Transcript)
	if err != nil {
		zapLog.Fatal("transcript sink init failed", zap.Error(err))
	}
	defer sink.Close()

	err = retryWithBackoff(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return transcript.Ping(pingCtx, sink)
	}, 10, 2*time.Second, zapLog, "Transcript store connection")
	if err != nil {
		zapLog.Fatal("transcript store unavailable", zap.Error(err))
	}
	zapLog.Info("Transcript sink ready", zap.String("driver", sink.Name()))

	// --- Relay server ---
	handler := relay.NewHandler(relay.LoadConfig(cfg.Relay), log, relay.WithTranscript(sink))
	relayMux := http.NewServeMux()
	relayMux.Handle(relay.Route, handler)
	relayMux.Handle("/api/chat", handler)
	relaySrv := &http.Server{
		Addr:              cfg.Relay.ListenAddress,
		Handler:           relayMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Health & Metrics Server ---
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddress,
			Handler:           healthMux(sink),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		zapLog.Info("Relay listening", zap.String("addr", relaySrv.Addr))
		if err := relaySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	if metricsSrv != nil {
		eg.Go(func() error {
			zapLog.Info("Health/Metrics server listening", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// --- Graceful Shutdown ---
	eg.Go(func() error {
		<-egCtx.Done()
		zapLog.Info("Shutdown signal received, draining requests...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Relay.ShutdownGrace))
		defer cancel()

		var errs []error
		if err := relaySrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("relay shutdown: %w", err))
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := eg.Wait(); err != nil {
		zapLog.Error("Chat relay stopped with error", zap.Error(err))
		os.Exit(1)
	}
	zapLog.Info("Chat relay stopped gracefully")
}

func healthMux(sink transcript.Sink) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := transcript.Ping(ctx, sink); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
