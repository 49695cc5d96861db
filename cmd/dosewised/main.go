package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dosewise/dosewise/internal/config"
	"github.com/dosewise/dosewise/internal/delivery"
	"github.com/dosewise/dosewise/internal/dispatch"
	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/pkg/reminder"
)

// connectWithRetry builds the service with exponential backoff, since
// Redis may come up after the daemon under service managers
func connectWithRetry(redisURL string, maxRetries int, log logger.Logger) (*reminder.Service, error) {
	var svc *reminder.Service
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		svc, err = reminder.NewService(redisURL)
		if err == nil {
			return svc, nil
		}

		// 2^attempt seconds, capped at 30 seconds
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	logger.SetDefault(log)

	serviceLog := log.WithComponent(logger.ComponentService).WithSource(logger.LogSourceInternal)

	serviceLog.Info("dosewised starting",
		"redis_url", cfg.RedisURL,
		"dispatch_interval", cfg.DispatchInterval,
		"reconcile_interval", cfg.ReconcileInterval)

	// pprof on a separate port for profiling
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6061"
	}
	go func() {
		serviceLog.Info("Starting pprof server", "port", pprofPort)
		if err := http.ListenAndServe(":"+pprofPort, nil); err != nil {
			serviceLog.Error("pprof server failed", "error", err)
		}
	}()

	svc, err := connectWithRetry(cfg.RedisURL, 5, serviceLog)
	if err != nil {
		serviceLog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	serviceLog.Info("Successfully connected to Redis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Headless permission resolution; the mobile shell would route the
	// real platform prompt through the same Authorizer seam
	granted, err := svc.RequestPermission(ctx, reminder.AuthorizerFunc(
		func(ctx context.Context) (bool, error) {
			return cfg.PermissionGranted, nil
		}))
	if err != nil {
		serviceLog.Error("Permission request failed", "error", err)
	}
	if !granted {
		serviceLog.Warn("Notifications not permitted, triggers will not be registered")
	}

	// Delivery backends
	var speaker delivery.Speaker
	if cfg.SpeechEnabled {
		speaker = delivery.NewLogSpeaker()
	}
	deliverer := delivery.NewDeliverer(delivery.NewLogNotifier(), speaker, cfg.SpeechDelay)

	// Startup reconciliation, the launch analog of the foreground hook
	if added, err := svc.Reconcile(ctx); err != nil {
		serviceLog.Error("Startup reconciliation failed", "error", err)
	} else if added > 0 {
		serviceLog.Info("Startup reconciliation recovered triggers", "added", added)
	}

	dispatcher := dispatch.NewDispatcher(svc.Ledger(), deliverer, cfg.DispatchInterval)
	go dispatcher.Start(ctx)
	go svc.Reconciler().Start(ctx, cfg.ReconcileInterval)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	serviceLog.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)

	cancel()

	// Let in-flight announcements finish
	deliverer.Wait()

	serviceLog.Info("dosewised shut down successfully")
}
