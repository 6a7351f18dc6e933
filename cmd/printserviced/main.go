// Command printserviced starts the resilient print service daemon: HTTP
// ingest, the print manager, and the background connectivity/health/
// recovery/cleanup loops that keep orders flowing through printer and
// network outages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpserver "github.com/briskprint/printservice/internal/adapter/httpserver"
	"github.com/briskprint/printservice/internal/adapter/notify/smtp"
	"github.com/briskprint/printservice/internal/adapter/observability"
	"github.com/briskprint/printservice/internal/adapter/printer"
	"github.com/briskprint/printservice/internal/adapter/receipt"
	"github.com/briskprint/printservice/internal/adapter/repo/postgres"
	"github.com/briskprint/printservice/internal/app"
	"github.com/briskprint/printservice/internal/config"
	"github.com/briskprint/printservice/internal/core/breaker"
	"github.com/briskprint/printservice/internal/core/connectivity"
	"github.com/briskprint/printservice/internal/core/health"
	"github.com/briskprint/printservice/internal/core/notify"
	"github.com/briskprint/printservice/internal/core/printjob"
	"github.com/briskprint/printservice/internal/core/recovery"
	"github.com/briskprint/printservice/internal/core/retry"
	"github.com/briskprint/printservice/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL, postgres.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories.
	orderRepo := postgres.NewOrderRepo(pool)
	jobRepo := postgres.NewPrintJobRepo(pool)
	queueRepo := postgres.NewOfflineQueueRepo(pool)
	connRepo := postgres.NewConnectivityEventRepo(pool)
	retryRepo := postgres.NewRetryRepo(pool)
	healthRepo := postgres.NewHealthMetricRepo(pool)
	selfHealingRepo := postgres.NewSelfHealingRepo(pool)
	notifyRepo := postgres.NewNotificationRepo(pool)
	sessionRepo := postgres.NewRecoverySessionRepo(pool)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	// Printer adapter, selected by PRINTER_INTERFACE.
	printerAdapter := buildPrinterAdapter(cfg)

	// Circuit breakers for every named dependency (printer, smtp, external_api, database).
	breakers := breaker.NewManager(domain.DefaultBreakerConfigs())

	// Print Manager.
	variants := printjob.VariantConfig{
		Kitchen:  cfg.EnableKitchenReceipt,
		Driver:   cfg.EnableDriverReceipt,
		Customer: cfg.EnableCustomerReceipt,
	}
	printManager := printjob.New(orderRepo, jobRepo, queueRepo, printerAdapter, receipt.New(), breakers, variants)
	printManager.PollInterval = cfg.PrintPollInterval
	printManager.MaxQueueSize = cfg.QueueMaxSize

	// Notification Service + SMTP transport.
	smtpTransport := smtp.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPUseTLS, cfg.NotificationToAddrs)
	notifyService := notify.New(notifyRepo, smtpTransport, cfg.NotificationEnabled, cfg.NotificationQueueSize)
	go notifyService.Run(ctx)
	printManager.Notify = notifyService

	// Print Manager background loop: polls for pending jobs, gates on
	// printer readiness, and falls back to the offline queue on failure.
	printManager.Start(ctx)
	defer printManager.Stop()

	// Recovery Manager drains the offline queue once a dependency returns,
	// driving each claimed item's print attempt through the Retry Manager so
	// items whose budget is exhausted land in the dead letter queue.
	retryManager := retry.New(retryRepo, nil)
	recoveryManager := recovery.New(sessionRepo, queueRepo, jobRepo, printManager, cfg.QueueBatchSize, cfg.RecoveryBatchDelay, cfg.RecoverySuccessThreshold)
	recoveryManager.Retry = retryManager

	// Connectivity Monitor polls printer + internet reachability and fans out
	// transitions to the recovery trigger and notification bridge.
	connMonitor := connectivity.New(printerAdapter, connRepo, cfg.InternetProbeHosts, cfg.PublicURLTimeout)
	connMonitor.Subscribe(app.NewConnectivityBridge(recoveryManager, notifyService))
	go connMonitor.Run(ctx, cfg.ConnectivityPollInterval)

	dbCheck, publicURLCheck := app.BuildReadinessChecks(cfg, pool)

	// Health Monitor samples host resources and, if configured, public
	// reachability on a shared interval.
	healthMonitor := health.New(healthRepo, selfHealingRepo, cfg.HealthHistorySize)
	healthMonitor.Notify = notifyService
	if cfg.PublicDomain != "" {
		healthMonitor.AddSampler(domain.ResourcePublicURL, func(ctx domain.Context) (float64, map[string]string, error) {
			if err := publicURLCheck(ctx); err != nil {
				return 100, map[string]string{"error": err.Error()}, nil
			}
			return 0, nil, nil
		})
	}
	go healthMonitor.Run(ctx, cfg.HealthSampleInterval)

	// Stuck-job sweeper: a crash between claiming a job and recording its
	// outcome is the one gap at-most-once printing cannot close by itself.
	if sweeper := app.NewStuckJobSweeper(jobRepo, 0, 0); sweeper != nil {
		go sweeper.Run(ctx)
	}

	srv := httpserver.NewServer(orderRepo, jobRepo, queueRepo, breakers, recoveryManager, healthMonitor, notifyService, printManager, dbCheck, publicURLCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("print service starting", slog.Int("port", cfg.Port), slog.String("printer_interface", cfg.PrinterInterface))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	_ = printerAdapter.Disconnect(shutdownCtx)
	slog.Info("print service stopped")
}

func buildPrinterAdapter(cfg config.Config) domain.PrinterAdapter {
	switch cfg.PrinterInterface {
	case "network":
		return printer.NewNetwork(cfg.PrinterIP, cfg.PrinterPort, cfg.PrinterConnTimeout)
	case "usb":
		return printer.NewUSB()
	default:
		return printer.NewDummy()
	}
}
