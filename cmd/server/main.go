// Command server runs the mobile-backend settlement service: an HTTP API for
// submitting card payments and reading account state, plus the background
// jobs that recharge autopay subscribers, correlate infrastructure outages
// with subscriber accounts, and retry failed ledger credits.
//
// Startup order:
//  1. Load .env (best effort) and environment configuration.
//  2. Configure zerolog and Gin mode.
//  3. Open the app store (SQLite) and run migrations; open the legacy
//     billing database (MySQL).
//  4. Initialize OpenTelemetry tracing (no-op when disabled).
//  5. Construct the gateway, monitoring, and push clients, the ledger
//     router, and the application services.
//  6. Start the scheduler (recurring charges, incident correlation, outbox
//     drain) and the HTTP server.
//
// Shutdown is graceful: SIGINT/SIGTERM stops accepting requests, drains
// in-flight HTTP requests, stops the scheduler, and waits for background
// settlements to reach a terminal state.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/config"
	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/gateway"
	httpapi "github.com/vt54/isp-mobile-backend/internal/http"
	"github.com/vt54/isp-mobile-backend/internal/ledger"
	"github.com/vt54/isp-mobile-backend/internal/monitoring"
	"github.com/vt54/isp-mobile-backend/internal/notify"
	"github.com/vt54/isp-mobile-backend/internal/observability"
	"github.com/vt54/isp-mobile-backend/internal/repo"
	"github.com/vt54/isp-mobile-backend/internal/scheduler"
	"github.com/vt54/isp-mobile-backend/internal/services"
	"github.com/vt54/isp-mobile-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// contractDirShim adapts the billing repository to the services.GroupDirectory
// interface expected by the IncidentService. Contracts whose titles are not
// valid account identifiers (service contracts, test rows) are skipped.
type contractDirShim struct {
	billing *gorm.DB
}

// AccountGroups lists monitored accounts with their infrastructure group IDs.
func (d contractDirShim) AccountGroups(ctx context.Context) ([]services.AccountGroup, error) {
	rows, err := repo.ListContractGroups(ctx, d.billing)
	if err != nil {
		return nil, err
	}
	out := make([]services.AccountGroup, 0, len(rows))
	for _, r := range rows {
		acct, err := domain.ParseAccount(r.Account)
		if err != nil {
			continue
		}
		out = append(out, services.AccountGroup{Account: acct, GroupID: r.GroupID})
	}
	return out, nil
}

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	// App store (bindings, incident flags, payments, outbox)
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open app store")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate app store")
	}

	// Legacy billing database (read balances/tariffs, credit legacy accounts)
	billing, err := repo.OpenBilling(cfg.Billing.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("open billing database")
	}

	// Tracing (no-op when disabled)
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	// Integration clients
	gw := gateway.NewClient(cfg.Gateway)
	mon := monitoring.NewClient(cfg.Monitoring.URL, cfg.Monitoring.Token, cfg.Monitoring.Timeout)
	pusher := notify.NewPusher(cfg.Push.URL, cfg.Push.Timeout, log.Logger)
	router := ledger.NewRouter(billing, cfg.Billing.NotifyURL, cfg.Gateway.Timeout, log.Logger)

	// Services
	settlement := services.NewSettlementService(db, gw, router,
		cfg.Gateway.PollInterval, cfg.Gateway.PollDeadline, log.Logger)
	autopay := services.NewAutopayService(db, gw, settlement, log.Logger)
	incidents := services.NewIncidentService(db, contractDirShim{billing: billing}, mon, pusher, log.Logger)
	balances := services.NewBalanceService(billing)

	// Background jobs
	jobs := scheduler.New(log.Logger)
	jobs.Add(&scheduler.Job{
		Name:     "autopay-recurring",
		Interval: cfg.Schedule.Recurring,
		Run:      autopay.RunRecurring,
	})
	jobs.Add(&scheduler.Job{
		Name:      "incident-correlation",
		Interval:  cfg.Schedule.Incident,
		Run:       incidents.RunCorrelation,
		Immediate: true,
	})
	jobs.Add(&scheduler.Job{
		Name:     "ledger-outbox",
		Interval: cfg.Schedule.Outbox,
		Run:      settlement.DrainOutbox,
	})

	jobCtx, stopJobs := context.WithCancel(ctx)
	jobs.Start(jobCtx)

	// HTTP server
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, httpapi.Services{
		Settlement: settlement,
		Autopay:    autopay,
		Incidents:  incidents,
		Balances:   balances,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info().Msg("shutdown signal received")

	// Stop accepting requests and drain in-flight ones.
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}

	// Stop scheduled jobs and let running ones finish.
	stopJobs()
	jobs.Wait()

	// Settlement goroutines are detached from request contexts: wait so that
	// authorized orders observed right before shutdown still reach the ledger.
	settlement.Wait()

	log.Info().Msg("shutdown complete")
}
