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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"example.com/fairticket/internal/config"
	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/idempotency"
	"example.com/fairticket/internal/ingest"
	"example.com/fairticket/internal/ledger"
	"example.com/fairticket/internal/metrics"
	"example.com/fairticket/internal/registry"
	spg "example.com/fairticket/internal/storage/postgres"
	"example.com/fairticket/internal/telemetry"
	transport "example.com/fairticket/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ticketd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	fs := pflag.NewFlagSet("ticketd", pflag.ExitOnError)
	cfg.BindFlags(fs)
	_ = fs.Parse(os.Args[1:])

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Info("config loaded", "port", cfg.Port, "persistence", cfg.PostgresDSN != "", "policy_file", cfg.PolicyFile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics.Register(prometheus.DefaultRegisterer)

	policy := registry.DefaultPolicy()
	owner := domain.NormalizeAddress(cfg.RegistryOwner)
	address := domain.NormalizeAddress(cfg.RegistryAddress)
	var deposits map[string]string
	if cfg.PolicyFile != "" {
		pf, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return err
		}
		policy = pf.Policy
		deposits = pf.Deposits
		if owner.IsZero() {
			owner = domain.NormalizeAddress(pf.Owner)
		}
		if pf.RegistryAddress != "" {
			address = domain.NormalizeAddress(pf.RegistryAddress)
		}
	}
	if owner.IsZero() {
		return errors.New("registry owner is required (FAIRTICKET_REGISTRY_OWNER, --registry-owner or policy file)")
	}

	// Background workers outlive the HTTP server so in-flight requests can
	// finish and their activity is flushed.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	deps := &transport.ServerDeps{
		Cfg:         cfg,
		Idempotency: idempotency.NewCache(cfg.IdempotencyTTL, cfg.IdempotencyMax, nil),
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
	}

	var recorder domain.Recorder
	var ingestor *ingest.Ingestor
	if cfg.PostgresDSN != "" {
		db, err := spg.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("db: migrations applied")

		ingestor = ingest.NewIngestor(spg.NewWriter(db), cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait, logger)
		ingestor.Start(workCtx)
		logger.Info("ingest: started", "queue", cfg.QueueMaxSize, "batch", cfg.BatchMaxSize, "wait", cfg.BatchMaxWait)
		recorder = ingestor
		deps.DB = db
		deps.Stats = db
	} else {
		activityLog := logger.With("component", "activity")
		recorder = domain.RecorderFunc(func(a domain.Activity) {
			activityLog.Info("activity", "kind", a.Kind, "event", a.Event, "ticket", a.TicketID, "actor", a.Actor, "amount", a.Amount.String())
		})
	}

	ldg := ledger.New(logger)
	for addr, amt := range deposits {
		v, err := decimal.NewFromString(amt)
		if err != nil {
			return fmt.Errorf("deposit for %s: %w", addr, err)
		}
		to := domain.NormalizeAddress(addr)
		if to == address {
			return fmt.Errorf("deposit for %s: %w", addr, domain.ErrInvalidAddress)
		}
		if err := ldg.Deposit(to, v); err != nil {
			return fmt.Errorf("deposit for %s: %w", addr, err)
		}
	}

	reg, err := registry.New(address, owner, policy, ldg,
		registry.WithRecorder(recorder),
		registry.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	seq := ledger.NewSequencer(cfg.SequencerQueue)
	seq.Start(workCtx)

	deps.Ledger = ldg
	deps.Registry = reg
	deps.Sequencer = seq

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "registry", address, "owner", owner)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	stopWork()
	if ingestor != nil {
		<-ingestor.Done()
	}
	return nil
}
