// Command server runs the land registry gateway: ledger sessions, the
// off-chain index, the mirror worker and the HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"landledger/internal/audit"
	auditkafka "landledger/internal/audit/kafka"
	"landledger/internal/audit/publisher"
	auditmem "landledger/internal/audit/store/memory"
	auditpg "landledger/internal/audit/store/postgres"
	"landledger/internal/domain"
	"landledger/internal/index"
	"landledger/internal/index/cache"
	indexmem "landledger/internal/index/memory"
	indexpg "landledger/internal/index/postgres"
	"landledger/internal/ledger"
	ledgerfabric "landledger/internal/ledger/fabric"
	ledgermem "landledger/internal/ledger/memory"
	"landledger/internal/network"
	"landledger/internal/platform/config"
	"landledger/internal/platform/httpserver"
	"landledger/internal/platform/logger"
	"landledger/internal/platform/metrics"
	"landledger/internal/platform/middleware"
	"landledger/internal/platform/redis"
	"landledger/internal/registry"
	"landledger/internal/registry/outbox"
	httptransport "landledger/internal/transport/http"
	"landledger/pkg/platform/circuit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Off-chain index.
	var (
		store index.Store
		db    *sql.DB
	)
	switch cfg.IndexBackend {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("INDEX_BACKEND=postgres requires POSTGRES_DSN")
		}
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := indexpg.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("index schema: %w", err)
		}
		store = indexpg.NewStore(db)
	case "memory":
		store = indexmem.NewStore()
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", cfg.IndexBackend)
	}

	// Verification cache, optional.
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	verifyCache := cache.New(redisClient, 5*time.Minute)

	// Audit trail: a durable store plus optional Kafka fan-out.
	var auditStore audit.Store
	if db != nil {
		if err := auditpg.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
		auditStore = auditpg.New(db)
	} else {
		auditStore = auditmem.NewStore()
	}
	pubOpts := []publisher.Option{publisher.WithAsyncBuffer(1024), publisher.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := auditkafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		pubOpts = append(pubOpts, publisher.WithSink(sink))
	}
	auditPub := publisher.NewPublisher(auditStore, pubOpts...)
	defer auditPub.Close()

	// Ledger gateway.
	var gateway ledger.Gateway
	switch cfg.LedgerBackend {
	case "fabric":
		gateway = ledgerfabric.NewGateway(cfg.WalletPath)
	case "memory":
		memGateway := ledgermem.NewGateway()
		seedDevIdentities(memGateway)
		gateway = memGateway
		log.Warn("using in-memory ledger, state is not durable")
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	// Federation routing.
	table := network.DefaultTable()
	if cfg.NetworkProfilesPath != "" {
		table, err = network.LoadTable(cfg.NetworkProfilesPath)
		if err != nil {
			return fmt.Errorf("load network profiles: %w", err)
		}
	}
	router, err := network.NewRouter(table)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	pool := ledger.NewPool(gateway, ledger.PoolConfig{
		SubmitTimeout:   cfg.SubmitTimeout,
		EvaluateTimeout: cfg.EvaluateTimeout,
	}, m)
	defer pool.Close()

	// Mirror worker, started before the HTTP listener so no committed write
	// can observe a dead queue. It runs on its own context: the signal that
	// stops the listener must not stop the worker while in-flight requests are
	// still committing ledger writes.
	worker := outbox.NewWorker(store, 256, log, m,
		outbox.WithRetryLimit(cfg.MirrorRetryLimit),
		outbox.WithAudit(auditPub),
	)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = worker.Run(workerCtx)
	}()

	service := registry.NewService(pool, router, store, worker,
		registry.WithCache(verifyCache),
		registry.WithAudit(auditPub),
		registry.WithMetrics(m),
		registry.WithLogger(log),
		registry.WithIndexBreaker(circuit.NewBreaker(5, 30*time.Second)),
		registry.WithIndexTimeout(cfg.IndexTimeout),
	)

	handler := httptransport.New(service, log)
	adminHandler := httptransport.NewAdmin(service, cfg.NetworkProfilesPath, log)
	jwtValidator := middleware.NewJWTValidator(cfg.JWTSigningKey)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(
		handler, adminHandler, jwtValidator, log, cfg.SubmitTimeout+30*time.Second))

	errCh := make(chan error, 1)
	go func() {
		log.Info("landledger listening",
			"addr", cfg.Addr,
			"ledger_backend", cfg.LedgerBackend,
			"index_backend", cfg.IndexBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Only now stop the worker: every request the listener drained has had
	// its chance to enqueue, and the worker empties the inbox before exiting.
	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(15 * time.Second):
		log.Error("mirror worker did not finish draining")
	}
	return nil
}

// seedDevIdentities provisions wallet credentials for local development. The
// fabric backend reads real wallets instead.
func seedDevIdentities(g *ledgermem.Gateway) {
	for _, id := range []domain.Identity{
		{Name: "registrar1", Organization: "Telangana", Role: domain.RoleRegistrar},
		{Name: "registrar2", Organization: "Karnataka", Role: domain.RoleRegistrar},
		{Name: "citizen1", Organization: "Telangana", Role: domain.RoleCitizen},
		{Name: "admin1", Organization: "Federation", Role: domain.RoleAdmin},
	} {
		g.RegisterIdentity(id)
	}
}
