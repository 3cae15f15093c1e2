package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/escrow-hub/internal/api"
	"github.com/example/escrow-hub/internal/config"
	"github.com/example/escrow-hub/internal/escrow"
	"github.com/example/escrow-hub/internal/store"
	"github.com/example/escrow-hub/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// The bank side of the ledger lives in the host platform; this process
	// only records the transfer intent.
	bank := escrow.BankFunc(func(ctx context.Context, to escrow.AccountID, amount uint64) error {
		logger.Info("native transfer requested", "to", string(to), "amount", amount)
		return nil
	})

	engine, err := escrow.Open(ctx, st, bank)
	if errors.Is(err, escrow.ErrNotInitialised) {
		if cfg.AdminAccount == "" {
			logger.Error("store is empty and ADMIN_ACCOUNT is unset")
			os.Exit(1)
		}
		engine, err = escrow.New(ctx, escrow.AccountID(cfg.AdminAccount), st, bank)
	}
	if err != nil {
		logger.Error("failed to start escrow engine", "error", err)
		os.Exit(1)
	}

	journal := audit.NewJournal()
	engine.SetEmitter(journalEmitter{journal: journal, logger: logger})

	router := api.NewRouter(api.Dependencies{
		Logger:  logger,
		Escrow:  engine,
		Auditor: journal,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("escrow hub listening", "addr", cfg.ListenAddr, "driver", cfg.StoreDriver, "admin", string(engine.Config().Admin))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (escrow.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewPostgres(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	default:
		return store.NewMemory(), func() {}, nil
	}
}

// journalEmitter mirrors every engine event into the hash-chained journal and
// the structured log.
type journalEmitter struct {
	journal *audit.Journal
	logger  *slog.Logger
}

func (e journalEmitter) Emit(ev escrow.Event) {
	e.journal.Append(eventPayload(ev))
	e.logger.Info("escrow event", "type", ev.EventType())
}

func eventPayload(ev escrow.Event) string {
	switch v := ev.(type) {
	case escrow.VendorCreated:
		return v.EventType() + " caller=" + string(v.Caller)
	case escrow.ListingCreated:
		return v.EventType() + " id=" + strconv.FormatUint(uint64(v.ID), 10) + " vendor=" + string(v.Vendor)
	case escrow.OrderCreated:
		return v.EventType() + " id=" + strconv.FormatUint(v.ID, 10) + " buyer=" + string(v.Buyer) + " vendor=" + string(v.Vendor)
	case escrow.OrderUpdated:
		return v.EventType() + " id=" + strconv.FormatUint(v.ID, 10) + " status=" + v.Status.String()
	default:
		return ev.EventType()
	}
}
