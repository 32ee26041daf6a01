package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"scanhub/internal/identity"
	"scanhub/internal/legacy"
	"scanhub/internal/pairing"
	pairingservice "scanhub/internal/pairing/service"
	pairingstore "scanhub/internal/pairing/store"
	"scanhub/internal/platform/config"
	"scanhub/internal/platform/httpserver"
	"scanhub/internal/platform/logger"
	"scanhub/internal/platform/metrics"
	"scanhub/internal/platform/postgres"
	"scanhub/internal/session"
	"scanhub/internal/token"
	httptransport "scanhub/internal/transport/http"
	"scanhub/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store initialization failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	directory := legacy.StaticDirectory{}
	sink := legacy.NewSimulatedSink(cfg.LegacyMinLatency, cfg.LegacyMaxLatency, cfg.LegacyFailureRate, log)
	reconciler := legacy.NewReconciler(sink, store, log, m)

	events := session.NewBroadcaster(log, m)
	registry := session.NewRegistry(events, pairing.HintSource{Store: store}, log, m)
	pairings := pairingservice.New(registry, events, store, reconciler, log, m)

	tokens := token.NewService(cfg.JWTSigningKey, "scanhub", cfg.TokenTTL)
	resolver := identity.NewResolver(tokens, directory)

	realtime := ws.NewHandler(registry, pairings, resolver, log)
	auth := httptransport.NewAuthHandler(directory, tokens, log)
	history := httptransport.NewHistoryHandler(store, log)
	router := httptransport.NewRouter(auth, history, realtime)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting scanhub", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		reconciler.Abandon()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// openStore selects the persistence backend. Without DATABASE_URL the process
// runs on the in-memory store, which is enough for local dashboards and tests
// but loses history on restart.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (pairing.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("no DATABASE_URL set, using in-memory store")
		return pairingstore.NewMemory(), nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	st := pairingstore.NewPostgres(db)
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	log.Info("connected to postgres")
	return st, nil
}
