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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sqliteadapter "github.com/centroplan/pvpanel/internal/adapter/driven/sqlite"
	"github.com/centroplan/pvpanel/internal/adapter/driven/supabase"
	httphandler "github.com/centroplan/pvpanel/internal/adapter/driving/http"
	webhandler "github.com/centroplan/pvpanel/internal/adapter/driving/web"
	"github.com/centroplan/pvpanel/internal/application"
	"github.com/centroplan/pvpanel/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing backend credentials).
	// The Supabase key is deliberately absent from this log line.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"supabase_url", cfg.SupabaseURL,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sites_refresh", cfg.SitesRefresh,
		"clients_refresh", cfg.ClientsRefresh,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the mirror database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	backend, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
	if err != nil {
		return err
	}
	siteStore := sqliteadapter.NewSiteRepo(db)
	clientStore := sqliteadapter.NewClientRepo(db)

	// 6. Create and start the sync service.
	syncSvc := application.NewSyncService(backend, siteStore, clientStore, cfg.SitesRefresh, cfg.ClientsRefresh)
	go syncSvc.Start(ctx)

	// 7. Create the site service.
	siteSvc := application.NewSiteService(backend, siteStore, clientStore, syncSvc)

	// 8. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(siteSvc, syncSvc, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	// 9. Create web handler and register GUI routes.
	webHandler := webhandler.NewHandler(siteSvc, syncSvc, slog.Default())
	webhandler.RegisterRoutes(mux, webHandler)

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 10. Log startup complete.
	slog.Info("pvpanel started",
		"listen_addr", cfg.ListenAddr,
		"sites_refresh", cfg.SitesRefresh,
		"clients_refresh", cfg.ClientsRefresh,
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 12. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 13. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}
