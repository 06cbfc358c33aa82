package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"headlines/internal/config"
	"headlines/internal/content"
	"headlines/internal/server"
	"headlines/internal/store"
	"headlines/web"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server and the background refresh loop",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, release, err := loadConfig()
	if err != nil {
		return err
	}
	defer release()

	content.SetImageBounds(cfg.Content.MaxImageWidth, cfg.Content.MaxImageHeight)

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := db.Close()
		if closeErr != nil {
			slog.Warn("db close failed", "err", closeErr)
		}
	}()

	tmpl, err := web.Templates()
	if err != nil {
		return err
	}

	app := server.New(db, tmpl, serverOptions(cfg))
	app.SetStaticFS(web.Static())

	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.StartBackgroundLoops(ctx)

	// No write timeout: /ws/messages connections stay open.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           app.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("headlines running", "addr", srv.Addr, "db", cfg.DBPath, "env_files", cfg.EnvFiles)

		listenErr := srv.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errCh <- listenErr
		}

		close(errCh)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	slog.Info("headlines shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.Close()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func openStore(path string) (*sql.DB, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = store.Init(db)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("init database: %w", err)
	}

	return db, nil
}

func serverOptions(cfg config.Config) server.Options {
	return server.Options{
		DefaultInterval:  cfg.Refresh.DefaultInterval,
		RefreshInterval:  cfg.Refresh.LoopInterval,
		SessionTTL:       cfg.Notify.SessionTTL,
		BeaconInterval:   cfg.Beacon.Interval,
		RefreshBatchSize: cfg.Refresh.BatchSize,
		BoringThreshold:  cfg.Items.BoringThreshold,
	}
}
