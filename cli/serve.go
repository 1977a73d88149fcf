package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"backend_inventory/api"
	"backend_inventory/database"
	"backend_inventory/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP сервер",
	Long:  `Запускает HTTP API, планировщик ремонта журнала и очистки аудита.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.cfg
	cfg.LogConfig(app.logger)

	if err := database.AutoMigrate(app.db); err != nil {
		return fmt.Errorf("ошибка миграции: %w", err)
	}
	if err := database.CreateLedgerIndexes(app.db); err != nil {
		return err
	}
	if err := app.wire(); err != nil {
		return err
	}

	if cfg.Maintenance.ReconcileEnabled {
		if err := app.scheduler.Start(cfg.Maintenance.ReconcileSchedule); err != nil {
			return err
		}
		defer app.scheduler.Stop()
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(api.RouterDeps{
		Config:  cfg,
		Auth:    middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer),
		Redis:   app.redis,
		Devices: api.NewDeviceAPI(app.devices, app.listing, app.export, app.documents, app.directory, app.logger),
		Relay:   api.NewRelayAPI(app.relay, cfg.Relay.WebhookSecret, app.logger),
		Admin:   api.NewAdminAPI(app.engine, app.logger),
	})

	server := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Printf("🚀 Сервер запущен на порту %s", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
	case <-ctx.Done():
	}

	app.logger.Println("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
