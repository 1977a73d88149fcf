package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	redis "github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"backend_inventory/config"
	"backend_inventory/database"
	"backend_inventory/metrics"
	"backend_inventory/services"
)

// application собранные зависимости процесса
type application struct {
	cfg    *config.Config
	logger *log.Logger
	db     *gorm.DB
	redis  *redis.Client

	directory services.UserDirectory
	cache     services.ListingCache
	audit     *services.AuditService
	engine    *services.AssignmentEngine
	devices   *services.DeviceService
	listing   *services.ListingService
	export    *services.ExportService
	relay     *services.RelayService
	documents *services.DocumentStore
	scheduler *services.MaintenanceScheduler

	logFile io.Closer
}

// newLogger создает логгер; при LOG_FILE пишет и в файл
func newLogger(cfg *config.Config) (*log.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("не удалось открыть файл логов: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	return log.New(out, "[inventory] ", log.LstdFlags), closer, nil
}

// bootstrap загружает конфигурацию и подключается к хранилищам
func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.App.Debug = true
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, logger: logger, logFile: logFile}

	if err := database.CreateDatabaseIfNotExists(cfg); err != nil {
		app.Close()
		return nil, err
	}
	app.db, err = database.ConnectDatabase(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, cfg)
		if err != nil {
			// Без Redis списки читаются из базы
			logger.Printf("⚠️ Redis недоступен, используется кэш в памяти: %v", err)
		} else {
			app.redis = client
		}
	}

	return app, nil
}

// wire создает сервисы поверх подключений
func (app *application) wire() error {
	cfg := app.cfg
	metrics.Init()

	schemas, err := config.LoadKindSchemas(cfg.Storage.KindSchemasFile)
	if err != nil {
		return err
	}

	if app.redis != nil {
		app.cache = services.NewRedisListingCache(app.redis, cfg.Cache.KeyPrefix, app.logger)
	} else {
		app.cache = services.NewMemoryListingCache()
	}

	app.directory = services.NewDBUserDirectory(app.db)
	app.audit = services.NewAuditService(app.db, app.logger)

	var notifier services.BrokenDeviceNotifier
	if cfg.External.TelegramBotToken != "" && cfg.External.TelegramChatID != "" {
		telegram, err := services.NewTelegramClient(cfg.External.TelegramBotToken, cfg.External.TelegramChatID, app.logger)
		if err != nil {
			app.logger.Printf("⚠️ Уведомления Telegram отключены: %v", err)
		} else {
			notifier = telegram
		}
	}

	app.engine = services.NewAssignmentEngine(app.db, app.directory, app.cache, app.audit, notifier, app.logger, services.EngineOptions{
		OperationTimeout:   cfg.Engine.OperationTimeout,
		MaxConflictRetries: cfg.Engine.MaxConflictRetries,
		RejectSameHolder:   cfg.Engine.RejectSameHolder,
		LogFormat:          cfg.Logging.Format,
	})
	app.devices = services.NewDeviceService(app.db, app.engine, app.directory, app.cache, app.audit, schemas, app.logger)
	app.listing = services.NewListingService(app.db, app.cache, cfg.Cache.ListingTTL, app.logger)
	app.export = services.NewExportService(app.listing, app.devices, app.logger)
	app.relay = services.NewRelayService(app.db, app.directory, app.cache, app.logger)
	app.documents = services.NewDocumentStore(cfg.Storage.DocumentsDir, cfg.Storage.MaxUploadSize)
	app.scheduler = services.NewMaintenanceScheduler(app.engine, app.audit, cfg.Maintenance.AuditRetentionDays, app.logger)

	return nil
}

// Close освобождает подключения
func (app *application) Close() {
	if app.redis != nil {
		app.redis.Close()
	}
	if app.db != nil {
		if sqlDB, err := app.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if app.logFile != nil {
		app.logFile.Close()
	}
}
