package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	// Основные настройки приложения
	App AppConfigStruct `json:"app"`

	// База данных
	Database DatabaseConfig `json:"database"`

	// Redis
	Redis RedisConfig `json:"redis"`

	// Кэш списков устройств
	Cache CacheConfig `json:"cache"`

	// JWT
	JWT JWTConfig `json:"jwt"`

	// Движок назначений
	Engine EngineConfig `json:"engine"`

	// Ретранслятор изменений внешнего справочника
	Relay RelayConfig `json:"relay"`

	// Плановое обслуживание журнала
	Maintenance MaintenanceConfig `json:"maintenance"`

	// CORS
	CORS CORSConfig `json:"cors"`

	// Хранилище документов и схем
	Storage StorageConfig `json:"storage"`

	// Логирование
	Logging LoggingConfig `json:"logging"`

	// Внешние сервисы
	External ExternalConfig `json:"external"`
}

type AppConfigStruct struct {
	Env     string `json:"env"`
	Port    string `json:"port"`
	Host    string `json:"host"`
	BaseURL string `json:"base_url"`
	Version string `json:"version"`
	Debug   bool   `json:"debug"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Host     string        `json:"host"`
	Port     string        `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	URL      string        `json:"url"`
	Timeout  time.Duration `json:"timeout"`
	MaxConns int           `json:"max_connections"`
}

type CacheConfig struct {
	ListingTTL time.Duration `json:"listing_ttl"`
	KeyPrefix  string        `json:"key_prefix"`
}

type JWTConfig struct {
	Secret string `json:"secret"`
	Issuer string `json:"issuer"`
}

type EngineConfig struct {
	OperationTimeout   time.Duration `json:"operation_timeout"`
	MaxConflictRetries int           `json:"max_conflict_retries"`
	RejectSameHolder   bool          `json:"reject_same_holder"`
}

type RelayConfig struct {
	WebhookSecret     string        `json:"webhook_secret"`
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
}

type MaintenanceConfig struct {
	ReconcileEnabled   bool   `json:"reconcile_enabled"`
	ReconcileSchedule  string `json:"reconcile_schedule"`
	AuditRetentionDays int    `json:"audit_retention_days"`
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type StorageConfig struct {
	DocumentsDir    string `json:"documents_dir"`
	MaxUploadSize   int64  `json:"max_upload_size"`
	KindSchemasFile string `json:"kind_schemas_file"`
}

// Форматы строк журнала операций
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

type ExternalConfig struct {
	// Telegram (уведомления о поломках)
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	// Загружаем .env файл если он существует
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	config := &Config{
		App: AppConfigStruct{
			Env:     getEnv("APP_ENV", "development"),
			Port:    getEnv("APP_PORT", "8080"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			BaseURL: getEnv("BACKEND_URL", "http://localhost:8080"),
			Version: getEnv("API_VERSION", "v1"),
			Debug:   getEnvBool("DEBUG_MODE", false),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "inventory_db"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			URL:      getEnv("REDIS_URL", ""),
			Timeout:  getEnvDuration("REDIS_TIMEOUT", 5*time.Second),
			MaxConns: getEnvInt("REDIS_MAX_CONNECTIONS", 10),
		},
		Cache: CacheConfig{
			ListingTTL: getEnvDuration("CACHE_LISTING_TTL", 300*time.Second),
			KeyPrefix:  getEnv("CACHE_KEY_PREFIX", "inventory"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		Engine: EngineConfig{
			OperationTimeout:   getEnvDuration("ENGINE_OPERATION_TIMEOUT", 5*time.Second),
			MaxConflictRetries: getEnvInt("ENGINE_MAX_CONFLICT_RETRIES", 3),
			RejectSameHolder:   getEnvBool("ENGINE_REJECT_SAME_HOLDER", false),
		},
		Relay: RelayConfig{
			WebhookSecret:     getEnv("RELAY_WEBHOOK_SECRET", ""),
			RateLimitRequests: getEnvInt("RELAY_RATE_LIMIT_REQUESTS", 600),
			RateLimitWindow:   getEnvDuration("RELAY_RATE_LIMIT_WINDOW", time.Minute),
		},
		Maintenance: MaintenanceConfig{
			ReconcileEnabled:   getEnvBool("RECONCILE_ENABLED", true),
			ReconcileSchedule:  getEnv("RECONCILE_SCHEDULE", "0 3 * * *"),
			AuditRetentionDays: getEnvInt("AUDIT_RETENTION_DAYS", 365),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400),
		},
		Storage: StorageConfig{
			DocumentsDir:    getEnv("DOCUMENTS_DIR", "./uploads/documents"),
			MaxUploadSize:   int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 20)) << 20,
			KindSchemasFile: getEnv("KIND_SCHEMAS_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", LogFormatJSON),
			File:   getEnv("LOG_FILE", ""),
		},
		External: ExternalConfig{
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
	}

	// Валидация критически важных настроек
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	// Проверяем обязательные поля для продакшена
	if c.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
		if c.Relay.WebhookSecret == "" {
			return fmt.Errorf("RELAY_WEBHOOK_SECRET is required in production")
		}
	}

	// Проверяем в любом окружении
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER cannot be empty")
	}
	if c.Cache.ListingTTL <= 0 {
		return fmt.Errorf("CACHE_LISTING_TTL must be positive")
	}
	if c.Engine.OperationTimeout <= 0 {
		return fmt.Errorf("ENGINE_OPERATION_TIMEOUT must be positive")
	}
	if c.Engine.MaxConflictRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_CONFLICT_RETRIES cannot be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "silent":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, silent")
	}
	switch c.Logging.Format {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

// Вспомогательные функции для получения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Warning: Invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Printf("Warning: Invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: Invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшене
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// GetDatabaseDSN возвращает строку подключения к БД
func (c *Config) GetDatabaseDSN() string {
	return c.databaseDSN(c.Database.Name)
}

// GetAdminDatabaseDSN возвращает строку подключения к служебной БД postgres
func (c *Config) GetAdminDatabaseDSN() string {
	return c.databaseDSN("postgres")
}

func (c *Config) databaseDSN(name string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, name, c.Database.SSLMode)
}

// GetRedisAddr возвращает адрес Redis
func (c *Config) GetRedisAddr() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// LogConfig выводит конфигурацию в лог (без секретных данных)
func (c *Config) LogConfig(logger *log.Logger) {
	logger.Printf("=== Application Configuration ===")
	logger.Printf("Environment: %s", c.App.Env)
	logger.Printf("Port: %s", c.App.Port)
	logger.Printf("Database Host: %s:%s", c.Database.Host, c.Database.Port)
	logger.Printf("Database Name: %s", c.Database.Name)
	logger.Printf("Redis Enabled: %t (%s)", c.Redis.Enabled, c.GetRedisAddr())
	logger.Printf("Listing Cache TTL: %v", c.Cache.ListingTTL)
	logger.Printf("Engine Timeout: %v, Conflict Retries: %d", c.Engine.OperationTimeout, c.Engine.MaxConflictRetries)
	logger.Printf("Reconcile: %t (%s)", c.Maintenance.ReconcileEnabled, c.Maintenance.ReconcileSchedule)
	logger.Printf("Log Level: %s, Format: %s", c.Logging.Level, c.Logging.Format)
	logger.Printf("Debug Mode: %t", c.App.Debug)
	logger.Printf("================================")
}
