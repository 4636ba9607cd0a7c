package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	// Application
	Port            string
	AppEnv          string
	LogLevel        slog.Level
	SentryDSN       string
	PublicURL       string
	ShutdownTimeout time.Duration

	// Reference store
	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	BadgerDir     string
	SQLDSN        string
	CacheSize     int
	CacheTTL      time.Duration

	// Expiry and codes
	ExpiryMode      string
	ExpiryTTL       time.Duration
	SweepInterval   time.Duration
	CodeMaxAttempts int
	CodeMaxDigits   int

	// Downloads
	PreferOriginalName    bool
	DownloadRatePerMinute int

	// Media platform
	PlatformBaseURL         string
	PlatformAPIVersion      string
	PlatformToken           string
	PlatformPhoneNumberID   string
	PlatformAPITimeout      time.Duration
	PlatformDownloadTimeout time.Duration
	WebhookVerifyToken      string

	// Media archive (MinIO)
	ArchiveEnabled bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Extension table overrides, MIME type -> extension
	MimeTable map[string]string

	// Admin
	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string
}

// Load reads the configuration from the environment, loading .env first
// when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		AppEnv:                getEnv("APP_ENV", "development"),
		SentryDSN:             getEnv("SENTRY_DSN", ""),
		PublicURL:             strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		StoreBackend:          strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		MongoURI:              getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:         getEnv("MONGO_DATABASE", "mediadrop"),
		BadgerDir:             getEnv("BADGER_DIR", "./data/badger"),
		SQLDSN:                getEnv("SQL_DSN", "./data/mediadrop.db"),
		ExpiryMode:            strings.ToLower(getEnv("EXPIRY_MODE", "ttl")),
		PlatformBaseURL:       strings.TrimRight(getEnv("PLATFORM_BASE_URL", "https://graph.facebook.com"), "/"),
		PlatformAPIVersion:    getEnv("PLATFORM_API_VERSION", "v19.0"),
		PlatformToken:         getEnv("PLATFORM_TOKEN", ""),
		PlatformPhoneNumberID: getEnv("PLATFORM_PHONE_NUMBER_ID", ""),
		WebhookVerifyToken:    getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		MinioEndpoint:         getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:        getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:        getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:           getEnv("MINIO_BUCKET", "mediadrop"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		AdminUsername:         getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:     getEnv("ADMIN_PASSWORD_HASH", ""),
	}

	var err error
	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.CacheSize, err = getEnvInt("STORE_CACHE_SIZE", 0); err != nil {
		return nil, fmt.Errorf("STORE_CACHE_SIZE: %w", err)
	}
	if cfg.CacheTTL, err = getEnvDuration("STORE_CACHE_TTL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("STORE_CACHE_TTL: %w", err)
	}

	ttlSeconds, err := getEnvInt("EXPIRY_TTL_SECONDS", 600)
	if err != nil {
		return nil, fmt.Errorf("EXPIRY_TTL_SECONDS: %w", err)
	}
	if ttlSeconds < 0 {
		return nil, fmt.Errorf("EXPIRY_TTL_SECONDS: must not be negative, got %d", ttlSeconds)
	}
	cfg.ExpiryTTL = time.Duration(ttlSeconds) * time.Second

	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	if cfg.CodeMaxAttempts, err = getEnvInt("CODE_MAX_ATTEMPTS", 8); err != nil {
		return nil, fmt.Errorf("CODE_MAX_ATTEMPTS: %w", err)
	}
	if cfg.CodeMaxDigits, err = getEnvInt("CODE_MAX_DIGITS", 6); err != nil {
		return nil, fmt.Errorf("CODE_MAX_DIGITS: %w", err)
	}
	if cfg.DownloadRatePerMinute, err = getEnvInt("DOWNLOAD_RATE_PER_MINUTE", 30); err != nil {
		return nil, fmt.Errorf("DOWNLOAD_RATE_PER_MINUTE: %w", err)
	}
	if cfg.PlatformAPITimeout, err = getEnvDuration("PLATFORM_API_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("PLATFORM_API_TIMEOUT: %w", err)
	}
	if cfg.PlatformDownloadTimeout, err = getEnvDuration("PLATFORM_DOWNLOAD_TIMEOUT", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("PLATFORM_DOWNLOAD_TIMEOUT: %w", err)
	}
	if cfg.ArchiveEnabled, err = getEnvBool("ARCHIVE_ENABLED", false); err != nil {
		return nil, fmt.Errorf("ARCHIVE_ENABLED: %w", err)
	}
	if cfg.MinioUseSSL, err = getEnvBool("MINIO_USE_SSL", false); err != nil {
		return nil, fmt.Errorf("MINIO_USE_SSL: %w", err)
	}

	switch name := strings.ToLower(getEnv("DOWNLOAD_FILENAME", "code")); name {
	case "code":
	case "original":
		cfg.PreferOriginalName = true
	default:
		return nil, fmt.Errorf("DOWNLOAD_FILENAME: unknown value %q, expected code or original", name)
	}

	if path := getEnv("MIME_TABLE_FILE", ""); path != "" {
		if cfg.MimeTable, err = LoadMimeTable(path); err != nil {
			return nil, fmt.Errorf("MIME_TABLE_FILE: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendMongo, BackendBadger, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend)
	}
	if c.ExpiryMode != "ttl" && c.ExpiryMode != "consume-once" {
		return fmt.Errorf("EXPIRY_MODE: unknown mode %q, expected ttl or consume-once", c.ExpiryMode)
	}
	if c.ExpiryMode == "ttl" && c.ExpiryTTL == 0 {
		return fmt.Errorf("EXPIRY_TTL_SECONDS: must be positive in ttl mode")
	}
	if c.CodeMaxAttempts < 1 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS: must be at least 1")
	}
	if c.CodeMaxDigits < 4 || c.CodeMaxDigits > 9 {
		return fmt.Errorf("CODE_MAX_DIGITS: must be between 4 and 9")
	}
	return nil
}

// LoadMimeTable reads a YAML mapping of MIME type to file extension.
func LoadMimeTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mime table: %w", err)
	}
	table := map[string]string{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse mime table: %w", err)
	}
	for mimeType, ext := range table {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			table[mimeType] = "." + ext
		}
	}
	return table, nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go format: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", val)
	}
	return b, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", level)
	}
}
