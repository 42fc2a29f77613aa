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

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Catalog   CatalogConfig
	Storage   StorageConfig
	Upload    UploadConfig
	Session   SessionConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type DatabaseConfig struct {
	Driver     string // postgres, sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret    string
	AdminRole string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// CatalogConfig points at the upstream catalog REST API.
type CatalogConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

type StorageConfig struct {
	Driver    string // local, s3
	LocalDir  string
	URLPrefix string
	S3        S3Config
}

type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string // CloudFront or S3 direct URL
}

type UploadConfig struct {
	MaxImageBytes     int64
	MaxImagesPerColor int
	MaxImportBytes    int64
}

type SessionConfig struct {
	DetailSessionTTL time.Duration
	DraftTTL         time.Duration
	ImportBatchTTL   time.Duration
	VocabularyTTL    time.Duration
}

type SchedulerConfig struct {
	Enabled           bool
	SweepSpec         string
	VocabularyRefresh string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "admin"),
			Password:   getEnv("DB_PASSWORD", "1234"),
			DBName:     getEnv("DB_NAME", "catalog_admin"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "catalog_admin.db"),
		},
		Redis: RedisConfig{
			Enabled:  parseBool(getEnv("REDIS_ENABLED", "true")),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "your-secret-key"),
			AdminRole: getEnv("JWT_ADMIN_ROLE", "admin"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Catalog: CatalogConfig{
			BaseURL:      getEnv("CATALOG_API_BASE_URL", "http://localhost:9000/api"),
			ServiceToken: getEnv("CATALOG_API_TOKEN", ""),
			Timeout:      parseDuration(getEnv("CATALOG_API_TIMEOUT", "30s"), 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:    getEnv("STORAGE_DRIVER", "local"),
			LocalDir:  getEnv("STORAGE_LOCAL_DIR", "./uploads"),
			URLPrefix: getEnv("STORAGE_URL_PREFIX", "http://localhost:8080/uploads"),
			S3: S3Config{
				Region:          getEnv("AWS_REGION", "ap-northeast-2"),
				Bucket:          getEnv("AWS_S3_BUCKET", "catalog-admin-staging"),
				Prefix:          getEnv("AWS_S3_PREFIX", "staged"),
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
			},
		},
		Upload: UploadConfig{
			MaxImageBytes:     int64(parseInt(getEnv("UPLOAD_MAX_IMAGE_BYTES", "5242880"), 5<<20)),
			MaxImagesPerColor: parseInt(getEnv("UPLOAD_MAX_IMAGES_PER_COLOR", "5"), 5),
			MaxImportBytes:    int64(parseInt(getEnv("UPLOAD_MAX_IMPORT_BYTES", "104857600"), 100<<20)),
		},
		Session: SessionConfig{
			DetailSessionTTL: parseDuration(getEnv("DETAIL_SESSION_TTL", "30m"), 30*time.Minute),
			DraftTTL:         parseDuration(getEnv("DRAFT_TTL", "72h"), 72*time.Hour),
			ImportBatchTTL:   parseDuration(getEnv("IMPORT_BATCH_TTL", "24h"), 24*time.Hour),
			VocabularyTTL:    parseDuration(getEnv("VOCABULARY_TTL", "10m"), 10*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:           parseBool(getEnv("SCHEDULER_ENABLED", "true")),
			SweepSpec:         getEnv("SCHEDULER_SWEEP_SPEC", "*/5 * * * *"),
			VocabularyRefresh: getEnv("SCHEDULER_VOCABULARY_SPEC", "*/10 * * * *"),
		},
	}

	if config.Catalog.BaseURL == "" {
		return nil, fmt.Errorf("CATALOG_API_BASE_URL is required")
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func parseSlice(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
