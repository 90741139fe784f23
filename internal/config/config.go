package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Bot          BotConfig
	Watchdog     WatchdogConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	DefaultPhoneRegion    string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	QueryTimeout   time.Duration
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	StateTTL       time.Duration
	ConnectTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level          string
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

// AuthConfig defines API token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// BotConfig configures the chat bot adapter.
type BotConfig struct {
	Token          string
	PrivateGroupID string
	OwnerIDs       []int64
	PollTimeout    int
	Debug          bool
}

// WatchdogConfig configures the missed-response sweep.
type WatchdogConfig struct {
	Enabled         bool
	Interval        time.Duration
	ResponseTimeout time.Duration
	BatchSize       int
}

// NotificationConfig controls the async delivery queue.
type NotificationConfig struct {
	QueueSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ownerIDs, err := parseIDList(os.Getenv("BOT_OWNER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_OWNER_IDS: %w", err)
	}

	interval, err := getEnvAsDuration("WATCHDOG_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	responseTimeout, err := getEnvAsDuration("WATCHDOG_RESPONSE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	queryTimeout, err := getEnvAsDuration("POSTGRES_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	stateTTL, err := getEnvAsDuration("REDIS_STATE_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	redisTimeout, err := getEnvAsDuration("REDIS_CONNECT_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			DefaultPhoneRegion:    strings.ToUpper(getEnv("APP_DEFAULT_PHONE_REGION", "RU")),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			QueryTimeout:   queryTimeout,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			StateTTL:       stateTTL,
			ConnectTimeout: redisTimeout,
		},
		Logger: LoggerConfig{
			Level:          getEnv("LOG_LEVEL", "info"),
			FilePath:       os.Getenv("LOG_FILE_PATH"),
			FileMaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			FileMaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			FileMaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Bot: BotConfig{
			Token:          os.Getenv("BOT_TOKEN"),
			PrivateGroupID: os.Getenv("BOT_PRIVATE_GROUP_ID"),
			OwnerIDs:       ownerIDs,
			PollTimeout:    getEnvAsInt("BOT_POLL_TIMEOUT_SECONDS", 30),
			Debug:          getEnvAsBool("BOT_DEBUG", false),
		},
		Watchdog: WatchdogConfig{
			Enabled:         getEnvAsBool("WATCHDOG_ENABLED", true),
			Interval:        interval,
			ResponseTimeout: responseTimeout,
			BatchSize:       getEnvAsInt("WATCHDOG_BATCH_SIZE", 500),
		},
		Notification: NotificationConfig{
			QueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the JWT lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// GroupChatID returns the private group chat id, adding the supergroup
// prefix when it was configured without one. Zero means no group.
func (b BotConfig) GroupChatID() (int64, error) {
	raw := strings.TrimSpace(b.PrivateGroupID)
	if raw == "" {
		return 0, nil
	}
	if !strings.HasPrefix(raw, "-100") {
		raw = "-100" + strings.TrimPrefix(raw, "-")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return parsed, nil
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
