package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka event mirror configuration
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// Reservation engine knobs
	Reservation ReservationConfig
	Waitlist    WaitlistConfig
	Webhook     WebhookConfig
	Scheduler   SchedulerConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	CacheTTL time.Duration
}

// KafkaConfig holds Kafka mirror configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	JWTExpiresIn     time.Duration
	RefreshExpiresIn time.Duration
}

// ReservationConfig holds booking validation knobs
type ReservationConfig struct {
	MinDuration          time.Duration
	MaxDuration          time.Duration
	MaxBulkDuration      time.Duration
	DefaultReminderHours int
}

// WaitlistConfig holds waitlist offer knobs
type WaitlistConfig struct {
	OfferTTL time.Duration
}

// WebhookConfig holds webhook dispatcher knobs
type WebhookConfig struct {
	MaxRetries     int
	RetryDelays    []time.Duration
	RequestTimeout time.Duration
	Workers        int
	QueueSize      int
	SweepInterval  time.Duration
}

// SchedulerConfig holds lifecycle scheduler knobs
type SchedulerConfig struct {
	TickInterval time.Duration
	BatchSize    int
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "reserver_db"),
			User:     getEnv("DB_USER", "reserver_user"),
			Password: getEnv("DB_PASSWORD", "reserver_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 1*time.Hour),
		},

		// Kafka event mirror
		Kafka: KafkaConfig{
			Enabled: getBoolEnv("KAFKA_ENABLED", false),
			Brokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_EVENTS_TOPIC", "reservation-events"),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
			JWTExpiresIn:     getDurationEnvSeconds("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getDurationEnvSeconds("JWT_REFRESH_EXPIRES_IN", 24*time.Hour),
		},

		// Reservation engine knobs
		Reservation: ReservationConfig{
			MinDuration:          getDurationEnv("RESERVATION_MIN_DURATION", 15*time.Minute),
			MaxDuration:          getDurationEnv("RESERVATION_MAX_DURATION", 24*time.Hour),
			MaxBulkDuration:      getDurationEnv("RESERVATION_MAX_BULK_DURATION", 7*24*time.Hour),
			DefaultReminderHours: getIntEnv("REMINDER_HOURS_DEFAULT", 24),
		},
		Waitlist: WaitlistConfig{
			OfferTTL: getDurationEnv("WAITLIST_OFFER_TTL", 30*time.Minute),
		},
		Webhook: WebhookConfig{
			MaxRetries:     getIntEnv("WEBHOOK_MAX_RETRIES", 5),
			RetryDelays:    getDurationSliceEnv("WEBHOOK_RETRY_DELAYS", defaultWebhookDelays()),
			RequestTimeout: getDurationEnv("WEBHOOK_REQUEST_TIMEOUT", 30*time.Second),
			Workers:        getIntEnv("WEBHOOK_WORKERS", 8),
			QueueSize:      getIntEnv("WEBHOOK_QUEUE_SIZE", 256),
			SweepInterval:  getDurationEnv("WEBHOOK_SWEEP_INTERVAL", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			TickInterval: getDurationEnv("SCHEDULER_TICK_INTERVAL", 60*time.Second),
			BatchSize:    getIntEnv("SCHEDULER_BATCH_SIZE", 200),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

func defaultWebhookDelays() []time.Duration {
	return []time.Duration{
		60 * time.Second,
		300 * time.Second,
		900 * time.Second,
		3600 * time.Second,
		7200 * time.Second,
	}
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// getDurationSliceEnv gets a comma-separated list of durations
func getDurationSliceEnv(key string, fallback []time.Duration) []time.Duration {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []time.Duration
		for _, part := range parts {
			if d, err := time.ParseDuration(strings.TrimSpace(part)); err == nil {
				result = append(result, d)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
