package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alphauslabs/buckshot/internal/vault"
)

// Config represents the complete server configuration.
type Config struct {
	// ServerPort is the port the server listens on.
	ServerPort string

	// AllowedOrigins lists dashboard origins accepted by the CORS middleware.
	AllowedOrigins []string

	// WorkerID identifies this instance for task leases and health sharding.
	WorkerID string

	// EncryptionKey is the 64-character hex key for the credential vault.
	EncryptionKey string

	// TemplatesPath optionally points at a JSON file of templates to seed.
	TemplatesPath string

	Database   DatabaseConfig
	Queue      QueueConfig
	Storage    StorageConfig
	Platform   PlatformConfig
	Pool       PoolConfig
	Health     HealthConfig
	Executor   ExecutorConfig
	Dispatcher DispatcherConfig
	Reconciler ReconcilerConfig
}

// DatabaseConfig contains database connection configuration.
type DatabaseConfig struct {
	// Provider is the database provider ("spanner", "sqlite").
	Provider string

	// ProjectID is used by GCP Spanner.
	ProjectID string

	// Instance is the database instance name (Spanner-specific).
	Instance string

	// Database is the database name.
	Database string

	// Path is the database file (SQLite-specific).
	Path string
}

// QueueConfig configures task delivery.
type QueueConfig struct {
	// Provider is the queue provider ("spanner", "memory").
	Provider          string
	MaxDeliveries     int
	BatchSize         int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
}

// StorageConfig locates source videos.
type StorageConfig struct {
	// Provider is the object store ("gcs", "dir").
	Provider string

	// Bucket is the GCS bucket holding uploads.
	Bucket string

	// Dir is the local root directory (dir-specific).
	Dir string
}

// PlatformConfig selects the publishing platform.
type PlatformConfig struct {
	// Provider is the platform name ("youtube").
	Provider string

	// CategoryID is the platform category new videos are filed under.
	CategoryID string
}

// PoolConfig holds account eviction policy.
type PoolConfig struct {
	// StrikeThreshold is the strike count an account must exceed to become dead.
	StrikeThreshold int
	// AutoDeleteAfter is how long a dead account lingers before soft-deletion.
	AutoDeleteAfter time.Duration
	// ProjectBanThreshold demotes a project to error once this many of its
	// accounts are banned or revoked. Zero disables the check.
	ProjectBanThreshold int
}

// HealthConfig configures scheduled account probes.
type HealthConfig struct {
	// UploadLimitCooldown is how long an upload_limit account rests before a
	// healthy check may restore it.
	UploadLimitCooldown time.Duration
	CheckInterval       time.Duration
	// Peers lists every worker ID sharing health checks, including this one.
	Peers []string
}

// ExecutorConfig bounds a single task execution.
type ExecutorConfig struct {
	MaxAttempts    int
	UploadTimeout  time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DispatcherConfig bounds concurrent uploads.
type DispatcherConfig struct {
	Concurrency      int
	UploadsPerSecond float64
}

// ReconcilerConfig controls recovery of stalled work.
type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// LoadFromEnv loads configuration from environment variables.
// This follows the 12-factor app methodology for configuration.
func LoadFromEnv() (*Config, error) {
	config := &Config{
		ServerPort:     getEnvOrDefault("SERVER_PORT", "8080"),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		WorkerID:       getEnvOrDefault("WORKER_ID", defaultWorkerID()),
		EncryptionKey:  os.Getenv("ENCRYPTION_KEY"),
		TemplatesPath:  os.Getenv("TEMPLATES_PATH"),
		Database: DatabaseConfig{
			Provider:  getEnvOrDefault("DB_PROVIDER", "spanner"),
			ProjectID: os.Getenv("DB_PROJECT_ID"),
			Instance:  os.Getenv("DB_INSTANCE"),
			Database:  os.Getenv("DB_DATABASE"),
			Path:      getEnvOrDefault("DB_PATH", "data/buckshot.db"),
		},
		Queue: QueueConfig{
			Provider:          getEnvOrDefault("QUEUE_PROVIDER", "spanner"),
			MaxDeliveries:     getEnvAsInt("QUEUE_MAX_DELIVERIES", 10),
			BatchSize:         getEnvAsInt("QUEUE_BATCH_SIZE", 10),
			PollInterval:      getEnvAsDuration("QUEUE_POLL_INTERVAL", 2*time.Second),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 45*time.Minute),
		},
		Storage: StorageConfig{
			Provider: getEnvOrDefault("STORAGE_PROVIDER", "gcs"),
			Bucket:   os.Getenv("STORAGE_BUCKET"),
			Dir:      getEnvOrDefault("STORAGE_DIR", "data/uploads"),
		},
		Platform: PlatformConfig{
			Provider:   getEnvOrDefault("PLATFORM_PROVIDER", "youtube"),
			CategoryID: os.Getenv("PLATFORM_CATEGORY_ID"),
		},
		Pool: PoolConfig{
			StrikeThreshold:     getEnvAsInt("HEALTH_STRIKE_THRESHOLD", 0),
			AutoDeleteAfter:     getEnvAsDuration("ACCOUNT_AUTO_DELETE_AFTER", 7*24*time.Hour),
			ProjectBanThreshold: getEnvAsInt("PROJECT_BAN_THRESHOLD", 0),
		},
		Health: HealthConfig{
			UploadLimitCooldown: getEnvAsDuration("UPLOAD_LIMIT_COOLDOWN", 0),
			CheckInterval:       getEnvAsDuration("HEALTH_CHECK_INTERVAL", time.Hour),
			Peers:               getEnvAsList("HEALTH_PEERS", nil),
		},
		Executor: ExecutorConfig{
			MaxAttempts:    getEnvAsInt("TASK_MAX_ATTEMPTS", 5),
			UploadTimeout:  getEnvAsDuration("UPLOAD_TIMEOUT", 30*time.Minute),
			RetryBaseDelay: getEnvAsDuration("RETRY_BASE_DELAY", 30*time.Second),
			RetryMaxDelay:  getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Minute),
		},
		Dispatcher: DispatcherConfig{
			Concurrency:      getEnvAsInt("WORKER_CONCURRENCY", 4),
			UploadsPerSecond: getEnvAsFloat("UPLOADS_PER_SECOND", 1),
		},
		Reconciler: ReconcilerConfig{
			Interval:   getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
			StaleAfter: getEnvAsDuration("RECONCILE_STALE_AFTER", 50*time.Minute),
		},
	}

	if len(config.Health.Peers) == 0 {
		config.Health.Peers = []string{config.WorkerID}
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid for the selected providers.
func (c *Config) Validate() error {
	switch c.Database.Provider {
	case "spanner":
		if c.Database.ProjectID == "" {
			return fmt.Errorf("DB_PROJECT_ID is required for Spanner")
		}
		if c.Database.Instance == "" {
			return fmt.Errorf("DB_INSTANCE is required for Spanner")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("DB_DATABASE is required for Spanner")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for SQLite")
		}
	default:
		return fmt.Errorf("unsupported database provider: %s", c.Database.Provider)
	}

	switch c.Queue.Provider {
	case "spanner":
		if c.Database.Provider != "spanner" {
			return fmt.Errorf("QUEUE_PROVIDER=spanner requires DB_PROVIDER=spanner")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported queue provider: %s", c.Queue.Provider)
	}

	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required for GCS")
		}
	case "dir":
		if c.Storage.Dir == "" {
			return fmt.Errorf("STORAGE_DIR is required for dir storage")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Storage.Provider)
	}
	if err := vault.ValidateKey(c.EncryptionKey); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY is invalid: %w", err)
	}

	// Eviction policy has no safe default; operators must choose it.
	if c.Pool.StrikeThreshold <= 0 {
		return fmt.Errorf("HEALTH_STRIKE_THRESHOLD is required")
	}
	if c.Health.UploadLimitCooldown <= 0 {
		return fmt.Errorf("UPLOAD_LIMIT_COOLDOWN is required")
	}

	if c.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("TASK_MAX_ATTEMPTS must be positive")
	}
	if c.Queue.VisibilityTimeout <= c.Executor.UploadTimeout {
		return fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT (%s) must exceed UPLOAD_TIMEOUT (%s)",
			c.Queue.VisibilityTimeout, c.Executor.UploadTimeout)
	}
	if c.Dispatcher.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}

	return nil
}

func defaultWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "worker-unknown"
	}
	return hostname
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as an integer or a default if not set.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
