package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Firebase
	FirebaseProjectID string
	FirebaseCredJSON  string

	// Push Notifications
	PushNotificationsEnabled bool // Kill switch: compose and log, but never call FCM
	PushDebugCurl            bool // Log a replayable curl command when a multicast send fails

	// Invocation limits, mirroring the deployment limits of the report trigger.
	MaxConcurrentInvocations int
	InvocationTimeout        time.Duration
	MemoryLimitMB            int
	PruneConcurrency         int

	// NATS trigger
	NatsURL        string
	NatsSubject    string
	NatsQueueGroup string

	// Firestore collection watches. Listeners are per process: enable on one replica only.
	FirestoreWatchEnabled bool

	// HTTP trigger authentication (OIDC tokens minted by the pushing platform)
	TriggerJWKSURL  string
	TriggerAudience string

	// Server
	ServerShutdownTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string

	// Loaded from CONFIG_FILE.
	Notifications NotificationsConfig
}

// fileConfig is the layout of the YAML configuration file.
type fileConfig struct {
	Notifications *NotificationsConfig `yaml:"notifications"`
}

const (
	defaultInvocationTimeout = 60 * time.Second
	defaultConfigFile        = "config.yaml"
)

// Load reads configuration from the environment (optionally seeded by .env) and
// the YAML file named by CONFIG_FILE. A missing default config file is not an
// error; a missing explicitly named one is.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Firebase
		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		// Push Notifications
		PushNotificationsEnabled: getEnvOrDefault("PUSH_NOTIFICATIONS_ENABLED", "true") == "true",
		PushDebugCurl:            getEnvOrDefault("PUSH_DEBUG_CURL", "false") == "true",

		// Invocation limits
		MaxConcurrentInvocations: getEnvAsInt("MAX_CONCURRENT_INVOCATIONS", 10),
		InvocationTimeout:        getEnvAsDuration("INVOCATION_TIMEOUT", defaultInvocationTimeout),
		MemoryLimitMB:            getEnvAsInt("MEMORY_LIMIT_MB", 256),
		PruneConcurrency:         getEnvAsInt("PRUNE_CONCURRENCY", 8),

		// NATS
		NatsURL:        getEnvOrDefault("NATS_URL", ""),
		NatsSubject:    getEnvOrDefault("NATS_SUBJECT", "reports.status.changed"),
		NatsQueueGroup: getEnvOrDefault("NATS_QUEUE_GROUP", "report-notifier"),

		// Firestore watches
		FirestoreWatchEnabled: getEnvOrDefault("FIRESTORE_WATCH_ENABLED", "false") == "true",

		// Trigger auth
		TriggerJWKSURL:  getEnvOrDefault("TRIGGER_JWKS_URL", ""),
		TriggerAudience: getEnvOrDefault("TRIGGER_AUDIENCE", ""),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	configFilePath, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		configFilePath = defaultConfigFile
	}

	configFile, err := os.Open(configFilePath)
	switch {
	case err == nil:
		defer configFile.Close()
		log.Printf("Loading config file: %v", configFilePath)
		if err := LoadConfigFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		log.Printf("No config file at %s, using built-in notification settings", configFilePath)
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if len(cfg.Notifications.CollectionWatches) == 0 {
		cfg.Notifications.CollectionWatches = DefaultCollectionWatches()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.FirebaseProjectID == "" {
		log.Println("Warning: Firebase project ID is missing. Please set FIREBASE_PROJECT_ID environment variable.")
	}

	if cfg.FirebaseCredJSON == "" {
		log.Println("Warning: FIREBASE_CRED_JSON is empty, falling back to application default credentials.")
	}

	if !cfg.PushNotificationsEnabled {
		log.Println("Push notifications are disabled (PUSH_NOTIFICATIONS_ENABLED=false)")
	}

	return cfg, nil
}

// Validate checks the numeric limits.
func (cfg *Config) Validate() error {
	if cfg.MaxConcurrentInvocations < 1 {
		return fmt.Errorf("MAX_CONCURRENT_INVOCATIONS must be at least 1, got %d", cfg.MaxConcurrentInvocations)
	}

	if cfg.InvocationTimeout <= 0 {
		return fmt.Errorf("INVOCATION_TIMEOUT must be positive, got %v", cfg.InvocationTimeout)
	}

	if cfg.PruneConcurrency < 1 {
		return fmt.Errorf("PRUNE_CONCURRENCY must be at least 1, got %d", cfg.PruneConcurrency)
	}

	if cfg.MemoryLimitMB < 0 {
		return fmt.Errorf("MEMORY_LIMIT_MB must not be negative, got %d", cfg.MemoryLimitMB)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
	}
	return defaultValue
}

// LoadConfigFile decodes the YAML file into the file-backed fields of config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	var file fileConfig

	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if file.Notifications != nil {
		config.Notifications = *file.Notifications
	}

	return nil
}
