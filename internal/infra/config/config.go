package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rentcar/internal/domain/fees"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	Storage            string
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	SettlementTopic    string
	ConsumerGroup      string
	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	JWTSecret          string
	JWTTTL             time.Duration
	ProcessorURL       string
	ProcessorAPIKey    string
	ProcessorTimeout   time.Duration
	ProcessorSandbox   bool
	WebhookSecret      string
	ReconcileAfter     time.Duration
	ReconcileSpec      string
	ReconcileBatch     int
	FeePolicy          fees.Policy
	FixturesPath       string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		Storage:          strings.ToLower(getEnv("STORAGE", StorageMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "rentcar"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		SettlementTopic:  getEnv("KAFKA_SETTLEMENT_TOPIC", "payments.settlements.v1"),
		ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "rentcar-settlements"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "rentcar-evidence"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ProcessorURL:     os.Getenv("PAYMENT_PROCESSOR_URL"),
		ProcessorAPIKey:  os.Getenv("PAYMENT_PROCESSOR_KEY"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		ReconcileSpec:    getEnv("RECONCILE_SPEC", "@every 5m"),
		FixturesPath:     os.Getenv("BOOKING_FIXTURES"),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	var err error
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", 12*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ProcessorTimeout, err = parseDurationEnv("PAYMENT_PROCESSOR_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileAfter, err = parseDurationEnv("RECONCILE_AFTER", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileBatch, err = parseIntEnv("RECONCILE_BATCH", 50); err != nil {
		return Config{}, err
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.ProcessorSandbox, err = parseBoolEnv("PAYMENT_PROCESSOR_SANDBOX", cfg.ProcessorURL == ""); err != nil {
		return Config{}, err
	}

	cfg.FeePolicy = fees.DefaultPolicy()
	if path := os.Getenv("FEE_POLICY_FILE"); path != "" {
		if cfg.FeePolicy, err = LoadFeePolicy(path); err != nil {
			return Config{}, err
		}
	}

	switch cfg.Storage {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE %q", cfg.Storage)
	}
	if cfg.JWTSecret == "" {
		if cfg.Env != "dev" {
			return Config{}, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = "dev-secret"
	}
	if !cfg.ProcessorSandbox && cfg.ProcessorURL == "" {
		return Config{}, fmt.Errorf("PAYMENT_PROCESSOR_URL is required")
	}
	return cfg, nil
}

// LoadFeePolicy reads a YAML policy file. Keys absent from the file keep their defaults.
func LoadFeePolicy(path string) (fees.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fees.Policy{}, fmt.Errorf("read fee policy: %w", err)
	}
	policy := fees.DefaultPolicy()
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return fees.Policy{}, fmt.Errorf("parse fee policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return fees.Policy{}, fmt.Errorf("fee policy %s: %w", path, err)
	}
	return policy, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
