package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DBDriver string
	DBDSN    string
	DBDebug  bool

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// SystemSubmitterID is the unrestricted account permanent nests are
	// attributed to.
	SystemSubmitterID uint
	SpeciesCacheTTL   time.Duration
	SubmitterCacheTTL time.Duration

	// Airtable import configuration.
	AirtableAPIKey  string
	AirtableBaseURL string
	AirtableTable   string
	AirtableEnabled bool
	AirtableTimeout time.Duration
	// AirtableInterval is how often nestd polls every configured base.
	AirtableInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	airtableTimeout, err := parsePositiveDuration("AIRTABLE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	speciesTTL, err := parsePositiveDuration("SPECIES_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	submitterTTL, err := parsePositiveDuration("SUBMITTER_CACHE_TTL", "1m")
	if err != nil {
		return nil, err
	}

	airtableInterval, err := parsePositiveDuration("AIRTABLE_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}

	systemID, err := strconv.ParseUint(sharedcfg.EnvOrDefault("SYSTEM_SUBMITTER_ID", "1"), 10, 32)
	if err != nil || systemID == 0 {
		return nil, errors.New("invalid SYSTEM_SUBMITTER_ID")
	}

	airtableKey := os.Getenv("AIRTABLE_API_KEY")
	airtableEnabled := airtableKey != ""
	if v := os.Getenv("AIRTABLE_ENABLED"); v != "" {
		airtableEnabled = v == "true"
	}

	cfg := &Config{
		DBDriver: sharedcfg.EnvOrDefault("DB_DRIVER", "sqlite"),
		DBDSN:    sharedcfg.EnvOrDefault("DB_DSN", "nests.db"),
		DBDebug:  os.Getenv("DB_DEBUG") == "true",

		KafkaEnabled:       sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-nest-reports"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "nest-report-outcomes"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "nest-reconciler"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SystemSubmitterID: uint(systemID),
		SpeciesCacheTTL:   speciesTTL,
		SubmitterCacheTTL: submitterTTL,

		AirtableAPIKey:  airtableKey,
		AirtableBaseURL: sharedcfg.EnvOrDefault("AIRTABLE_BASE_URL", "https://api.airtable.com/v0"),
		AirtableTable:   sharedcfg.EnvOrDefault("AIRTABLE_TABLE", "Submissions Data"),
		AirtableEnabled: airtableEnabled,
		AirtableTimeout: airtableTimeout,

		AirtableInterval: airtableInterval,
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "mysql" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.AirtableEnabled && cfg.AirtableAPIKey == "" {
		return nil, errors.New("AIRTABLE_ENABLED is true but AIRTABLE_API_KEY is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
