package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Source values.
const (
	SourceCSV   = "csv"
	SourceKafka = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset source and processing.
	Source          string
	DatasetPath     string
	ProcessingMode  string
	Workers         int
	RunInterval     time.Duration
	ResultCacheSize int

	KafkaBrokers         []string
	KafkaSourceTopic     string
	KafkaSourcePartition int
	KafkaSinkEnabled     bool
	KafkaRecordsTopic    string
	KafkaSummaryTopic    string

	// OpenWeatherMap current-temperature lookup.
	OpenWeatherAPIKey  string
	OpenWeatherEnabled bool
	OpenWeatherTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	runInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("RUN_INTERVAL", "1h"))
	if err != nil || runInterval < 0 {
		return nil, errors.New("invalid RUN_INTERVAL")
	}

	owTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("OPENWEATHER_TIMEOUT", "5s"))
	if err != nil || owTimeout <= 0 {
		return nil, errors.New("invalid OPENWEATHER_TIMEOUT")
	}

	workers, err := parsePositiveInt("WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("RESULT_CACHE_SIZE", 8)
	if err != nil {
		return nil, err
	}

	partition, err := strconv.Atoi(sharedcfg.EnvOrDefault("KAFKA_SOURCE_PARTITION", "0"))
	if err != nil || partition < 0 {
		return nil, errors.New("invalid KAFKA_SOURCE_PARTITION")
	}

	owKey := os.Getenv("OPENWEATHER_API_KEY")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Source:          sharedcfg.EnvOrDefault("SOURCE", SourceCSV),
		DatasetPath:     sharedcfg.EnvOrDefault("DATASET_PATH", "data/temperature_data.csv"),
		ProcessingMode:  sharedcfg.EnvOrDefault("PROCESSING_MODE", "concurrent"),
		Workers:         workers,
		RunInterval:     runInterval,
		ResultCacheSize: cacheSize,

		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:     sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-temperature-records"),
		KafkaSourcePartition: partition,
		KafkaSinkEnabled:     os.Getenv("KAFKA_SINK_ENABLED") == "true",
		KafkaRecordsTopic:    sharedcfg.EnvOrDefault("KAFKA_RECORDS_TOPIC", "processed-temperature-records"),
		KafkaSummaryTopic:    sharedcfg.EnvOrDefault("KAFKA_SUMMARY_TOPIC", "temperature-season-summary"),

		OpenWeatherAPIKey:  owKey,
		OpenWeatherEnabled: owKey != "",
		OpenWeatherTimeout: owTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ProcessingMode {
	case "sequential", "concurrent":
	default:
		return fmt.Errorf("invalid PROCESSING_MODE %q: want sequential or concurrent", c.ProcessingMode)
	}

	switch c.Source {
	case SourceCSV:
		if c.DatasetPath == "" {
			return errors.New("DATASET_PATH is required when SOURCE=csv")
		}
	case SourceKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when SOURCE=kafka")
		}
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required when SOURCE=kafka")
		}
	default:
		return fmt.Errorf("invalid SOURCE %q: want csv or kafka", c.Source)
	}

	if c.KafkaSinkEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_SINK_ENABLED is true")
		}
		if c.KafkaRecordsTopic == "" || c.KafkaSummaryTopic == "" {
			return errors.New("KAFKA_RECORDS_TOPIC and KAFKA_SUMMARY_TOPIC are required when KAFKA_SINK_ENABLED is true")
		}
	}
	return nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
