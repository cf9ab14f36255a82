package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Lookup providers.
const (
	ProviderIPInfo  = "ipinfo"
	ProviderMaxMind = "maxmind"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	InputPath    string
	OutputPath   string
	OutputHeader bool
	Strict       bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	BatchSize       int

	// Geolocation lookup configuration.
	LookupProvider        string
	LookupCacheMaxEntries int
	LookupCacheTTL        time.Duration
	LookupConcurrency     int
	LookupMaxRetries      int

	IPInfoBaseURL   string
	IPInfoToken     string
	IPInfoTimeout   time.Duration
	IPInfoRateLimit float64 // requests per second, 0 = unlimited

	MaxMindDBPath string

	// Optional Kafka event sink; disabled when KafkaBrokers is empty.
	KafkaBrokers   []string
	KafkaSinkTopic string
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

	ipinfoTimeout, err := parsePositiveDuration("IPINFO_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("LOOKUP_CACHE_TTL", "120s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("LOOKUP_CACHE_MAX_ENTRIES", 512)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("LOOKUP_CONCURRENCY", 1)
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseNonNegativeInt("LOOKUP_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	rateLimit, err := parseRateLimit()
	if err != nil {
		return nil, err
	}

	outputHeader, err := parseBool("OUTPUT_HEADER", false)
	if err != nil {
		return nil, err
	}

	strict, err := parseBool("STRICT", false)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		InputPath:    sharedcfg.EnvOrDefault("INPUT_PATH", "access.txt"),
		OutputPath:   sharedcfg.EnvOrDefault("OUTPUT_PATH", "access.csv"),
		OutputHeader: outputHeader,
		Strict:       strict,

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		BatchSize:       batchSize,

		LookupProvider:        sharedcfg.EnvOrDefault("LOOKUP_PROVIDER", ProviderIPInfo),
		LookupCacheMaxEntries: cacheSize,
		LookupCacheTTL:        cacheTTL,
		LookupConcurrency:     concurrency,
		LookupMaxRetries:      maxRetries,

		IPInfoBaseURL:   sharedcfg.EnvOrDefault("IPINFO_BASE_URL", "https://ipinfo.io"),
		IPInfoToken:     os.Getenv("IPINFO_TOKEN"),
		IPInfoTimeout:   ipinfoTimeout,
		IPInfoRateLimit: rateLimit,

		MaxMindDBPath: os.Getenv("MAXMIND_DB_PATH"),

		KafkaBrokers:   brokers,
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "enriched-access-logs"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LookupProvider {
	case ProviderIPInfo:
	case ProviderMaxMind:
		if c.MaxMindDBPath == "" {
			return errors.New("LOOKUP_PROVIDER is maxmind but MAXMIND_DB_PATH is not set")
		}
	default:
		return fmt.Errorf("invalid LOOKUP_PROVIDER %q: want %s or %s", c.LookupProvider, ProviderIPInfo, ProviderMaxMind)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// KafkaEnabled reports whether events are also published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	n, err := parseInt(key, def)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	n, err := parseInt(key, def)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func parseRateLimit() (float64, error) {
	s := os.Getenv("IPINFO_RATE_LIMIT")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid IPINFO_RATE_LIMIT")
	}
	return v, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}
