package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/dataset"
	apperrors "github.com/ZanzyTHEbar/vpr-analytics/internal/errors"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/ratelimit"
)

var validate = validator.New()

// RedisConfig points the rate limiter at a shared Redis. An empty Addr
// keeps rate limiting in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// Config is the server configuration
type Config struct {
	Port           string        `yaml:"port" validate:"required,numeric"`
	DataDir        string        `yaml:"data_dir" validate:"required"`
	LogLevel       string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	GinMode        string        `yaml:"gin_mode" validate:"oneof=debug release test"`
	AllowedOrigins []string      `yaml:"allowed_origins" validate:"min=1"`
	CacheTTL       time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	SessionTTL     time.Duration `yaml:"session_ttl" validate:"gt=0"`
	StageDelay     time.Duration `yaml:"stage_delay" validate:"gte=0"`

	// Regenerate replaces any stored dataset with a freshly generated one on start
	Regenerate bool `yaml:"regenerate"`

	Redis     RedisConfig             `yaml:"redis"`
	RateLimit ratelimit.Config        `yaml:"rate_limit"`
	Generator dataset.GeneratorConfig `yaml:"generator"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Port:           "8080",
		DataDir:        "./data",
		LogLevel:       "info",
		GinMode:        "release",
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		CacheTTL:       15 * time.Minute,
		SessionTTL:     30 * time.Minute,
		StageDelay:     800 * time.Millisecond,
		RateLimit:      ratelimit.DefaultConfig(),
		Generator:      dataset.DefaultGeneratorConfig(),
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults without consulting the environment
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.DataDir = getEnvOrDefault("DATA_DIR", c.DataDir)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.GinMode = getEnvOrDefault("GIN_MODE", c.GinMode)
	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	var err error
	if c.CacheTTL, err = durationEnv("CACHE_TTL", c.CacheTTL); err != nil {
		return err
	}
	if c.SessionTTL, err = durationEnv("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	if c.StageDelay, err = durationEnv("LOADER_STAGE_DELAY", c.StageDelay); err != nil {
		return err
	}
	if c.Redis.DB, err = intEnv("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.RateLimit.IPLimitPerMin, err = intEnv("RATE_LIMIT_PER_MIN", c.RateLimit.IPLimitPerMin); err != nil {
		return err
	}
	seed, err := intEnv("DATASET_SEED", int(c.Generator.Seed))
	if err != nil {
		return err
	}
	c.Generator.Seed = int64(seed)

	if v := os.Getenv("REGENERATE_DATASET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REGENERATE_DATASET %q: %w", v, err)
		}
		c.Regenerate = b
	}
	return nil
}

// Validate checks every field constraint, including the nested sections
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigurationError(err.Error(), err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
