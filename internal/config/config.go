package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "CATALOG_"
	defaultEnvFile = ".env"
	configFile     = "config.yaml"
)

const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Seed      SeedConfig      `koanf:"seed"`
}

type ServerConfig struct {
	Port    int `koanf:"port"`
	Timeout struct {
		Read       time.Duration `koanf:"read"`
		Write      time.Duration `koanf:"write"`
		Idle       time.Duration `koanf:"idle"`
		ReadHeader time.Duration `koanf:"readheader"`
	} `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

// RateLimitConfig limits requests per client IP on the product routes.
// Limit 0 disables limiting.
type RateLimitConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type SeedConfig struct {
	Enabled bool `koanf:"enabled"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":               3000,
		"server.timeout.read":       "10s",
		"server.timeout.write":      "10s",
		"server.timeout.idle":       "60s",
		"server.timeout.readheader": "5s",
		"server.shutdowntimeout":    "10s",
		"storage.driver":            DriverFile,
		"storage.path":              "./products.json",
		"log.level":                 "info",
		"metrics.enabled":           false,
		"ratelimit.limit":           0,
		"ratelimit.window":          "1m",
		"seed.enabled":              true,
	}
}

func (c Config) String() string {
	return fmt.Sprintf("server.port=%d, server.timeout.read=%v, server.timeout.write=%v, server.timeout.idle=%v, storage.driver=%s, storage.path=%s, database.url=%s, log.level=%s, metrics.enabled=%t, ratelimit.limit=%d",
		c.Server.Port,
		c.Server.Timeout.Read,
		c.Server.Timeout.Write,
		c.Server.Timeout.Idle,
		c.Storage.Driver,
		c.Storage.Path,
		maskURL(c.Database.URL),
		c.Log.Level,
		c.Metrics.Enabled,
		c.RateLimit.Limit)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func maskURL(url string) string {
	if url == "" {
		return "<not configured>"
	}
	// keep only the host part
	if _, host, ok := strings.Cut(url, "@"); ok {
		return "****@" + host
	}
	return "****"
}

// Load reads config.yaml and .env from the working directory, then the
// process environment.
func Load() (*Config, error) {
	return LoadFrom(configFile, defaultEnvFile)
}

// LoadFrom layers defaults, the YAML file, the dotenv file and CATALOG_*
// environment variables, later sources winning. Missing files are skipped.
func LoadFrom(yamlPath, envPath string) (*Config, error) {
	k := koanf.New(".")

	// 0. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	// 1. YAML file
	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Printf("WARN: error loading YAML config '%s': %v", yamlPath, err)
			}
		}
	}

	// 2. .env file
	if envPath != "" {
		if envFileMap, err := godotenv.Read(envPath); err == nil {
			envMap := make(map[string]any)
			for key, value := range envFileMap {
				if !strings.HasPrefix(strings.ToUpper(key), envPrefix) {
					continue
				}
				envMap[keyTransformer(key)] = value
			}
			if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
				log.Printf("WARN: error loading .env config: %v", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Printf("WARN: error reading .env file: %v", err)
		}
	}

	// 3. Process environment, highest priority
	if err := k.Load(env.Provider(envPrefix, ".", keyTransformer), nil); err != nil {
		log.Printf("WARN: error loading env vars: %v", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid HTTP server port: %d", c.Server.Port)
	}
	if c.Server.Timeout.Read <= 0 {
		return fmt.Errorf("invalid HTTP server read timeout: %v", c.Server.Timeout.Read)
	}
	if c.Server.Timeout.Write <= 0 {
		return fmt.Errorf("invalid HTTP server write timeout: %v", c.Server.Timeout.Write)
	}
	if c.Server.Timeout.Idle <= 0 {
		return fmt.Errorf("invalid HTTP server idle timeout: %v", c.Server.Timeout.Idle)
	}

	switch c.Storage.Driver {
	case DriverFile:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage path is required for the %q driver", DriverFile)
		}
	case DriverMemory:
	case DriverPostgres:
		if !isValidPostgresURL(c.Database.URL) {
			return fmt.Errorf("database URL must start with 'postgres://': %s", maskURL(c.Database.URL))
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}

	if c.RateLimit.Limit < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid rate limit window: %v", c.RateLimit.Window)
	}
	return nil
}

func isValidPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") ||
		strings.HasPrefix(url, "postgresql://")
}

// keyTransformer maps CATALOG_SERVER_TIMEOUT_READ to server.timeout.read.
func keyTransformer(key string) string {
	key = strings.ToLower(key)
	key = strings.TrimPrefix(key, strings.ToLower(envPrefix))
	return strings.ReplaceAll(key, "_", ".")
}
