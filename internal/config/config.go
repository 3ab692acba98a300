package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config interface {
	EnvConfig
	BackendConfig
	RefreshConfig
	StorageConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetPort() string
	GetLogLevel() string
}

type BackendConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetLoginTimeout() time.Duration
	GetRefreshTimeout() time.Duration
}

type RefreshConfig interface {
	GetRefreshMaxAttempts() int
	GetRefreshBackoff() time.Duration
	GetRefreshMaxBackoff() time.Duration
}

type StorageConfig interface {
	GetTokenStore() string
	GetTokenFile() string
	GetStorageKey() string
	GetSealKey() string
	GetRedisAddr() string
}

const (
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

type mainConfig struct {
	EnvVars `yaml:"app"`
	Backend `yaml:"backend"`
	Refresh `yaml:"refresh"`
	Storage `yaml:"storage"`
}

var _ Config = (*mainConfig)(nil)

// New returns the configuration built from defaults and environment variables only
func New() Config {
	cfg, err := Load("")
	if err != nil {
		cfg = defaults()
	}
	return cfg
}

// Load reads configuration, in order of precedence, from the explicit path,
// CONFIG_PATH, ./local.yaml, or the environment alone. Environment variables
// always overlay values read from a file.
func Load(path string) (Config, error) {
	var cfg mainConfig

	readFile := func(p string) (Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", p, err)
		}
		return &cfg, nil
	}

	if path != "" {
		return readFile(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// MustLoad panics if the configuration cannot be loaded
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaults() *mainConfig {
	var cfg mainConfig
	_ = cleanenv.ReadEnv(&cfg)
	return &cfg
}
