package config

import (
	"strings"
	"time"
)

type Backend struct {
	APIBaseURL     string        `yaml:"api_base_url" env:"API_BASE_URL" env-default:"http://localhost:8000"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"15s"`
	LoginTimeout   time.Duration `yaml:"login_timeout" env:"LOGIN_TIMEOUT" env-default:"10s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"REFRESH_TIMEOUT" env-default:"5s"`
}

var _ BackendConfig = Backend{}

// GetAPIBaseURL returns the backend base URL without a trailing slash
func (b Backend) GetAPIBaseURL() string {
	return strings.TrimRight(b.APIBaseURL, "/")
}

func (b Backend) GetRequestTimeout() time.Duration {
	return b.RequestTimeout
}

func (b Backend) GetLoginTimeout() time.Duration {
	return b.LoginTimeout
}

func (b Backend) GetRefreshTimeout() time.Duration {
	return b.RefreshTimeout
}
