package config

import "time"

type Refresh struct {
	MaxAttempts int           `yaml:"max_attempts" env:"REFRESH_MAX_ATTEMPTS" env-default:"2"`
	Backoff     time.Duration `yaml:"backoff" env:"REFRESH_BACKOFF" env-default:"200ms"`
	MaxBackoff  time.Duration `yaml:"max_backoff" env:"REFRESH_MAX_BACKOFF" env-default:"2s"`
}

var _ RefreshConfig = Refresh{}

// GetRefreshMaxAttempts is the total number of refresh calls allowed for one
// in-flight refresh when the backend keeps failing transiently
func (r Refresh) GetRefreshMaxAttempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

func (r Refresh) GetRefreshBackoff() time.Duration {
	return r.Backoff
}

func (r Refresh) GetRefreshMaxBackoff() time.Duration {
	return r.MaxBackoff
}
