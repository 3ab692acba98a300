package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Env      string `yaml:"env" env:"ENV" env-default:"DEV"`
	AppName  string `yaml:"name" env:"APP_NAME" env-default:"Job Board"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

// GetPort returns the listen address for the local web front, e.g. ":8080"
func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}
