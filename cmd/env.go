package main

import (
	"midoriadblock/config"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/caarlos0/env/v7"
)

// environment is the configuration that is kept in the environment.  Non-empty
// values override the ones from the configuration file.
type environment struct {
	ConfPath   string `env:"CONFIG_PATH" envDefault:"config.yaml"`
	LogLevel   string `env:"LOG_LEVEL"`
	LogFormat  string `env:"LOG_FORMAT"`
	ListenAddr string `env:"LISTEN_ADDR"`
}

// parseEnvironment reads the environment variables.
func parseEnvironment() (envs *environment, err error) {
	envs = &environment{}
	err = env.Parse(envs)
	if err != nil {
		return nil, errors.Annotate(err, "parsing environment: %w")
	}

	return envs, nil
}

// apply overrides the settings of cfg with the non-empty environment values.
func (envs *environment) apply(cfg *config.Config) {
	if envs.LogLevel != "" {
		cfg.System.LogLevel = envs.LogLevel
	}

	if envs.LogFormat != "" {
		cfg.System.LogFormat = envs.LogFormat
	}

	if envs.ListenAddr != "" {
		cfg.WebUI.ListenAddr = envs.ListenAddr
	}
}
