package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/yoanbernabeu/shellwire/internal/constants"
)

// Env holds the SHELLWIRE_* environment overrides, used mostly in CI where
// keys and host fingerprints come from secrets rather than ~/.ssh
type Env struct {
	SSHKey           string `envconfig:"SSH_KEY"`
	KnownHosts       string `envconfig:"KNOWN_HOSTS"`
	SkipHostKeyCheck bool   `envconfig:"SKIP_HOST_KEY_CHECK" default:"false"`
	Server           string `envconfig:"SERVER"`
	Config           string `envconfig:"CONFIG"`
}

// LoadEnv reads the SHELLWIRE_* variables
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(constants.EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &env, nil
}
