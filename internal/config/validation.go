package config

import (
	"fmt"
	"strings"

	"github.com/yoanbernabeu/shellwire/internal/constants"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/security"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ValidateServerConfig validates a server configuration
func ValidateServerConfig(config *ServerConfig) ValidationErrors {
	var errors ValidationErrors

	if config.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "server host is required",
		})
	} else if err := security.ValidateHost(config.Host); err != nil {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: err.Error(),
		})
	}

	if config.User == "" {
		errors = append(errors, ValidationError{
			Field:   "user",
			Message: "server user is required",
		})
	} else if err := security.ValidateUnixUser(config.User); err != nil {
		errors = append(errors, ValidationError{
			Field:   "user",
			Message: err.Error(),
		})
	}

	if config.Port < 1 || config.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "port",
			Message: "port must be between 1 and 65535",
		})
	}

	switch config.Transport {
	case "", constants.TransportSSH, constants.TransportNative:
	default:
		errors = append(errors, ValidationError{
			Field:   "transport",
			Message: fmt.Sprintf("unknown transport %q (use ssh or native)", config.Transport),
		})
	}

	if _, err := protocol.ParseDialect(config.Dialect); err != nil {
		errors = append(errors, ValidationError{
			Field:   "dialect",
			Message: err.Error(),
		})
	}

	if _, err := protocol.ParseStatStyle(config.Stat); err != nil {
		errors = append(errors, ValidationError{
			Field:   "stat",
			Message: err.Error(),
		})
	}

	return errors
}

// ValidateGlobalConfig validates the global settings and every server
func ValidateGlobalConfig(config *GlobalConfig) ValidationErrors {
	var errors ValidationErrors

	if config.ChunkSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "chunk_size",
			Message: "chunk_size must be a positive number",
		})
	}
	if config.StderrSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "stderr_size",
			Message: "stderr_size must be a positive number",
		})
	}
	if config.SSHTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "ssh_timeout",
			Message: "ssh_timeout must be a positive number",
		})
	}
	if _, err := protocol.ParseDialect(config.LocalDialect); err != nil {
		errors = append(errors, ValidationError{
			Field:   "local_dialect",
			Message: err.Error(),
		})
	}

	for _, name := range config.ListServers() {
		server := config.Servers[name]
		for _, err := range ValidateServerConfig(&server) {
			err.Field = "servers." + name + "." + err.Field
			errors = append(errors, err)
		}
	}

	return errors
}
