package config

import "github.com/yoanbernabeu/shellwire/internal/constants"

// GlobalConfig represents the global ~/.config/shellwire/config.yaml
type GlobalConfig struct {
	Servers     map[string]ServerConfig `yaml:"servers"`
	DefaultUser string                  `yaml:"default_user,omitempty"`
	DefaultPort int                     `yaml:"default_port,omitempty"`

	// LocalShell is the argv spawned for the "local" target. Empty means
	// bash, or PowerShell when LocalDialect is powershell.
	LocalShell   []string `yaml:"local_shell,omitempty"`
	LocalDialect string   `yaml:"local_dialect,omitempty"`

	ChunkSize  int `yaml:"chunk_size,omitempty"`
	StderrSize int `yaml:"stderr_size,omitempty"`
	// SSHTimeout is the native transport dial timeout in seconds
	SSHTimeout int `yaml:"ssh_timeout,omitempty"`
}

// ServerConfig represents a configured server
type ServerConfig struct {
	Name    string `yaml:"name,omitempty"`
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	Port    int    `yaml:"port,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"`

	// Transport is "ssh" (the ssh binary, default) or "native"
	Transport string `yaml:"transport,omitempty"`
	// Dialect is the remote shell family: "posix" (default) or "powershell"
	Dialect string `yaml:"dialect,omitempty"`
	// Stat is the stat(1) flavour used by downloads: "gnu" (default) or "bsd"
	Stat string `yaml:"stat,omitempty"`
	// Shell overrides the remote command started by the native transport
	Shell string `yaml:"shell,omitempty"`
}

// DefaultGlobalConfig returns a default global configuration
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Servers:     make(map[string]ServerConfig),
		DefaultPort: constants.DefaultSSHPort,
		ChunkSize:   constants.DefaultChunkSize,
		StderrSize:  constants.DefaultStderrSize,
		SSHTimeout:  int(constants.DefaultSSHTimeout.Seconds()),
	}
}

// LocalArgv returns the argv of the local shell
func (c *GlobalConfig) LocalArgv() []string {
	if len(c.LocalShell) > 0 {
		return c.LocalShell
	}
	return constants.DefaultLocalShell(c.LocalDialect)
}

// TransportOrDefault returns the configured transport, ssh when unset
func (s *ServerConfig) TransportOrDefault() string {
	if s.Transport == "" {
		return constants.TransportSSH
	}
	return s.Transport
}
