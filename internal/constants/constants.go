package constants

import (
	"path/filepath"
	"time"
)

// Configuration locations
const (
	AppName        = "shellwire"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "SHELLWIRE"
)

// Stream defaults
const (
	DefaultChunkSize  = 64 * 1024
	DefaultStderrSize = 64 * 1024
)

// MissingFileCode is the return code of a download whose remote file could
// not be read.
const MissingFileCode = 23

// SSH defaults
const (
	DefaultSSHPort      = 22
	DefaultSSHTimeout   = 30 * time.Second
	DefaultSSHRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// Shell dialect names as written in the config file.
const (
	DialectPosix      = "posix"
	DialectPowerShell = "powershell"
)

// Transport names as written in the config file.
const (
	TransportSSH    = "ssh"
	TransportNative = "native"
)

// LocalTarget is the target name that spawns a shell on this machine.
const LocalTarget = "local"

// DefaultLocalShell returns the argv of the local shell for a dialect.
func DefaultLocalShell(dialect string) []string {
	if dialect == DialectPowerShell {
		return []string{"powershell", "-NoLogo", "-NoProfile", "-Command", "-"}
	}
	return []string{"bash"}
}

// ConfigPath returns the config file location below a user config dir.
func ConfigPath(configDir string) string {
	return filepath.Join(configDir, AppName, ConfigFileName)
}
