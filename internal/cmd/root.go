package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/shellwire/internal/config"
	"github.com/yoanbernabeu/shellwire/internal/security"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	verbose bool
	cfgFile string
	yesFlag bool // CI/CD: skip prompts
)

var rootCmd = &cobra.Command{
	Use:   "shellwire",
	Short: "Run many commands over one shell connection",
	Long: `shellwire keeps a single shell open, locally or over SSH, and runs
commands through it one after another. Each command's output, exit status
and stderr are recovered from the shell's streams, so hundreds of commands
cost one connection instead of hundreds.

Quick start:
  shellwire run local 'uname -a' 'id'
  shellwire server add web deploy@example.com
  shellwire upload web ./app.tar.gz /tmp/app.tar.gz

Commands:
  run           Run commands over one connection
  shell         Read commands from stdin and run them
  upload        Copy a local file to the target
  download      Copy a file from the target
  rm            Delete files on the target
  server        Configure targets

Targets:
  local         A shell on this machine (bash, or PowerShell)
  <server>      A server added with 'shellwire server add'

CI/CD Environment Variables:
  SHELLWIRE_SERVER              Default target
  SHELLWIRE_CONFIG              Config file path
  SHELLWIRE_SSH_KEY             SSH private key content (native transport)
  SHELLWIRE_KNOWN_HOSTS         SSH known_hosts content (native transport)
  SHELLWIRE_SKIP_HOST_KEY_CHECK Skip host key verification (true/false)`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		PrintError("%v", err)
	}
	return err
}

// GetRootCmd returns the root command, for documentation generation
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed logs")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/shellwire/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Never prompt (CI/CD mode)")

	rootCmd.SetVersionTemplate(`shellwire {{.Version}}
`)
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// GetConfigFile returns the config file path: the --config flag, then
// SHELLWIRE_CONFIG, then empty for the default location
func GetConfigFile(env *config.Env) string {
	if cfgFile != "" {
		return cfgFile
	}
	if env != nil {
		return env.Config
	}
	return ""
}

// IsYesMode returns true if --yes flag is set (CI/CD mode)
func IsYesMode() bool {
	return yesFlag
}

// newLogger builds the logger handed to the shell, transfer and ssh
// packages. Protocol warnings are always shown; --verbose adds every
// command sent and every connection attempt.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !verbose
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// PrintError prints a formatted error message
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+msg+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Printf("✅ "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Printf("ℹ️  "+msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Printf("⚠️  "+msg+"\n", args...)
}

// PrintVerbose prints a message only in verbose mode
func PrintVerbose(msg string, args ...interface{}) {
	if verbose {
		fmt.Printf("   "+msg+"\n", args...)
	}
}

// PrintVerboseCommand prints a command in verbose mode with sensitive values masked
func PrintVerboseCommand(command string) {
	if verbose {
		fmt.Fprintf(os.Stderr, "   Running: %s\n", security.SanitizeCommandForLog(command))
	}
}
