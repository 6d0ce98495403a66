package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yoanbernabeu/shellwire/internal/config"
	"github.com/yoanbernabeu/shellwire/internal/constants"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/security"
	"github.com/yoanbernabeu/shellwire/internal/shell"
	"github.com/yoanbernabeu/shellwire/internal/ssh"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long Close waits for the shell to exit
const shutdownTimeout = 10 * time.Second

// Connection holds an open shell executor along with the target config.
type Connection struct {
	Executor *shell.Executor
	Target   string
	Server   *config.ServerConfig // nil for the local target
	Global   *config.GlobalConfig
	Stat     protocol.StatStyle
	Logger   *zap.Logger

	client *ssh.Client
}

// Close ends the shell, waits for it to exit and closes the SSH client of
// the native transport.
func (c *Connection) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := c.Executor.Shutdown(ctx)
	if c.client != nil {
		if cerr := c.client.Close(); err == nil {
			err = cerr
		}
	}
	_ = c.Logger.Sync()
	return err
}

// resolveTarget returns the target argument, or SHELLWIRE_SERVER when it is
// empty
func resolveTarget(target string, env *config.Env) (string, error) {
	if target == "" {
		target = env.Server
	}
	if target == "" {
		return "", fmt.Errorf("no target given (pass a server name or %q, or set %s_SERVER)", constants.LocalTarget, constants.EnvPrefix)
	}
	if target == constants.LocalTarget {
		return target, nil
	}
	if err := security.ValidateServerName(target); err != nil {
		return "", fmt.Errorf("invalid server name: %w", err)
	}
	return target, nil
}

// Connect opens a shell on target. dialect, when not empty, overrides the
// configured dialect. The caller must defer conn.Close().
func Connect(target, dialect string) (*Connection, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	target, err = resolveTarget(target, env)
	if err != nil {
		return nil, err
	}

	globalCfg, err := config.LoadGlobalConfig(GetConfigFile(env))
	if err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}

	logger, err := newLogger(IsVerbose())
	if err != nil {
		return nil, err
	}

	conn := &Connection{Target: target, Global: globalCfg, Logger: logger}
	if target == constants.LocalTarget {
		err = conn.openLocal(dialect)
	} else {
		err = conn.openServer(env, dialect)
	}
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return conn, nil
}

func (c *Connection) executorOptions(dialect protocol.Dialect) []shell.Option {
	opts := []shell.Option{
		shell.WithDialect(dialect),
		shell.WithLogger(c.Logger),
	}
	if c.Global.ChunkSize > 0 {
		opts = append(opts, shell.WithChunkSize(c.Global.ChunkSize))
	}
	if c.Global.StderrSize > 0 {
		opts = append(opts, shell.WithStderrSize(c.Global.StderrSize))
	}
	return opts
}

func (c *Connection) openLocal(dialectName string) error {
	if dialectName == "" {
		dialectName = c.Global.LocalDialect
	}
	dialect, err := protocol.ParseDialect(dialectName)
	if err != nil {
		return err
	}

	argv := c.Global.LocalShell
	if len(argv) == 0 {
		argv = constants.DefaultLocalShell(dialect.Name())
	}

	PrintVerboseCommand(fmt.Sprint(argv))
	e, err := shell.Open(argv, c.executorOptions(dialect)...)
	if err != nil {
		return err
	}
	c.Executor = e
	return nil
}

func (c *Connection) openServer(env *config.Env, dialectName string) error {
	serverCfg, err := c.Global.GetServer(c.Target)
	if err != nil {
		return err
	}
	if errs := config.ValidateServerConfig(serverCfg); errs.HasErrors() {
		return fmt.Errorf("invalid server configuration: %w", errs)
	}
	c.Server = serverCfg

	if dialectName == "" {
		dialectName = serverCfg.Dialect
	}
	dialect, err := protocol.ParseDialect(dialectName)
	if err != nil {
		return err
	}
	if c.Stat, err = protocol.ParseStatStyle(serverCfg.Stat); err != nil {
		return err
	}

	switch serverCfg.TransportOrDefault() {
	case constants.TransportNative:
		return c.openNative(env, dialect)
	default:
		argv := ssh.Args(serverCfg.Host, serverCfg.User, serverCfg.Port, serverCfg.KeyPath)
		if serverCfg.Shell != "" {
			argv = append(argv, serverCfg.Shell)
		}
		PrintVerboseCommand(fmt.Sprint(argv))
		e, err := shell.Open(argv, c.executorOptions(dialect)...)
		if err != nil {
			return err
		}
		c.Executor = e
		return nil
	}
}

func (c *Connection) openNative(env *config.Env, dialect protocol.Dialect) error {
	s := c.Server
	client := ssh.NewClient(s.Host, s.User, s.Port, s.KeyPath, sshOptions(c.Global, env, c.Logger)...)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	sc, err := client.OpenShell(s.Shell)
	if err != nil {
		client.Close()
		return err
	}

	display := []string{"ssh", fmt.Sprintf("%s@%s:%d", s.User, s.Host, s.Port)}
	e, err := shell.New(sc, display, c.executorOptions(dialect)...)
	if err != nil {
		client.Close()
		return err
	}
	c.Executor = e
	c.client = client
	return nil
}

// sshOptions builds the native client options from the config and the
// SHELLWIRE_* environment.
func sshOptions(globalCfg *config.GlobalConfig, env *config.Env, logger *zap.Logger) []ssh.ClientOption {
	var opts []ssh.ClientOption
	if globalCfg.SSHTimeout > 0 {
		opts = append(opts, ssh.WithTimeout(time.Duration(globalCfg.SSHTimeout)*time.Second))
	}
	if logger != nil {
		opts = append(opts, ssh.WithLogger(logger))
	}
	if env == nil {
		return opts
	}
	if env.SSHKey != "" {
		opts = append(opts, ssh.WithKeyData([]byte(env.SSHKey)))
	}
	if env.KnownHosts != "" {
		opts = append(opts, ssh.WithKnownHostsData([]byte(env.KnownHosts)))
	}
	if env.SkipHostKeyCheck {
		opts = append(opts, ssh.WithInsecureHostKey())
	}
	return opts
}

// ExitError carries the exit status of the last remote command to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// ExitCode extracts the process exit code carried by err.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	var cmdErr *shell.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ReturnCode, true
	}
	return 0, false
}
