package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/shell"
)

var runCmd = &cobra.Command{
	Use:   "run <target> <command>...",
	Short: "Run commands over one connection",
	Long: `Opens one shell on the target and runs each command argument in order,
streaming its output. The exit status of the last command becomes the exit
status of shellwire.

With --length the single command's output is read as exactly N bytes
followed by its exit status, without an end marker.

Examples:
  shellwire run local 'cd /tmp' 'pwd'
  shellwire run web --check 'systemctl is-active nginx' 'df -h /'
  shellwire run web --length 16 'head -c 16 /dev/urandom'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

var (
	runCheck   bool
	runLength  int
	runDialect string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runCheck, "check", false, "Stop at the first command with a non-zero exit status")
	runCmd.Flags().IntVar(&runLength, "length", 0, "Read exactly N bytes of output (single command only)")
	runCmd.Flags().StringVar(&runDialect, "dialect", "", "Shell dialect: posix or powershell (default: from config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	target, commands := args[0], args[1:]
	fixed, err := fixedLength(cmd, runLength, len(commands))
	if err != nil {
		return err
	}

	conn, err := Connect(target, runDialect)
	if err != nil {
		return err
	}
	defer conn.Close()

	var last int
	for _, command := range commands {
		var gen protocol.Generator
		if fixed {
			gen = protocol.NewFixedLength(conn.Executor.Output(), conn.Executor.Dialect(), runLength,
				protocol.WithLogger(conn.Logger))
		}

		last, err = streamCommand(conn.Executor, command, gen, runCheck, os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
	}

	if last != 0 {
		return &ExitError{Code: last}
	}
	return nil
}

// fixedLength reports whether --length was given. Zero is a valid length.
func fixedLength(cmd *cobra.Command, n, commands int) (bool, error) {
	if !cmd.Flags().Changed("length") {
		return false, nil
	}
	if n < 0 {
		return false, fmt.Errorf("--length must not be negative")
	}
	if commands != 1 {
		return false, fmt.Errorf("--length applies to a single command, got %d", commands)
	}
	return true, nil
}

// streamCommand runs command, copying its output to stdout as it arrives
// and the stderr collected meanwhile to stderr. gen may be nil. With check,
// a non-zero exit status is returned as a *shell.CommandError.
func streamCommand(e *shell.Executor, command string, gen protocol.Generator, check bool, stdout, stderr io.Writer) (int, error) {
	var opts []shell.RunOption
	if gen != nil {
		opts = append(opts, shell.WithGenerator(gen))
	}

	g, err := e.Start([]byte(command), opts...)
	if err != nil {
		return 0, err
	}

	var writeErr error
	for {
		chunk, err := g.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read output of %q: %w", command, err)
		}
		// keep draining after a failed write so the stream stays in sync
		if writeErr == nil {
			_, writeErr = stdout.Write(chunk)
		}
	}

	errOut := e.Stderr().Take()
	if len(errOut) > 0 {
		if _, err := stderr.Write(errOut); err != nil && writeErr == nil {
			writeErr = err
		}
	}
	if writeErr != nil {
		return 0, fmt.Errorf("failed to write output: %w", writeErr)
	}

	res := &shell.Result{Stderr: errOut, ReturnCode: g.ReturnCode()}
	if check {
		if err := res.Err(command, ""); err != nil {
			return res.ReturnCode, err
		}
	}
	return res.ReturnCode, nil
}
