package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/shellwire/internal/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell <target>",
	Short: "Read commands from stdin and run them",
	Long: `Opens one shell on the target and runs every line read from stdin as a
separate command. Empty lines and lines starting with # are skipped. On a
terminal a prompt shows the exit status of the previous command.

Examples:
  shellwire shell web
  shellwire shell local < script.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runShell,
}

var (
	shellCheck   bool
	shellDialect string
)

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().BoolVar(&shellCheck, "check", false, "Stop at the first command with a non-zero exit status")
	shellCmd.Flags().StringVar(&shellDialect, "dialect", "", "Shell dialect: posix or powershell (default: from config)")
}

func runShell(cmd *cobra.Command, args []string) error {
	conn, err := Connect(args[0], shellDialect)
	if err != nil {
		return err
	}
	defer conn.Close()

	prompt := ""
	if IsInteractive() {
		prompt = conn.Target
	}

	last, err := readLoop(conn.Executor, os.Stdin, os.Stdout, os.Stderr, prompt, shellCheck)
	if err != nil {
		return err
	}
	if last != 0 {
		return &ExitError{Code: last}
	}
	return nil
}

// readLoop runs each command line read from in and returns the exit status
// of the last one. A non-empty prompt is printed to stderr before each line.
func readLoop(e *shell.Executor, in io.Reader, stdout, stderr io.Writer, prompt string, check bool) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	last := 0
	for {
		if prompt != "" {
			fmt.Fprintf(stderr, "%s [%d]$ ", prompt, last)
		}
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		code, err := streamCommand(e, line, nil, check, stdout, stderr)
		if err != nil {
			return code, err
		}
		last = code
	}
	if prompt != "" {
		fmt.Fprintln(stderr)
	}

	if err := scanner.Err(); err != nil {
		return last, fmt.Errorf("failed to read commands: %w", err)
	}
	return last, nil
}
