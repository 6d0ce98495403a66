// Package subproc connects to a running shell process and exposes its
// standard streams the way the command executor consumes them: stdout as a
// pull-based chunk stream, stderr as a bounded buffer, and stdin as an
// ordered input queue.
package subproc

import (
	"fmt"
	"io"
	"os/exec"
)

// Conn is a started process, local or remote, with its three standard streams.
type Conn interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exited. It must only be called after
	// stdout and stderr were read to EOF.
	Wait() error
	Kill() error
}

type execConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// Command starts argv as a local process with piped standard streams.
func Command(argv []string) (Conn, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", argv[0], err)
	}

	cmd := exec.Command(binary, argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	return &execConn{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (c *execConn) Stdin() io.WriteCloser { return c.stdin }
func (c *execConn) Stdout() io.Reader     { return c.stdout }
func (c *execConn) Stderr() io.Reader     { return c.stderr }
func (c *execConn) Wait() error           { return c.cmd.Wait() }
func (c *execConn) Kill() error           { return c.cmd.Process.Kill() }
