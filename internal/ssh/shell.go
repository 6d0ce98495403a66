package ssh

import (
	"fmt"
	"io"
	"strconv"

	"github.com/yoanbernabeu/shellwire/internal/subproc"
	"golang.org/x/crypto/ssh"
)

// sessionConn exposes one SSH session as a subproc.Conn
type sessionConn struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

// OpenShell starts a shell on the server and returns its standard streams.
// With an empty command the user's login shell is started; otherwise
// command is run instead (e.g. "bash" or "powershell -Command -"). No
// pseudo terminal is requested, so the shell reads commands from stdin
// without echoing them.
func (c *Client) OpenShell(command string) (subproc.Conn, error) {
	session, err := c.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if command == "" {
		err = session.Shell()
	} else {
		err = session.Start(command)
	}
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return &sessionConn{session: session, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (s *sessionConn) Stdin() io.WriteCloser { return s.stdin }
func (s *sessionConn) Stdout() io.Reader     { return s.stdout }
func (s *sessionConn) Stderr() io.Reader     { return s.stderr }

// Wait waits for the remote shell to exit and releases the session
func (s *sessionConn) Wait() error {
	err := s.session.Wait()
	if cerr := s.session.Close(); err == nil && cerr != nil && cerr != io.EOF {
		err = cerr
	}
	return err
}

// Kill asks the server to kill the shell, then closes the channel, which
// ends the session even if the server ignores signals
func (s *sessionConn) Kill() error {
	// many servers do not implement signals
	_ = s.session.Signal(ssh.SIGKILL)
	if err := s.session.Close(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Args returns the argv that runs the ssh binary as a shell transport.
// -T disables pseudo terminal allocation so that output is not mangled.
func Args(host, user string, port int, keyPath string) []string {
	args := []string{"ssh", "-T"}
	if port != 0 {
		args = append(args, "-p", strconv.Itoa(port))
	}
	if user != "" {
		args = append(args, "-l", user)
	}
	if keyPath != "" {
		args = append(args, "-i", expandHome(keyPath))
	}
	return append(args, host)
}
