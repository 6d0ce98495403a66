package shell

import (
	"fmt"
	"strings"
)

// Result is the collected outcome of one command.
type Result struct {
	Stdout     []byte
	Stderr     []byte
	ReturnCode int
}

// Err returns a *CommandError describing r, or nil if the command
// succeeded.
func (r *Result) Err(command, message string) error {
	if r.ReturnCode == 0 {
		return nil
	}
	return &CommandError{
		Command:    command,
		Message:    message,
		ReturnCode: r.ReturnCode,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
	}
}

// CommandError reports a command that finished with a non-zero exit status.
type CommandError struct {
	Command    string
	Message    string
	ReturnCode int
	Stdout     []byte
	Stderr     []byte
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %q failed (exit %d)", e.Command, e.ReturnCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if msg := strings.TrimSpace(string(e.Stderr)); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}
