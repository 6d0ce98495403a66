package protocol

import (
	"fmt"
	"strings"
)

// Dialect holds the shell-syntax specific parts of command framing. The
// dialect is chosen once per connection; it is never probed from the remote
// side.
type Dialect interface {
	Name() string

	// VariableCommand frames command so that it is followed by marker, a
	// newline, the command's exit status and a newline.
	VariableCommand(command, marker []byte) []byte

	// FixedCommand frames command so that it is followed by its exit status
	// and a newline.
	FixedCommand(command []byte) []byte

	// ZeroCommand is a no-op that succeeds. It is run once per connection
	// to skip any login banner.
	ZeroCommand() []byte
}

var (
	// Posix frames commands for sh, bash, zsh and other POSIX shells.
	Posix Dialect = posixDialect{}

	// PowerShell frames commands for Windows PowerShell and pwsh. The exit
	// status is 1 when the command threw and 0 otherwise; $LASTEXITCODE of
	// native executables is not reported.
	PowerShell Dialect = powerShellDialect{}
)

// ParseDialect maps a configuration value to a Dialect. The empty string
// selects Posix.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "posix", "sh", "bash":
		return Posix, nil
	case "powershell", "pwsh":
		return PowerShell, nil
	default:
		return nil, fmt.Errorf("unknown shell dialect %q (use posix or powershell)", name)
	}
}

type posixDialect struct{}

func (posixDialect) Name() string { return "posix" }

func (posixDialect) VariableCommand(command, marker []byte) []byte {
	out := make([]byte, 0, len(command)+len(marker)+48)
	out = append(out, command...)
	out = append(out, " ; x=$?; printf '%s\\n' '"...)
	out = append(out, marker...)
	out = append(out, "'; echo $x\n"...)
	return out
}

func (posixDialect) FixedCommand(command []byte) []byte {
	out := make([]byte, 0, len(command)+12)
	out = append(out, command...)
	return append(out, " ; echo $?\n"...)
}

func (posixDialect) ZeroCommand() []byte { return []byte("test 0 -eq 0") }

type powerShellDialect struct{}

func (powerShellDialect) Name() string { return "powershell" }

func (powerShellDialect) VariableCommand(command, marker []byte) []byte {
	out := make([]byte, 0, len(command)+len(marker)+64)
	out = append(out, "$x=0; try {"...)
	out = append(out, command...)
	out = append(out, "} catch { $x=1 }\nWrite-Host -NoNewline "...)
	out = append(out, marker...)
	out = append(out, "`n$x`n\n"...)
	return out
}

func (powerShellDialect) FixedCommand(command []byte) []byte {
	out := make([]byte, 0, len(command)+64)
	out = append(out, "$x=0; try {"...)
	out = append(out, command...)
	return append(out, "} catch { $x=1 }\nWrite-Host -NoNewline $x`n\n"...)
}

func (powerShellDialect) ZeroCommand() []byte { return []byte("Write-Host hello") }
