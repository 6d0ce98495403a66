// Package shell runs many commands, one after another, over a single
// long-lived shell process.
//
// Commands are framed by a protocol.Generator and written to the shell's
// stdin; the generator splits the shell's stdout back into command output
// and exit status. Stderr is collected separately and handed out per
// command by Run.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/yoanbernabeu/shellwire/internal/constants"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/security"
	"github.com/yoanbernabeu/shellwire/internal/subproc"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when a command is started after Close.
	ErrClosed = errors.New("shell executor is closed")

	// ErrBusy is returned when a command is started before the response of
	// the previous one was consumed. Two in-flight commands would interleave
	// their output on the shared stream.
	ErrBusy = errors.New("previous command response not consumed")
)

// Option configures an Executor.
type Option func(*options)

type options struct {
	dialect    protocol.Dialect
	logger     *zap.Logger
	chunkSize  int
	stderrSize int
}

// WithDialect selects how commands are framed. The default is protocol.Posix.
func WithDialect(d protocol.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithLogger sets the logger; every connection gets its own id field.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithChunkSize caps how many bytes are read from the shell's stdout at once.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithStderrSize caps how many stderr bytes are kept between two Run calls.
func WithStderrSize(n int) Option {
	return func(o *options) { o.stderrSize = n }
}

// Executor owns one shell process. Commands run strictly one at a time:
// Start returns ErrBusy until the previous response was read to the end.
type Executor struct {
	argv    []string
	dialect protocol.Dialect
	proc    *subproc.Process
	log     *zap.SugaredLogger
	genOpts []protocol.Option

	mu      sync.Mutex
	current protocol.Generator
	closed  bool
}

// Open starts argv as a local process and wraps it in an Executor.
func Open(argv []string, opts ...Option) (*Executor, error) {
	conn, err := subproc.Command(argv)
	if err != nil {
		return nil, err
	}
	return New(conn, argv, opts...)
}

// New wraps an already started shell connection. argv is only used for
// display. The dialect's zero command is run first so that any login banner
// is consumed; if it does not complete successfully the connection is
// killed and an error returned.
func New(conn subproc.Conn, argv []string, opts ...Option) (*Executor, error) {
	o := options{
		dialect:    protocol.Posix,
		logger:     zap.NewNop(),
		chunkSize:  constants.DefaultChunkSize,
		stderrSize: constants.DefaultStderrSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With(zap.String("conn", uuid.NewString()))
	e := &Executor{
		argv:    argv,
		dialect: o.dialect,
		log:     logger.Named("shell").Sugar(),
		genOpts: []protocol.Option{protocol.WithLogger(logger)},
		proc: subproc.Start(conn,
			subproc.WithChunkSize(o.chunkSize),
			subproc.WithStderrSize(o.stderrSize),
			subproc.WithLogger(logger)),
	}

	if err := e.skipLogin(); err != nil {
		if kerr := e.proc.Kill(); kerr != nil {
			e.log.Debugw("kill failed", "error", kerr)
		}
		go func() { _ = e.proc.Wait(context.Background()) }()
		return nil, fmt.Errorf("failed to initialize %s shell %v: %w", o.dialect.Name(), argv, err)
	}
	e.log.Debugw("shell ready", "argv", argv, "dialect", o.dialect.Name())
	return e, nil
}

// skipLogin runs the zero command. Everything the shell prints before its
// end marker, such as a motd, is dropped.
func (e *Executor) skipLogin() error {
	g := protocol.NewVariableLength(e.proc, e.dialect, e.genOpts...)
	res, err := e.Run(g.ZeroCommand(), WithGenerator(g), WithCheck())
	if err != nil {
		return err
	}
	if len(res.Stdout) > 0 || len(res.Stderr) > 0 {
		e.log.Debugw("discarded login output", "stdout", len(res.Stdout), "stderr", len(res.Stderr))
	}
	return nil
}

// RunOption configures a single command.
type RunOption func(*runOptions)

type runOptions struct {
	generator protocol.Generator
	stdin     io.Reader
	check     bool
}

// WithGenerator frames the command with g instead of a new variable-length
// generator. An exhausted g is reset before use.
func WithGenerator(g protocol.Generator) RunOption {
	return func(o *runOptions) { o.generator = g }
}

// WithStdin queues r right after the framed command, so the command can
// read it from its stdin. r should hold exactly what the command reads: left
// over bytes are run as commands, and missing ones make the command wait
// for the next command's frame.
func WithStdin(r io.Reader) RunOption {
	return func(o *runOptions) { o.stdin = r }
}

// WithCheck makes Run return a *CommandError for a non-zero exit status.
func WithCheck() RunOption {
	return func(o *runOptions) { o.check = true }
}

// Start sends command to the shell and returns the generator that yields
// its output. The caller must read the generator until io.EOF before the
// next command can start.
//
// A WithStdin reader is copied in the background and stays in use until it
// returned EOF or an error, which may be after the generator reached io.EOF.
// Read errors are not reported by Start; use Run to wait for the reader and
// get its error.
func (e *Executor) Start(command []byte, opts ...RunOption) (protocol.Generator, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	g, _, err := e.start(command, ro)
	return g, err
}

// start also returns the channel reporting the outcome of the stdin reader;
// it is nil without stdin.
func (e *Executor) start(command []byte, ro runOptions) (protocol.Generator, <-chan error, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, ErrClosed
	}
	if e.current != nil && !e.current.Done() {
		return nil, nil, ErrBusy
	}

	g := ro.generator
	if g == nil {
		g = protocol.NewVariableLength(e.proc, e.dialect, e.genOpts...)
	} else if g.Done() {
		g.Reset()
	}

	e.log.Debugw("run", "command", security.SanitizeCommandForLog(string(command)))
	if _, err := e.proc.Feed(bytes.NewReader(g.FinalCommand(command))); err != nil {
		return nil, nil, fmt.Errorf("failed to send command: %w", err)
	}
	var inputDone <-chan error
	if ro.stdin != nil {
		done, err := e.proc.Feed(ro.stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to send command input: %w", err)
		}
		inputDone = done
	}
	e.current = g
	return g, inputDone, nil
}

// Run executes command and collects its complete output. Stderr holds
// whatever the shell wrote to stderr since the previous Run. Run does not
// return before a WithStdin reader was read to EOF, failed, or was abandoned
// because the shell's stdin broke. A failing reader is reported as an error
// along with the result; the shell stays usable as long as the command got
// all the input it reads.
func (e *Executor) Run(command []byte, opts ...RunOption) (*Result, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	g, inputDone, err := e.start(command, ro)
	if err != nil {
		return nil, err
	}

	var stdout bytes.Buffer
	for {
		chunk, err := g.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		stdout.Write(chunk)
	}

	// the stdin reader belongs to the caller again once Run returns
	var inputErr error
	if inputDone != nil {
		inputErr = <-inputDone
	}

	res := &Result{
		Stdout:     stdout.Bytes(),
		Stderr:     e.proc.Stderr().Take(),
		ReturnCode: g.ReturnCode(),
	}
	if inputErr != nil {
		return res, fmt.Errorf("failed to send command input: %w", inputErr)
	}
	if ro.check {
		if err := res.Err(string(command), ""); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Output is the shell's stdout stream. Generators passed to WithGenerator
// must read from it.
func (e *Executor) Output() protocol.Stream { return e.proc }

// Stderr is the buffer collecting the shell's stderr.
func (e *Executor) Stderr() *subproc.Deque { return e.proc.Stderr() }

// Dialect is the dialect commands are framed with.
func (e *Executor) Dialect() protocol.Dialect { return e.dialect }

// Close ends the shell's input. The shell exits once it has run all queued
// commands. Close does not wait; use Shutdown for that.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.proc.CloseInput()
	return nil
}

// Shutdown closes the executor and waits for the shell to exit, killing it
// when ctx is done first.
func (e *Executor) Shutdown(ctx context.Context) error {
	if err := e.Close(); err != nil {
		return err
	}
	return e.proc.Wait(ctx)
}

func (e *Executor) String() string {
	return fmt.Sprintf("Executor(%v)", e.argv)
}
