package subproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/yoanbernabeu/shellwire/internal/constants"
	"go.uber.org/zap"
)

// ErrInputClosed is returned by Feed after CloseInput.
var ErrInputClosed = errors.New("process input is closed")

// Option configures a Process.
type Option func(*options)

type options struct {
	chunkSize  int
	stderrSize int
	log        *zap.SugaredLogger
}

// WithChunkSize caps the size of the chunks returned by Next.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithStderrSize sets how many bytes of stderr are retained.
func WithStderrSize(n int) Option {
	return func(o *options) { o.stderrSize = n }
}

// WithLogger sets the logger for stream errors.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l.Named("subproc").Sugar() }
}

type input struct {
	r    io.Reader
	done chan error
}

// stdinWriter remembers the first write error, so a broken stdin can be
// told apart from a failing input reader.
type stdinWriter struct {
	w   io.Writer
	err error
}

func (s *stdinWriter) Write(b []byte) (int, error) {
	n, err := s.w.Write(b)
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}

// Process drives the standard streams of a Conn.
//
// Stdout is only read when Next is called, so a caller that stops reading
// applies back-pressure to the process. Stderr is drained continuously into a
// Deque so the process never blocks on it. Input handed to Feed is written to
// stdin by a single goroutine, in the order Feed was called.
type Process struct {
	conn   Conn
	stdout io.Reader
	buf    []byte
	stderr *Deque
	log    *zap.SugaredLogger

	stderrDone chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []input
	closed bool

	waitOnce sync.Once
	exited   chan struct{}
	waitErr  error
}

// Start takes over the streams of conn and starts the stderr and stdin
// goroutines.
func Start(conn Conn, opts ...Option) *Process {
	o := options{
		chunkSize:  constants.DefaultChunkSize,
		stderrSize: constants.DefaultStderrSize,
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Process{
		conn:       conn,
		stdout:     conn.Stdout(),
		buf:        make([]byte, o.chunkSize),
		stderr:     NewDeque(o.stderrSize),
		log:        o.log,
		stderrDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	go p.drainStderr()
	go p.feed()
	return p
}

// Next returns the next chunk of stdout, or io.EOF once the process closed
// it. Chunks are never larger than the configured chunk size.
func (p *Process) Next() ([]byte, error) {
	for {
		n, err := p.stdout.Read(p.buf)
		if n > 0 {
			return append([]byte(nil), p.buf[:n]...), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Stderr returns the buffer collecting the process's stderr.
func (p *Process) Stderr() *Deque { return p.stderr }

func (p *Process) drainStderr() {
	defer close(p.stderrDone)
	buf := make([]byte, 4096)
	r := p.conn.Stderr()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.stderr.Append(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				p.log.Debugw("stderr read failed", "error", err)
			}
			return
		}
	}
}

// Feed queues r to be copied to stdin after all previously queued input.
// The returned channel receives one value and is closed once r is no longer
// read: nil after r returned EOF, r's error when reading it failed, or the
// write error once stdin broke. Later input is still written after a
// failing r, but not after stdin broke.
func (p *Process) Feed(r io.Reader) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrInputClosed
	}
	in := input{r: r, done: make(chan error, 1)}
	p.queue = append(p.queue, in)
	p.cond.Signal()
	return in.done, nil
}

// CloseInput closes stdin once all queued input was written. Further Feed
// calls fail with ErrInputClosed. It is safe to call more than once.
func (p *Process) CloseInput() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Process) feed() {
	stdin := p.conn.Stdin()
	w := &stdinWriter{w: stdin}
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			if err := stdin.Close(); err != nil {
				p.log.Debugw("closing stdin failed", "error", err)
			}
			return
		}
		in := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		in.done <- p.copyInput(w, in.r)
		close(in.done)
	}
}

func (p *Process) copyInput(w *stdinWriter, r io.Reader) error {
	if w.err != nil {
		return fmt.Errorf("process stdin is broken: %w", w.err)
	}
	_, err := io.Copy(w, r)
	switch {
	case err == nil:
		return nil
	case w.err != nil:
		p.log.Warnw("writing to process stdin failed", "error", w.err)
		return fmt.Errorf("failed to write to process stdin: %w", w.err)
	default:
		p.log.Warnw("reading process input failed", "error", err)
		return fmt.Errorf("failed to read process input: %w", err)
	}
}

// Wait closes the input, discards unread stdout, and waits for the process
// to exit. When ctx is done first the process is killed and ctx.Err() is
// returned without waiting further.
func (p *Process) Wait(ctx context.Context) error {
	p.CloseInput()
	p.waitOnce.Do(func() {
		go func() {
			if _, err := io.Copy(io.Discard, p.stdout); err != nil {
				p.log.Debugw("draining stdout failed", "error", err)
			}
			<-p.stderrDone
			p.waitErr = p.conn.Wait()
			close(p.exited)
		}()
	})

	select {
	case <-p.exited:
		return p.waitErr
	case <-ctx.Done():
		if err := p.conn.Kill(); err != nil {
			p.log.Debugw("kill failed", "error", err)
		}
		return ctx.Err()
	}
}

// Kill terminates the process without waiting for it.
func (p *Process) Kill() error {
	p.CloseInput()
	return p.conn.Kill()
}
