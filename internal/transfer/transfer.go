// Package transfer copies files to and from the machine behind a shell
// executor, using nothing but the executor's own stdin and stdout.
//
// Only POSIX shells are supported: uploads rely on head(1), downloads on
// stat(1) and cat(1).
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/security"
	"github.com/yoanbernabeu/shellwire/internal/shell"
	"github.com/yoanbernabeu/shellwire/internal/subproc"
	"go.uber.org/zap"
)

// Executor is the part of *shell.Executor used for transfers.
type Executor interface {
	Start(command []byte, opts ...shell.RunOption) (protocol.Generator, error)
	Run(command []byte, opts ...shell.RunOption) (*shell.Result, error)
	Output() protocol.Stream
	Stderr() *subproc.Deque
}

var _ Executor = (*shell.Executor)(nil)

// ProgressFunc is called with the number of bytes transferred so far and
// the total size.
type ProgressFunc func(done, total int64)

// Option configures a transfer.
type Option func(*options)

type options struct {
	progress ProgressFunc
	stat     protocol.StatStyle
	log      *zap.SugaredLogger
}

// WithProgress reports progress to fn after every chunk.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithStat selects the stat(1) flavour of the remote side for downloads.
func WithStat(s protocol.StatStyle) Option {
	return func(o *options) { o.stat = s }
}

// WithLogger sets the logger for warnings about the transferred data.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l.Named("transfer").Sugar() }
}

func newOptions(opts []Option) options {
	o := options{
		progress: func(int64, int64) {},
		stat:     protocol.GNUStat,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Upload copies localPath to remotePath. The remote side reads exactly the
// file's size from the shell's stdin; if the file shrinks while it is being
// sent, the missing bytes are sent as zeros so the stream stays in sync.
func Upload(e Executor, localPath, remotePath string, opts ...Option) error {
	o := newOptions(opts)
	if err := security.ValidateRemotePath(remotePath); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", localPath)
	}
	size := info.Size()

	// head failing to open the target still has to consume size bytes, or
	// they would be run as commands.
	path := security.ShellEscape(remotePath)
	cmd := fmt.Sprintf("{ head -c %d > %s || { rc=$?; head -c %d >/dev/null; (exit $rc); }; }", size, path, size)

	pad := &zeroPadding{log: o.log, path: localPath}
	body := &progressReader{
		r:        io.LimitReader(io.MultiReader(f, pad), size),
		total:    size,
		progress: o.progress,
	}

	// Run returns only once body is no longer read, so f can be closed
	res, err := e.Run([]byte(cmd), shell.WithStdin(body))
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return res.Err(cmd, fmt.Sprintf("upload to %s failed", remotePath))
}

// Download copies remotePath to localPath, creating missing local
// directories. On failure the partially written local file is removed.
// A missing or unreadable remote file fails with a *shell.CommandError whose
// ReturnCode is protocol.MissingFileCode.
func Download(e Executor, remotePath, localPath string, opts ...Option) (err error) {
	o := newOptions(opts)
	if err := security.ValidateRemotePath(remotePath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create local directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close local file: %w", cerr)
		}
		if err != nil {
			os.Remove(localPath)
		}
	}()

	g := protocol.NewDownload(e.Output(), o.stat, protocol.WithLogger(o.log.Desugar()))
	path := security.ShellEscape(remotePath)
	if _, err := e.Start([]byte(path), shell.WithGenerator(g)); err != nil {
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}

	var written int64
	var writeErr error
	for {
		chunk, err := g.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", remotePath, err)
		}
		// keep draining after a write error so the shell stays usable
		if writeErr != nil {
			continue
		}
		if _, writeErr = f.Write(chunk); writeErr != nil {
			continue
		}
		written += int64(len(chunk))
		o.progress(written, int64(g.Length()))
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write local file: %w", writeErr)
	}

	res := &shell.Result{Stderr: e.Stderr().Take(), ReturnCode: g.ReturnCode()}
	message := fmt.Sprintf("download of %s failed", remotePath)
	if g.ReturnCode() == protocol.MissingFileCode && g.Length() < 0 {
		message = fmt.Sprintf("%s does not exist or is not readable", remotePath)
	}
	return res.Err(string(g.FinalCommand([]byte(path))), message)
}

// Delete removes files on the remote side. With force, missing files are
// not an error.
func Delete(e Executor, files []string, force bool) error {
	if len(files) == 0 {
		return errors.New("no files to delete")
	}

	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, "--")
	for _, file := range files {
		if err := security.ValidateRemotePath(file); err != nil {
			return err
		}
		args = append(args, security.ShellEscape(file))
	}
	cmd := strings.Join(args, " ")

	res, err := e.Run([]byte(cmd))
	if err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return res.Err(cmd, "delete failed")
}

type progressReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.progress(p.done, p.total)
	}
	return n, err
}

// zeroPadding yields zeros after the local file ended early.
type zeroPadding struct {
	log    *zap.SugaredLogger
	path   string
	warned bool
}

func (z *zeroPadding) Read(b []byte) (int, error) {
	if !z.warned {
		z.warned = true
		z.log.Warnf("%s shrank during upload, padding with zeros", z.path)
	}
	clear(b)
	return len(b), nil
}
