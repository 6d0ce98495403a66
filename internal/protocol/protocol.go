// Package protocol frames shell commands and parses their framed responses.
//
// A persistent shell writes every command's output to the same stream. To
// find where one command's output ends, each command is wrapped ("framed")
// with extra shell syntax that emits a trailer after the command finished:
// an end marker or a length, followed by the command's exit status. A
// Generator produces that framing and then splits the incoming byte stream
// back into real output and trailer.
//
// Three strategies exist:
//
//   - VariableLength: output of unknown length, delimited by a random end
//     marker. This is the default.
//   - FixedLength: output whose exact byte count the caller already knows.
//   - Download: the remote side announces the length of a file before
//     streaming it, so binary content needs no marker.
//
// A Generator drives exactly one in-flight command at a time. It must not be
// used from several goroutines at once.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/yoanbernabeu/shellwire/internal/align"
	"go.uber.org/zap"
)

// Stream is the raw output of a shell, delivered in chunks of arbitrary size.
type Stream = align.Source[[]byte]

// NoReturnCode is reported by ReturnCode before a response was fully parsed.
const NoReturnCode = -1

var (
	// ErrUnknownState indicates a corrupted generator. It is a programming
	// error, never a remote condition.
	ErrUnknownState = errors.New("unknown response generator state")

	// ErrMalformedNumber is returned when a length or exit status line does
	// not hold a decimal integer, usually because the stream is out of sync.
	ErrMalformedNumber = errors.New("malformed number in response")
)

// Generator frames commands and parses the framed response of one command.
type Generator interface {
	// FinalCommand returns the text to send to the shell so that command's
	// output is followed by the trailer this generator understands.
	FinalCommand(command []byte) []byte

	// Next returns the next chunk of the command's output. It returns io.EOF
	// once the exit status was read; Done then reports true.
	Next() ([]byte, error)

	// ReturnCode is the command's exit status, valid once Done is true.
	ReturnCode() int

	// Done reports whether the response was fully consumed.
	Done() bool

	// Reset moves an exhausted generator back to its initial state so the
	// same instance can frame and parse another command.
	Reset()
}

// Option configures a Generator.
type Option func(*options)

type options struct {
	log *zap.SugaredLogger
}

// WithLogger sets the logger used for protocol warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l.Named("protocol").Sugar()
	}
}

func newOptions(opts []Option) options {
	o := options{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// readNumber reads from buf, pulling more chunks from src as needed, until a
// newline is found. The text before the newline is parsed as a base-10
// integer; the bytes after it are returned as the remainder.
func readNumber(buf []byte, src Stream) (int, []byte, error) {
	for {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			digits := bytes.TrimSpace(buf[:i])
			n, err := strconv.Atoi(string(digits))
			if err != nil {
				return 0, nil, fmt.Errorf("%w: %q", ErrMalformedNumber, buf[:i])
			}
			return n, buf[i+1:], nil
		}
		chunk, err := src.Next()
		if err == io.EOF {
			return 0, buf, io.ErrUnexpectedEOF
		}
		if err != nil {
			return 0, buf, err
		}
		// full slice expression: never write into the caller's chunk
		buf = append(buf[:len(buf):len(buf)], chunk...)
	}
}

// warnTrailing logs bytes found after a parsed exit status. The status itself
// parsed correctly, so the bytes are dropped rather than reported as errors.
func warnTrailing(log *zap.SugaredLogger, trailing []byte) {
	if len(trailing) > 0 {
		log.Warnf("unexpected output after return code: %q", trailing)
	}
}
