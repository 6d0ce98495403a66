package protocol

import (
	"fmt"
	"io"
	"strings"

	"github.com/yoanbernabeu/shellwire/internal/constants"
	"go.uber.org/zap"
)

// MissingFileCode is the return code reported when the remote side could
// not determine the size of the requested file, usually because it does
// not exist or is unreadable.
const MissingFileCode = constants.MissingFileCode

// StatStyle selects the stat(1) flavour used to print a file size.
type StatStyle int

const (
	// GNUStat uses `stat -c %s` (Linux, coreutils).
	GNUStat StatStyle = iota
	// BSDStat uses `stat -f %z` (macOS, *BSD).
	BSDStat
)

// ParseStatStyle maps a configuration value to a StatStyle. The empty string
// selects GNUStat.
func ParseStatStyle(name string) (StatStyle, error) {
	switch strings.ToLower(name) {
	case "", "gnu", "linux":
		return GNUStat, nil
	case "bsd", "osx", "macos", "darwin":
		return BSDStat, nil
	default:
		return GNUStat, fmt.Errorf("unknown stat style %q (use gnu or bsd)", name)
	}
}

func (s StatStyle) String() string {
	if s == BSDStat {
		return "bsd"
	}
	return "gnu"
}

func (s StatStyle) sizeCommand() string {
	if s == BSDStat {
		return "stat -f %z "
	}
	return "stat -c %s "
}

// Download states, ordered by how hot they are in Next.
const (
	downloadLength     = 1
	downloadContent    = 2
	downloadReturnCode = 3
	downloadExhausted  = 4
)

// Download streams a remote file in a single round trip. The remote side
// prints the file size and a newline, the file content, and the exit status
// and a newline. Content is counted, not scanned, so it may hold any bytes.
//
// A negative size means the file could not be read; Next then ends the
// response at once with ReturnCode MissingFileCode.
//
// The "command" passed to FinalCommand is the shell-quoted remote path.
// Only POSIX shells are supported.
type Download struct {
	stat StatStyle
	src  Stream
	log  *zap.SugaredLogger

	state      int
	length     int
	read       int
	rcBuf      []byte
	returnCode int
}

// NewDownload returns a download generator reading from src.
func NewDownload(src Stream, stat StatStyle, opts ...Option) *Download {
	o := newOptions(opts)
	return &Download{
		stat:       stat,
		src:        src,
		log:        o.log,
		state:      downloadLength,
		returnCode: NoReturnCode,
	}
}

// FinalCommand prints -1 instead of a size when path is not a readable
// regular file, so that no content and no exit status follow.
func (g *Download) FinalCommand(path []byte) []byte {
	p := string(path)
	return []byte("if [ -f " + p + " ] && [ -r " + p + " ] && s=$(" + g.stat.sizeCommand() + p + "); " +
		"then echo $s; cat " + p + "; echo $?; else echo -1; fi\n")
}

// Length is the announced file size, valid once the first chunk was read.
func (g *Download) Length() int { return g.length }

func (g *Download) Next() ([]byte, error) {
	var chunk []byte
	for {
		switch g.state {
		case downloadContent:
			if len(chunk) == 0 {
				var err error
				chunk, err = g.src.Next()
				if err == io.EOF {
					return nil, fmt.Errorf("download ended after %d of %d bytes: %w", g.read, g.length, io.ErrUnexpectedEOF)
				}
				if err != nil {
					return nil, err
				}
			}
			g.read += len(chunk)
			if g.read < g.length {
				return chunk, nil
			}
			g.state = downloadReturnCode
			keep := len(chunk) - (g.read - g.length)
			chunk, g.rcBuf = chunk[:keep], chunk[keep:]
			if len(chunk) > 0 {
				return chunk, nil
			}

		case downloadLength:
			length, rest, err := readNumber(nil, g.src)
			if err != nil {
				return nil, err
			}
			g.length = length
			if length < 0 {
				g.returnCode = MissingFileCode
				g.state = downloadExhausted
				return nil, io.EOF
			}
			g.state = downloadContent
			chunk = rest

		case downloadReturnCode:
			code, trailing, err := readNumber(g.rcBuf, g.src)
			if err != nil {
				return nil, err
			}
			warnTrailing(g.log, trailing)
			g.returnCode = code
			g.rcBuf = nil
			g.state = downloadExhausted

		case downloadExhausted:
			return nil, io.EOF

		default:
			return nil, fmt.Errorf("%w: %d", ErrUnknownState, g.state)
		}
	}
}

func (g *Download) ReturnCode() int { return g.returnCode }

func (g *Download) Done() bool { return g.state == downloadExhausted }

func (g *Download) Reset() {
	g.state = downloadLength
	g.length = 0
	g.read = 0
	g.rcBuf = nil
	g.returnCode = NoReturnCode
}
