package protocol

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

type fixedState int

const (
	fixedOutput fixedState = iota
	fixedReturnCode
	fixedExhausted
)

// FixedLength handles commands whose output size is known in advance. It
// reads exactly length bytes of output followed by the exit status line, so
// no marker scanning is needed.
//
// If the command writes more or fewer bytes than declared, the stream is out
// of sync; this cannot be detected in-band and usually shows up as
// ErrMalformedNumber.
type FixedLength struct {
	dialect Dialect
	src     Stream
	length  int
	log     *zap.SugaredLogger

	state      fixedState
	read       int
	rcBuf      []byte
	returnCode int
}

// NewFixedLength returns a generator that expects length bytes of output.
func NewFixedLength(src Stream, dialect Dialect, length int, opts ...Option) *FixedLength {
	o := newOptions(opts)
	return &FixedLength{
		dialect:    dialect,
		src:        src,
		length:     length,
		log:        o.log,
		returnCode: NoReturnCode,
	}
}

func (g *FixedLength) FinalCommand(command []byte) []byte {
	return g.dialect.FixedCommand(command)
}

func (g *FixedLength) Next() ([]byte, error) {
	switch g.state {
	case fixedOutput:
		chunk, err := g.src.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("output ended after %d of %d bytes: %w", g.read, g.length, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, err
		}
		g.read += len(chunk)
		if g.read < g.length {
			return chunk, nil
		}
		g.state = fixedReturnCode
		keep := len(chunk) - (g.read - g.length)
		chunk, g.rcBuf = chunk[:keep], chunk[keep:]
		if len(chunk) > 0 {
			return chunk, nil
		}
		return g.finish()
	case fixedReturnCode:
		return g.finish()
	case fixedExhausted:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, g.state)
	}
}

func (g *FixedLength) finish() ([]byte, error) {
	code, trailing, err := readNumber(g.rcBuf, g.src)
	if err != nil {
		return nil, err
	}
	warnTrailing(g.log, trailing)
	g.returnCode = code
	g.rcBuf = nil
	g.state = fixedExhausted
	return nil, io.EOF
}

func (g *FixedLength) ReturnCode() int { return g.returnCode }

func (g *FixedLength) Done() bool { return g.state == fixedExhausted }

func (g *FixedLength) Reset() {
	g.state = fixedOutput
	g.read = 0
	g.rcBuf = nil
	g.returnCode = NoReturnCode
}
