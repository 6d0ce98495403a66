package protocol

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"

	"github.com/yoanbernabeu/shellwire/internal/align"
	"go.uber.org/zap"
)

const markerAffix = "----shellwire-end-marker-"

type variableState int

const (
	variableOutput variableState = iota
	variableReturnCode
	variableExhausted
)

// VariableLength handles commands whose output length is unknown. The framed
// command prints a random end marker after the output; the output stream is
// pattern-aligned on that marker so a substring test finds it.
//
// The marker is drawn once per instance and reused for every cycle.
type VariableLength struct {
	dialect      Dialect
	marker       []byte
	streamMarker []byte
	plain        Stream
	aligned      *align.Aligner[[]byte]
	log          *zap.SugaredLogger

	state      variableState
	rcBuf      []byte
	returnCode int
}

// NewVariableLength returns a generator reading from src.
func NewVariableLength(src Stream, dialect Dialect, opts ...Option) *VariableLength {
	o := newOptions(opts)
	marker := newEndMarker()
	streamMarker := append(append([]byte{}, marker...), '\n')
	return &VariableLength{
		dialect:      dialect,
		marker:       marker,
		streamMarker: streamMarker,
		plain:        src,
		aligned:      align.New[[]byte](src, streamMarker),
		log:          o.log,
		returnCode:   NoReturnCode,
	}
}

// newEndMarker builds a token that is very unlikely to appear in real output.
// It is not a secret, so math/rand is sufficient.
func newEndMarker() []byte {
	id := strconv.FormatInt(1_000_000_000+rand.Int64N(9_000_000_000), 10)
	rev := []byte(markerAffix)
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return []byte(markerAffix + id + string(rev))
}

// Marker returns the end marker without its trailing newline.
func (g *VariableLength) Marker() []byte { return g.marker }

// ZeroCommand returns the dialect's zero command.
func (g *VariableLength) ZeroCommand() []byte { return g.dialect.ZeroCommand() }

func (g *VariableLength) FinalCommand(command []byte) []byte {
	return g.dialect.VariableCommand(command, g.marker)
}

func (g *VariableLength) Next() ([]byte, error) {
	switch g.state {
	case variableOutput:
		chunk, err := g.aligned.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("output ended before end marker: %w", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, err
		}
		before, after, found := bytes.Cut(chunk, g.streamMarker)
		if !found {
			return chunk, nil
		}
		g.state = variableReturnCode
		g.rcBuf = after
		if len(before) > 0 {
			return before, nil
		}
		return g.finish()
	case variableReturnCode:
		return g.finish()
	case variableExhausted:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, g.state)
	}
}

// finish parses the exit status. Bytes after the marker need no alignment,
// so they are read from the plain stream.
func (g *VariableLength) finish() ([]byte, error) {
	code, trailing, err := readNumber(g.rcBuf, g.plain)
	if err != nil {
		return nil, err
	}
	warnTrailing(g.log, trailing)
	g.returnCode = code
	g.rcBuf = nil
	g.state = variableExhausted
	return nil, io.EOF
}

func (g *VariableLength) ReturnCode() int { return g.returnCode }

func (g *VariableLength) Done() bool { return g.state == variableExhausted }

func (g *VariableLength) Reset() {
	g.state = variableOutput
	g.rcBuf = nil
	g.returnCode = NoReturnCode
}
