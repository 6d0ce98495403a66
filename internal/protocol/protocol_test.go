package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoanbernabeu/shellwire/internal/align"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// queue is a Stream whose chunks can be appended after the generator that
// reads it was created (the marker is only known afterwards).
type queue struct {
	chunks [][]byte
}

func (q *queue) push(chunks ...[]byte) { q.chunks = append(q.chunks, chunks...) }

func (q *queue) Next() ([]byte, error) {
	if len(q.chunks) == 0 {
		return nil, io.EOF
	}
	c := q.chunks[0]
	q.chunks = q.chunks[1:]
	return c, nil
}

func drain(t *testing.T, g Generator) []byte {
	t.Helper()
	var out bytes.Buffer
	for {
		chunk, err := g.Next()
		if err == io.EOF {
			return out.Bytes()
		}
		require.NoError(t, err)
		out.Write(chunk)
	}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

func TestReadNumber(t *testing.T) {
	tests := []struct {
		name    string
		buf     string
		chunks  []string
		want    int
		rest    string
		wantErr error
	}{
		{name: "complete in buffer", buf: "42\nrest", want: 42, rest: "rest"},
		{name: "pulls chunks", buf: "1", chunks: []string{"2", "3\n"}, want: 123, rest: ""},
		{name: "negative", buf: "-1\nabc", want: -1, rest: "abc"},
		{name: "carriage return", buf: "7\r\n", want: 7, rest: ""},
		{name: "not a number", buf: "abc0\n", wantErr: ErrMalformedNumber},
		{name: "stream ends", buf: "12", wantErr: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &queue{}
			for _, c := range tt.chunks {
				src.push([]byte(c))
			}
			n, rest, err := readNumber([]byte(tt.buf), src)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Equal(t, tt.rest, string(rest))
		})
	}
}

func TestVariableLength_RoundTrip(t *testing.T) {
	outputs := []string{"", "0123456789", "line 1\nline 2\n", "----shellwire-end-"}

	for _, output := range outputs {
		t.Run(output, func(t *testing.T) {
			src := &queue{}
			g := NewVariableLength(src, Posix)
			stream := output + string(g.Marker()) + "\n" + "3\n"
			for i := 0; i < len(stream); i += 5 {
				src.push([]byte(stream[i:min(i+5, len(stream))]))
			}

			assert.Equal(t, output, string(drain(t, g)))
			assert.True(t, g.Done())
			assert.Equal(t, 3, g.ReturnCode())
		})
	}
}

func TestVariableLength_Reuse(t *testing.T) {
	src := &queue{}
	g := NewVariableLength(src, Posix)
	marker := string(g.Marker())

	src.push([]byte("first\n" + marker + "\n0\n"))
	assert.Equal(t, "first\n", string(drain(t, g)))
	assert.Equal(t, 0, g.ReturnCode())

	g.Reset()
	assert.False(t, g.Done())
	assert.Equal(t, NoReturnCode, g.ReturnCode())

	src.push([]byte("sec"), []byte("ond"+marker), []byte("\n12"), []byte("7\n"))
	assert.Equal(t, "second", string(drain(t, g)))
	assert.Equal(t, 127, g.ReturnCode())
}

func TestVariableLength_ExhaustedKeepsReturningEOF(t *testing.T) {
	src := &queue{}
	g := NewVariableLength(src, Posix)
	src.push([]byte(string(g.Marker()) + "\n5\n"))

	_, err := g.Next()
	assert.Equal(t, io.EOF, err)
	_, err = g.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 5, g.ReturnCode())
}

func TestVariableLength_TrailingContent(t *testing.T) {
	log, logs := observedLogger()
	src := &queue{}
	g := NewVariableLength(src, Posix, WithLogger(log))
	src.push([]byte("123\n"), []byte(string(g.Marker())+"\n"), []byte("0\nEXTRA-CONTENT\n"))

	assert.Equal(t, "123\n", string(drain(t, g)))
	assert.Equal(t, 0, g.ReturnCode())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, `unexpected output after return code: "EXTRA-CONTENT\n"`, logs.All()[0].Message)
}

func TestVariableLength_StreamEndsEarly(t *testing.T) {
	g := NewVariableLength(&queue{chunks: [][]byte{[]byte("partial")}}, Posix)

	chunk, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", string(chunk))
	_, err = g.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, g.Done())
}

func TestVariableLength_MarkersDiffer(t *testing.T) {
	a := NewVariableLength(&queue{}, Posix)
	b := NewVariableLength(&queue{}, Posix)

	assert.NotEqual(t, a.Marker(), b.Marker())
	assert.True(t, bytes.HasPrefix(a.Marker(), []byte(markerAffix)))
	assert.True(t, bytes.HasSuffix(a.Marker(), []byte("-rekram-dne-eriwllehs----")))
}

func TestFixedLength_Exact(t *testing.T) {
	src := align.FromSlice([]byte("01234"), []byte("56789"), []byte("0\n"))
	g := NewFixedLength(src, Posix, 10)

	assert.Equal(t, "0123456789", string(drain(t, g)))
	assert.Equal(t, 0, g.ReturnCode())
}

func TestFixedLength_SingleChunk(t *testing.T) {
	src := &queue{}
	src.push([]byte("01234567892\n"))
	g := NewFixedLength(src, Posix, 10)

	assert.Equal(t, "0123456789", string(drain(t, g)))
	assert.Equal(t, 2, g.ReturnCode())
}

func TestFixedLength_ExcessIsReturnCodeText(t *testing.T) {
	src := &queue{}
	src.push([]byte("0123456789abc0\n"))
	g := NewFixedLength(src, Posix, 10)

	chunk, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(chunk))

	_, err = g.Next()
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestFixedLength_TrailingContent(t *testing.T) {
	log, logs := observedLogger()
	src := &queue{}
	src.push([]byte("1230\nEXTRA-CONTENT\n"))
	g := NewFixedLength(src, Posix, 3, WithLogger(log))

	assert.Equal(t, "123", string(drain(t, g)))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, `unexpected output after return code: "EXTRA-CONTENT\n"`, logs.All()[0].Message)
}

func TestFixedLength_Reuse(t *testing.T) {
	src := &queue{}
	g := NewFixedLength(src, Posix, 2)

	src.push([]byte("ab0\n"))
	assert.Equal(t, "ab", string(drain(t, g)))
	g.Reset()
	src.push([]byte("c"), []byte("d1\n"))
	assert.Equal(t, "cd", string(drain(t, g)))
	assert.Equal(t, 1, g.ReturnCode())
}

func TestDownload(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
		code   int
	}{
		{name: "single chunk", chunks: []string{"3\n1230\n"}, want: "123", code: 0},
		{name: "split", chunks: []string{"1", "0\n0123", "456789", "0", "\n"}, want: "0123456789", code: 0},
		{name: "empty file", chunks: []string{"0\n", "0\n"}, want: "", code: 0},
		{name: "binary content", chunks: []string{"4\n\x00\n-1", "1\n"}, want: "\x00\n-1", code: 1},
		{name: "missing file", chunks: []string{"-1\n", "whatever\n"}, want: "", code: MissingFileCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &queue{}
			for _, c := range tt.chunks {
				src.push([]byte(c))
			}
			g := NewDownload(src, GNUStat)

			assert.Equal(t, tt.want, string(drain(t, g)))
			assert.Equal(t, tt.code, g.ReturnCode())
			assert.True(t, g.Done())
		})
	}
}

func TestDownload_TrailingContent(t *testing.T) {
	log, logs := observedLogger()
	src := &queue{}
	src.push([]byte("3\n1230\nEXTRA-CONTENT\n"))
	g := NewDownload(src, GNUStat, WithLogger(log))

	assert.Equal(t, "123", string(drain(t, g)))
	assert.Equal(t, 3, g.Length())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, `unexpected output after return code: "EXTRA-CONTENT\n"`, logs.All()[0].Message)
}

func TestDownload_FinalCommand(t *testing.T) {
	gnu := string(NewDownload(&queue{}, GNUStat).FinalCommand([]byte("'/tmp/a b'")))
	bsd := string(NewDownload(&queue{}, BSDStat).FinalCommand([]byte("'/tmp/a b'")))

	assert.Contains(t, gnu, "stat -c %s '/tmp/a b'")
	assert.Contains(t, bsd, "stat -f %z '/tmp/a b'")
	assert.Contains(t, gnu, "cat '/tmp/a b'; echo $?")
	assert.Contains(t, gnu, "else echo -1; fi\n")
}

func TestUnknownState(t *testing.T) {
	v := NewVariableLength(&queue{}, Posix)
	v.state = 99
	f := NewFixedLength(&queue{}, Posix, 100)
	f.state = 99
	d := NewDownload(&queue{}, GNUStat)
	d.state = 99

	for _, g := range []Generator{v, f, d} {
		_, err := g.Next()
		assert.ErrorIs(t, err, ErrUnknownState)
	}
}

func TestDialects(t *testing.T) {
	marker := []byte("MARK")

	assert.Equal(t, "ls ; x=$?; printf '%s\\n' 'MARK'; echo $x\n", string(Posix.VariableCommand([]byte("ls"), marker)))
	assert.Equal(t, "ls ; echo $?\n", string(Posix.FixedCommand([]byte("ls"))))
	assert.Equal(t, "$x=0; try {dir} catch { $x=1 }\nWrite-Host -NoNewline MARK`n$x`n\n", string(PowerShell.VariableCommand([]byte("dir"), marker)))
	assert.Equal(t, "$x=0; try {dir} catch { $x=1 }\nWrite-Host -NoNewline $x`n\n", string(PowerShell.FixedCommand([]byte("dir"))))
	assert.Equal(t, "test 0 -eq 0", string(Posix.ZeroCommand()))
	assert.Equal(t, "Write-Host hello", string(PowerShell.ZeroCommand()))

	for _, name := range []string{"", "posix", "bash"} {
		d, err := ParseDialect(name)
		require.NoError(t, err)
		assert.Equal(t, Posix, d)
	}
	d, err := ParseDialect("PowerShell")
	require.NoError(t, err)
	assert.Equal(t, PowerShell, d)
	_, err = ParseDialect("fish")
	assert.Error(t, err)
}

func TestParseStatStyle(t *testing.T) {
	s, err := ParseStatStyle("osx")
	require.NoError(t, err)
	assert.Equal(t, BSDStat, s)
	s, err = ParseStatStyle("")
	require.NoError(t, err)
	assert.Equal(t, GNUStat, s)
	_, err = ParseStatStyle("busybox")
	assert.Error(t, err)
}
