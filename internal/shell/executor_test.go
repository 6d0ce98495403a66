package shell

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"go.uber.org/zap/zaptest"
)

func openBash(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	e, err := Open([]string{"bash"}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func TestExecutor_Output(t *testing.T) {
	e := openBash(t)

	res, err := e.Run([]byte("echo -n 0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(res.Stdout))
	assert.Equal(t, 0, res.ReturnCode)
}

func TestExecutor_ExitStatus(t *testing.T) {
	e := openBash(t)

	res, err := e.Run([]byte(`bash -c "exit 7"`))
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, 7, res.ReturnCode)
}

func TestExecutor_Sequence(t *testing.T) {
	e := openBash(t)

	commands := []struct {
		command string
		stdout  string
		code    int
	}{
		{"x=41", "", 0},
		{"echo $((x + 1))", "42\n", 0},
		{"false", "", 1},
		{"printf 'a\\nb\\n'", "a\nb\n", 0},
		{"seq 1 3", "1\n2\n3\n", 0},
	}

	for _, c := range commands {
		res, err := e.Run([]byte(c.command))
		require.NoError(t, err, c.command)
		assert.Equal(t, c.stdout, string(res.Stdout), c.command)
		assert.Equal(t, c.code, res.ReturnCode, c.command)
	}
}

func TestExecutor_LargeOutput(t *testing.T) {
	e := openBash(t, WithChunkSize(1000))

	res, err := e.Run([]byte("head -c 300000 /dev/zero"))
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 300000)
	assert.Equal(t, 0, res.ReturnCode)
}

func TestExecutor_Check(t *testing.T) {
	e := openBash(t)

	res, err := e.Run([]byte("echo out; echo err >&2; exit_code() { return 3; }; exit_code"), WithCheck())
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ReturnCode)
	assert.Equal(t, "out\n", string(cmdErr.Stdout))
	assert.Contains(t, err.Error(), "failed (exit 3)")
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ReturnCode)
}

func TestExecutor_Stderr(t *testing.T) {
	e := openBash(t)

	res, err := e.Run([]byte("echo oops >&2"))
	require.NoError(t, err)

	// stderr travels on its own pipe and may arrive after the exit status
	var stderr []byte
	stderr = append(stderr, res.Stderr...)
	require.Eventually(t, func() bool {
		stderr = append(stderr, e.Stderr().Take()...)
		return strings.Contains(string(stderr), "oops")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExecutor_Start(t *testing.T) {
	e := openBash(t)

	g, err := e.Start([]byte("echo -n hello"))
	require.NoError(t, err)

	_, err = e.Start([]byte("true"))
	assert.ErrorIs(t, err, ErrBusy)

	var out []byte
	for !g.Done() {
		chunk, err := g.Next()
		if err != nil {
			break
		}
		out = append(out, chunk...)
	}
	assert.Equal(t, "hello", string(out))
	assert.Equal(t, 0, g.ReturnCode())

	_, err = e.Run([]byte("true"))
	assert.NoError(t, err)
}

func TestExecutor_ReusedGenerators(t *testing.T) {
	e := openBash(t)

	v := protocol.NewVariableLength(e.Output(), e.Dialect())
	for _, word := range []string{"one", "two"} {
		res, err := e.Run([]byte("echo "+word), WithGenerator(v))
		require.NoError(t, err)
		assert.Equal(t, word+"\n", string(res.Stdout))
	}

	f := protocol.NewFixedLength(e.Output(), e.Dialect(), 10)
	for i := 0; i < 2; i++ {
		res, err := e.Run([]byte("echo -n 0123456789"), WithGenerator(f))
		require.NoError(t, err)
		assert.Equal(t, "0123456789", string(res.Stdout))
		assert.Equal(t, 0, res.ReturnCode)
	}
}

func TestExecutor_Stdin(t *testing.T) {
	e := openBash(t)

	res, err := e.Run([]byte("head -c 5 | tr a-z A-Z"), WithStdin(strings.NewReader("hello")))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(res.Stdout))

	res, err = e.Run([]byte("echo after"))
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(res.Stdout))
}

// failingReader yields data, then fails with err.
type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(b []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(b, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestExecutor_StdinReadError(t *testing.T) {
	e := openBash(t)
	readErr := errors.New("local read failed")

	res, err := e.Run([]byte("head -c 2 >/dev/null"), WithStdin(&failingReader{data: "ab", err: readErr}))
	require.ErrorIs(t, err, readErr)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.ReturnCode)

	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := e.Run([]byte("echo after"))
		assert.NoError(t, err)
		if assert.NotNil(t, res) {
			assert.Equal(t, "after\n", string(res.Stdout))
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shell unusable after input reader error")
	}
}

func TestExecutor_LoginBannerDiscarded(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	e, err := Open([]string{"bash", "-c", "echo 'Welcome'; echo warn >&2; exec bash"},
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})

	res, err := e.Run([]byte("echo -n 0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(res.Stdout))
	assert.Equal(t, 0, res.ReturnCode)
}

func TestExecutor_DownloadMissingFile(t *testing.T) {
	e := openBash(t)

	g := protocol.NewDownload(e.Output(), protocol.GNUStat)
	res, err := e.Run([]byte("'/nonexistent/shellwire-file'"), WithGenerator(g))
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, protocol.MissingFileCode, res.ReturnCode)

	res, err = e.Run([]byte("echo still alive"))
	require.NoError(t, err)
	assert.Equal(t, "still alive\n", string(res.Stdout))
}

func TestExecutor_Close(t *testing.T) {
	e := openBash(t)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Run([]byte("true"))
	assert.ErrorIs(t, err, ErrClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.NoError(t, e.Shutdown(ctx))
}

func TestExecutor_ShellExitsDuringInit(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	// no test logger: stdin write errors may be logged after the test ended
	_, err := Open([]string{"bash", "-c", "exit 3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize posix shell")
}

func TestExecutor_String(t *testing.T) {
	e := openBash(t)
	assert.Equal(t, "Executor([bash])", e.String())
}

func TestResult_Err(t *testing.T) {
	ok := &Result{ReturnCode: 0}
	assert.NoError(t, ok.Err("true", ""))

	failed := &Result{ReturnCode: 2, Stderr: []byte("ls: cannot access 'x'\n")}
	err := failed.Err("ls x", "listing failed")
	assert.EqualError(t, err, `command "ls x" failed (exit 2): listing failed: ls: cannot access 'x'`)
}
