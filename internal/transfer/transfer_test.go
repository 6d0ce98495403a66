package transfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/shell"
	"github.com/yoanbernabeu/shellwire/internal/subproc"
	"go.uber.org/zap/zaptest"
)

func openBash(t *testing.T) *shell.Executor {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	e, err := shell.Open([]string{"bash"}, shell.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func exists(t *testing.T, e *shell.Executor, path string) bool {
	t.Helper()
	res, err := e.Run([]byte("test -e '" + path + "'"))
	require.NoError(t, err)
	return res.ReturnCode == 0
}

func TestUploadDownloadDelete(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()

	local := filepath.Join(dir, "local.bin")
	remote := filepath.Join(dir, "remote.bin")
	back := filepath.Join(dir, "back", "copy.bin")
	writeFile(t, local, []byte("0123456789"))

	require.NoError(t, Upload(e, local, remote))
	require.NoError(t, Download(e, remote, back))

	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))

	require.NoError(t, Delete(e, []string{remote}, false))
	assert.False(t, exists(t, e, remote))
}

func TestUpload_BinaryContent(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()

	content := make([]byte, 200000)
	for i := range content {
		content[i] = byte(i * 7)
	}
	content = append(content, []byte("\necho injected\n")...)
	local := filepath.Join(dir, "in.bin")
	remote := filepath.Join(dir, "it's remote.bin")
	writeFile(t, local, content)

	var calls int
	var last int64
	err := Upload(e, local, remote, WithProgress(func(done, total int64) {
		calls++
		last = done
		assert.Equal(t, int64(len(content)), total)
	}))
	require.NoError(t, err)
	assert.Positive(t, calls)
	assert.Equal(t, int64(len(content)), last)

	got, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))

	res, err := e.Run([]byte("echo synced"))
	require.NoError(t, err)
	assert.Equal(t, "synced\n", string(res.Stdout))
}

func TestUpload_EmptyFile(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "empty")
	writeFile(t, local, nil)

	remote := filepath.Join(dir, "empty.remote")
	require.NoError(t, Upload(e, local, remote))

	info, err := os.Stat(remote)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestUpload_UnwritableTarget(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "data")
	writeFile(t, local, []byte("echo should-not-run\n"))

	err := Upload(e, local, filepath.Join(dir, "missing-dir", "data"))
	var cmdErr *shell.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.NotZero(t, cmdErr.ReturnCode)

	// the file content was consumed, not executed
	res, err := e.Run([]byte("echo next"))
	require.NoError(t, err)
	assert.Equal(t, "next\n", string(res.Stdout))
}

func TestDownload_Missing(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "out")

	err := Download(e, filepath.Join(dir, "nope"), local)
	var cmdErr *shell.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, protocol.MissingFileCode, cmdErr.ReturnCode)
	assert.Contains(t, err.Error(), "does not exist")

	_, statErr := os.Stat(local)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownload_Progress(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()
	remote := filepath.Join(dir, "src")
	writeFile(t, remote, bytes.Repeat([]byte("x"), 100000))

	var last, total int64
	err := Download(e, remote, filepath.Join(dir, "dst"), WithProgress(func(done, size int64) {
		last, total = done, size
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(100000), last)
	assert.Equal(t, int64(100000), total)
}

func TestDelete_Force(t *testing.T) {
	e := openBash(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")

	err := Delete(e, []string{missing}, false)
	var cmdErr *shell.CommandError
	require.True(t, errors.As(err, &cmdErr))

	assert.NoError(t, Delete(e, []string{missing}, true))
}

type fakeExecutor struct {
	commands []string
	code     int
}

func (f *fakeExecutor) Start([]byte, ...shell.RunOption) (protocol.Generator, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeExecutor) Run(command []byte, _ ...shell.RunOption) (*shell.Result, error) {
	f.commands = append(f.commands, string(command))
	return &shell.Result{ReturnCode: f.code}, nil
}

func (f *fakeExecutor) Output() protocol.Stream { return nil }

func (f *fakeExecutor) Stderr() *subproc.Deque { return subproc.NewDeque(0) }

func TestDelete_Command(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		force    bool
		expected string
	}{
		{"single", []string{"/tmp/a"}, false, "rm -- '/tmp/a'"},
		{"force", []string{"/tmp/a"}, true, "rm -f -- '/tmp/a'"},
		{"quoting", []string{"a b", "it's", "-rf"}, false, `rm -- 'a b' 'it'\''s' '-rf'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeExecutor{}
			require.NoError(t, Delete(f, tt.files, tt.force))
			assert.Equal(t, []string{tt.expected}, f.commands)
		})
	}
}

func TestDelete_Validation(t *testing.T) {
	f := &fakeExecutor{}
	assert.Error(t, Delete(f, nil, false))
	assert.Error(t, Delete(f, []string{"ok", "bad\nname"}, false))
	assert.Empty(t, f.commands)
}
