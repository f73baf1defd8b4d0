package localexec

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/gate"
)

func TestExecutor_Exec(t *testing.T) {
	e := New()

	t.Run("success", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))

		res, err := e.Exec(context.Background(), gate.ExecInput{Command: []string{"ls"}, Workdir: dir})
		require.NoError(t, err)
		assert.Equal(t, "a.txt\n", res.Output)
		require.NotNil(t, res.Metadata.ExitCode)
		assert.Equal(t, 0, *res.Metadata.ExitCode)
		assert.GreaterOrEqual(t, res.Metadata.DurationSeconds, 0.0)
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		res, err := e.Exec(context.Background(), gate.ExecInput{Command: []string{"sh", "-c", "echo oops >&2; exit 3"}})
		require.NoError(t, err)
		assert.Equal(t, "oops\n", res.Output)
		require.NotNil(t, res.Metadata.ExitCode)
		assert.Equal(t, 3, *res.Metadata.ExitCode)
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := e.Exec(context.Background(), gate.ExecInput{Command: []string{"sleep", "5"}, TimeoutMillis: 50})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		_, err := e.Exec(ctx, gate.ExecInput{Command: []string{"sleep", "5"}})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := e.Exec(context.Background(), gate.ExecInput{Command: []string{"definitely-not-a-command-xyz"}})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := e.Exec(context.Background(), gate.ExecInput{})
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})
}

func TestExecutor_SandboxWrapper(t *testing.T) {
	e := New(WithSandboxWrapper("env", "SANDBOXED=1"))

	res, err := e.Exec(context.Background(), gate.ExecInput{Command: []string{"sh", "-c", "echo $SANDBOXED"}, Sandbox: true})
	require.NoError(t, err)
	assert.Equal(t, "1\n", res.Output)

	res, err = e.Exec(context.Background(), gate.ExecInput{Command: []string{"sh", "-c", "echo x$SANDBOXED"}})
	require.NoError(t, err)
	assert.Equal(t, "x\n", res.Output)
}

func TestExecutor_MissingSandboxWarnsOnce(t *testing.T) {
	var logs bytes.Buffer
	e := New(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	for range 2 {
		res, err := e.Exec(context.Background(), gate.ExecInput{Command: []string{"echo", "hi"}, Sandbox: true})
		require.NoError(t, err)
		assert.Equal(t, "hi\n", res.Output)
	}
	assert.Equal(t, 1, strings.Count(logs.String(), "level=WARN"))
	assert.Contains(t, logs.String(), "no sandbox wrapper")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	got := truncate(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20)
	assert.True(t, strings.HasPrefix(got, "aaaaaaaaaa\n"))
	assert.True(t, strings.HasSuffix(got, "\nbbbbbbbbbb"))
	assert.Contains(t, got, "80 bytes omitted")

	got = truncate(strings.Repeat("é", 20), 11)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(got, "éé\n"))
	assert.True(t, strings.HasSuffix(got, "\néé"))
	assert.Contains(t, got, "32 bytes omitted")
}

func TestPatcher_Apply(t *testing.T) {
	p := NewPatcher(nil)

	t.Run("add update delete", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("old"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "gone.txt"), []byte("bye"), 0o644))

		summary, err := p.Apply(context.Background(), &ai.Patch{Files: []ai.FileChange{
			{Path: "src/new.txt", Op: ai.PatchAdd, Content: "new"},
			{Path: "old.txt", Op: ai.PatchUpdate, Content: "updated"},
			{Path: "gone.txt", Op: ai.PatchDelete},
		}}, dir, false)
		require.NoError(t, err)
		assert.Equal(t, "A src/new.txt\nM old.txt\nD gone.txt", summary)

		data, err := os.ReadFile(filepath.Join(dir, "src", "new.txt"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
		data, err = os.ReadFile(filepath.Join(dir, "old.txt"))
		require.NoError(t, err)
		assert.Equal(t, "updated", string(data))
		assert.NoFileExists(t, filepath.Join(dir, "gone.txt"))
	})

	t.Run("bad operation changes nothing", func(t *testing.T) {
		dir := t.TempDir()
		_, err := p.Apply(context.Background(), &ai.Patch{Files: []ai.FileChange{
			{Path: "first.txt", Op: ai.PatchAdd, Content: "x"},
			{Path: "missing.txt", Op: ai.PatchUpdate, Content: "y"},
		}}, dir, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
		assert.NoFileExists(t, filepath.Join(dir, "first.txt"))
	})

	t.Run("add over existing", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
		_, err := p.Apply(context.Background(), &ai.Patch{Files: []ai.FileChange{{Path: "a.txt", Op: ai.PatchAdd}}}, dir, false)
		assert.ErrorContains(t, err, "already exists")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Apply(ctx, &ai.Patch{Files: []ai.FileChange{{Path: "a.txt", Op: ai.PatchAdd}}}, t.TempDir(), false)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := p.Apply(context.Background(), &ai.Patch{}, t.TempDir(), false)
		assert.Error(t, err)
	})
}
