package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/monch/internal/check"
	"github.com/marcelocantos/monch/internal/objects"
	"github.com/marcelocantos/monch/internal/plan"
	"github.com/marcelocantos/monch/internal/registry"
	"github.com/marcelocantos/monch/internal/syntax"
)

func requireTools(t *testing.T, tools ...string) {
	t.Helper()
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available: %v", tool, err)
		}
	}
}

func mustPlan(t *testing.T, src string, reg *registry.Registry) *plan.Plan {
	t.Helper()
	cmd, err := syntax.ParseCommand(src)
	require.NoError(t, err)
	p, diags := (&check.Checker{Registry: reg}).Check(cmd, src)
	require.Empty(t, diags)
	return p
}

func newEngine(t *testing.T) (*Engine, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	e := &Engine{
		Stdout: &stdout,
		Stderr: &stderr,
		Dir:    t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return e, &stdout, &stderr
}

func TestRunEcho(t *testing.T) {
	requireTools(t, "echo")
	e, stdout, _ := newEngine(t)

	res, err := e.Run(context.Background(), mustPlan(t, "echo one two three", nil))
	require.NoError(t, err)
	assert.Equal(t, "one two three\n", stdout.String())
	assert.Equal(t, 0, res.Exit)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, Exited, res.Stages[0].State)
}

func TestRunPipeline(t *testing.T) {
	requireTools(t, "cat")
	e, stdout, _ := newEngine(t)
	e.Stdin = strings.NewReader("alpha\nbeta\n")

	res, err := e.Run(context.Background(), mustPlan(t, "cat | cat | cat", nil))
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\n", stdout.String())
	assert.Equal(t, []int{0, 0, 0}, res.Statuses())
}

func TestRunStderrPassesThrough(t *testing.T) {
	requireTools(t, "sh")
	e, stdout, stderr := newEngine(t)

	_, err := e.Run(context.Background(), mustPlan(t, `sh -c "echo oops >&2" | sh -c "echo also >&2"`, nil))
	require.NoError(t, err)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "oops\n")
	assert.Contains(t, stderr.String(), "also\n")
}

func TestRunLastStageStatus(t *testing.T) {
	requireTools(t, "sh", "cat")

	e, _, _ := newEngine(t)
	res, err := e.Run(context.Background(), mustPlan(t, `sh -c "exit 3" | cat`, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exit)
	assert.Equal(t, []int{3, 0}, res.Statuses())

	res, err = e.Run(context.Background(), mustPlan(t, `echo x | sh -c "cat >/dev/null; exit 4"`, nil))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Exit)
}

func TestRunPipefail(t *testing.T) {
	requireTools(t, "sh", "cat")
	e, _, _ := newEngine(t)
	e.Pipefail = true

	res, err := e.Run(context.Background(), mustPlan(t, `sh -c "exit 3" | sh -c "cat; exit 5" | cat`, nil))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Exit, "rightmost failure wins")

	res, err = e.Run(context.Background(), mustPlan(t, `sh -c "exit 3" | cat`, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Exit)
}

func TestRunMissingInputFile(t *testing.T) {
	requireTools(t, "cat")
	e, _, _ := newEngine(t)

	res, err := e.Run(context.Background(), mustPlan(t, "cat <missing.txt | cat >out.txt", nil))
	require.Error(t, err)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 0, ioErr.Stage)
	assert.Equal(t, "missing.txt", ioErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, 1, ioErr.ExitCode())

	for _, st := range res.Stages {
		assert.Equal(t, Planned, st.State)
	}
	_, statErr := os.Stat(filepath.Join(e.Dir, "out.txt"))
	assert.ErrorIs(t, statErr, fs.ErrNotExist, "nothing opened after the failure")
}

func TestRunRedirects(t *testing.T) {
	requireTools(t, "echo", "cat")
	e, stdout, _ := newEngine(t)
	ctx := context.Background()
	out := filepath.Join(e.Dir, "out.txt")

	_, err := e.Run(ctx, mustPlan(t, "echo first >out.txt", nil))
	require.NoError(t, err)
	_, err = e.Run(ctx, mustPlan(t, "echo second >>out.txt", nil))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))

	_, err = e.Run(ctx, mustPlan(t, "cat <out.txt | cat", nil))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", stdout.String())

	_, err = e.Run(ctx, mustPlan(t, "echo again >out.txt", nil))
	require.NoError(t, err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "again\n", string(data))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644)&^umask(), info.Mode().Perm())
}

// umask returns the permission bits the process umask removes.
func umask() os.FileMode {
	old := syscall.Umask(0)
	syscall.Umask(old)
	return os.FileMode(old)
}

func TestRunNotFoundMidway(t *testing.T) {
	requireTools(t, "sleep")
	e, _, _ := newEngine(t)

	start := time.Now()
	res, err := e.Run(context.Background(), mustPlan(t, "sleep 10 | no-such-program-for-monch", nil))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "running stages are killed")

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 1, spawnErr.Stage)
	assert.Equal(t, "no-such-program-for-monch", spawnErr.Program)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Equal(t, 127, spawnErr.ExitCode())
	assert.Equal(t, "no-such-program-for-monch: command not found", spawnErr.Error())

	assert.Equal(t, Signaled, res.Stages[0].State)
	assert.Equal(t, syscall.SIGKILL, res.Stages[0].Signal)
	assert.Equal(t, SpawnFailed, res.Stages[1].State)
	assert.Equal(t, 127, res.Stages[1].Status())
}

func TestRunLaterStagesStayPlanned(t *testing.T) {
	requireTools(t, "cat")
	e, _, _ := newEngine(t)

	// Hold stdin open so the first cat is still running when it is killed.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	e.Stdin = r

	res, err := e.Run(context.Background(), mustPlan(t, "cat | no-such-program-for-monch | cat", nil))
	require.Error(t, err)
	assert.Equal(t, []State{Signaled, SpawnFailed, Planned},
		[]State{res.Stages[0].State, res.Stages[1].State, res.Stages[2].State})
}

func TestRunNotExecutable(t *testing.T) {
	e, _, _ := newEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.Dir, "data.txt"), []byte("x"), 0o644))

	_, err := e.Run(context.Background(), mustPlan(t, "./data.txt", nil))
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 126, spawnErr.ExitCode())
}

func TestRunRelativeProgram(t *testing.T) {
	requireTools(t, "sh")
	e, stdout, _ := newEngine(t)
	script := filepath.Join(e.Dir, "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"hello $1\"\n"), 0o755))

	res, err := e.Run(context.Background(), mustPlan(t, "./hello.sh world", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exit)
	assert.Equal(t, "hello world\n", stdout.String())
}

func TestRunContextCancel(t *testing.T) {
	requireTools(t, "sleep")
	e, _, _ := newEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := e.Run(ctx, mustPlan(t, "sleep 10", nil))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, Signaled, res.Stages[0].State)
	assert.Equal(t, 128+int(syscall.SIGKILL), res.Exit)
}

func TestRunEarlyDownstreamExit(t *testing.T) {
	requireTools(t, "yes", "head")
	e, stdout, _ := newEngine(t)

	res, err := e.Run(context.Background(), mustPlan(t, "yes | head -n 1", nil))
	require.NoError(t, err)
	assert.Equal(t, "y\n", stdout.String())
	assert.Equal(t, 0, res.Exit)
	assert.True(t, res.Stages[0].State.Terminal())
}

func writeObjects(t *testing.T, path string, records ...any) {
	t.Helper()
	var buf bytes.Buffer
	enc := objects.NewEncoder(&buf)
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRunRendersObjects(t *testing.T) {
	requireTools(t, "cat")
	e, stdout, _ := newEngine(t)
	writeObjects(t, filepath.Join(e.Dir, "data.cbor"),
		map[string]any{"name": "a", "size": 1},
		map[string]any{"name": "b", "size": 2},
	)

	reg := registry.New()
	reg.Register("cat", registry.Signature{Input: registry.Opaque, Output: registry.Objects}, registry.OriginConfig)
	p := mustPlan(t, "cat <data.cbor", reg)

	e.RenderObjects = true
	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exit)
	assert.Equal(t, "{name: a, size: 1}\n{name: b, size: 2}\n", stdout.String())

	// Without rendering the raw stream passes through.
	stdout.Reset()
	e.RenderObjects = false
	_, err = e.Run(context.Background(), p)
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(e.Dir, "data.cbor"))
	require.NoError(t, err)
	assert.Equal(t, raw, stdout.Bytes())
}

func TestRunBuiltins(t *testing.T) {
	requireTools(t, "cat")
	e, stdout, stderr := newEngine(t)
	e.Builtins = map[string]Builtin{"to": To(false)}
	writeObjects(t, filepath.Join(e.Dir, "data.cbor"), []any{"x", uint64(1)})

	res, err := e.Run(context.Background(), mustPlan(t, "cat <data.cbor | to text | cat", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exit)
	assert.Equal(t, "[x, 1]\n", stdout.String())

	// A builtin may own the redirect file and feed a process.
	stdout.Reset()
	_, err = e.Run(context.Background(), mustPlan(t, "to <data.cbor | cat", nil))
	require.NoError(t, err)
	assert.Equal(t, "[x, 1]\n", stdout.String())

	res, err = e.Run(context.Background(), mustPlan(t, "to csv", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exit)
	assert.Contains(t, stderr.String(), "to: cannot convert to csv")
}

// heldStdin gives e a terminal input that never reaches EOF during the test.
func heldStdin(t *testing.T, e *Engine) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Close()
		r.Close()
	})
	e.Stdin = r
}

// runWithin runs p on e and fails the test if Run does not return promptly.
func runWithin(t *testing.T, ctx context.Context, e *Engine, p *plan.Plan) (*Result, error) {
	const d = 5 * time.Second
	t.Helper()
	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := e.Run(ctx, p)
		ch <- outcome{res, err}
	}()
	select {
	case o := <-ch:
		return o.res, o.err
	case <-time.After(d):
		t.Fatalf("Run(%q) did not return within %v", p.Text, d)
		return nil, nil
	}
}

func TestRunBuiltinKilledOnSpawnFailure(t *testing.T) {
	e, _, _ := newEngine(t)
	e.Builtins = map[string]Builtin{"to": To(false)}
	heldStdin(t, e)

	res, err := runWithin(t, context.Background(), e,
		mustPlan(t, "to text | no-such-program-for-monch", nil))
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 1, spawnErr.Stage)
	assert.Equal(t, Signaled, res.Stages[0].State)
	assert.Equal(t, syscall.SIGKILL, res.Stages[0].Signal)
	assert.Equal(t, SpawnFailed, res.Stages[1].State)
}

func TestRunBuiltinContextCancel(t *testing.T) {
	e, _, _ := newEngine(t)
	e.Builtins = map[string]Builtin{"to": To(false)}
	heldStdin(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := runWithin(t, ctx, e, mustPlan(t, "to text", nil))
	require.NoError(t, err)
	assert.Equal(t, Signaled, res.Stages[0].State)
	assert.Equal(t, 128+int(syscall.SIGKILL), res.Exit)
}

func TestRunBuiltinIgnoringContext(t *testing.T) {
	e, _, _ := newEngine(t)
	release := make(chan struct{})
	defer close(release)
	e.Builtins = map[string]Builtin{"stuck": BuiltinFunc(func(context.Context, *Call) int {
		<-release
		return 0
	})}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := runWithin(t, ctx, e, mustPlan(t, "stuck", nil))
	require.NoError(t, err)
	assert.Equal(t, Signaled, res.Stages[0].State)
}

func TestRunRenderStopsOnCancel(t *testing.T) {
	e, _, _ := newEngine(t)
	e.RenderObjects = true
	e.Builtins = map[string]Builtin{"to": To(false)}
	heldStdin(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	reg := registry.New()
	reg.Register("to", registry.Signature{Input: registry.Objects, Output: registry.Objects}, registry.OriginConfig)
	res, err := runWithin(t, ctx, e, mustPlan(t, "to objects", reg))
	require.NoError(t, err)
	assert.Equal(t, Signaled, res.Stages[0].State)
}

func TestCtxReader(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cr := newCtxReader(ctx, r)

	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 2)
	var got []byte
	for len(got) < 5 {
		n, err := cr.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "hello", string(got))

	cancel()
	_, err = cr.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateAdvance(t *testing.T) {
	s := Planned
	s.advance(Spawning)
	s.advance(Running)
	s.advance(Exited)
	assert.True(t, s.Terminal())

	assert.Panics(t, func() {
		s := Exited
		s.advance(Running)
	})
	assert.Panics(t, func() {
		s := Planned
		s.advance(Running)
	})
	assert.Panics(t, func() {
		s := Running
		s.advance(SpawnFailed)
	})
}

func TestStageResultStatus(t *testing.T) {
	tests := []struct {
		res  StageResult
		want int
	}{
		{StageResult{State: Exited, Code: 3}, 3},
		{StageResult{State: Signaled, Signal: syscall.SIGPIPE}, 141},
		{StageResult{State: SpawnFailed, Err: &exec.Error{Name: "x", Err: exec.ErrNotFound}}, 127},
		{StageResult{State: SpawnFailed, Err: fs.ErrPermission}, 126},
		{StageResult{State: Planned}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.res.Status(), tt.res.String())
	}
}

func TestEmptyPlan(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.Run(context.Background(), &plan.Plan{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, exec.ErrNotFound))
}
