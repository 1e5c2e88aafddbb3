// Package engine runs validated pipelines as connected OS processes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/marcelocantos/monch/internal/objects"
	"github.com/marcelocantos/monch/internal/plan"
	"github.com/marcelocantos/monch/internal/registry"
)

// Engine runs plans. The zero value runs with no terminal input, discards
// terminal output, and resolves programs through $PATH.
type Engine struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Dir string   // working directory for stages and relative redirects
	Env []string // nil inherits the shell's environment

	// Pipefail makes the rightmost failing stage decide the exit status
	// instead of the last stage alone.
	Pipefail bool

	// RenderObjects renders an object stream reaching the terminal as text.
	RenderObjects bool
	Color         bool

	// Builtins are run in-process instead of spawning a program.
	Builtins map[string]Builtin

	Logger   *slog.Logger
	LookPath func(file string) (string, error) // defaults to exec.LookPath
}

// stage is the orchestrator's bookkeeping for one running stage.
type stage struct {
	plan   *plan.Stage
	res    *StageResult
	stdin  io.Reader
	stdout io.Writer

	cmd *exec.Cmd // external program

	// builtin
	done     chan struct{} // closed when it returns
	code     int
	cancel   context.CancelFunc
	stop     chan struct{} // closed by kill
	stopOnce sync.Once
}

// Run executes p and waits for every stage to finish. Redirect files are
// opened before any stage starts; an *IOError means nothing ran. If a
// stage cannot be started, the stages already running are killed and a
// *SpawnError is returned. Cancelling ctx kills running stages.
//
// The Result is non-nil even when an error is returned.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) (*Result, error) {
	n := len(p.Stages)
	res := &Result{Stages: make([]StageResult, n)}
	if n == 0 {
		return res, errors.New("engine: empty plan")
	}

	log := e.logger()
	stages := make([]*stage, n)
	for i := range p.Stages {
		res.Stages[i] = StageResult{Index: i, Program: p.Stages[i].Program}
		stages[i] = &stage{plan: &p.Stages[i], res: &res.Stages[i]}
	}

	var h handles
	defer h.closeAll()

	first, last := stages[0], stages[n-1]
	first.stdin = e.Stdin
	last.stdout = e.Stdout

	if src := first.plan.Source; src.Kind == plan.FromFile {
		f, err := os.Open(e.path(src.Path))
		if err != nil {
			return res, &IOError{Stage: 0, Program: first.plan.Program, Path: src.Path, Err: err}
		}
		first.stdin = h.add(f)
	}
	if sink := last.plan.Sink; sink.Kind == plan.ToFile {
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if sink.Append {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(e.path(sink.Path), flags, 0o644)
		if err != nil {
			return res, &IOError{Stage: n - 1, Program: last.plan.Program, Path: sink.Path, Err: err}
		}
		last.stdout = h.add(f)
	}

	for i := 0; i+1 < n; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return res, fmt.Errorf("creating pipe: %w", err)
		}
		stages[i].stdout = h.add(w)
		stages[i+1].stdin = h.add(r)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var rendered chan error
	if e.RenderObjects && last.plan.Sink.Kind == plan.ToTerminal && last.plan.Output == registry.Objects {
		r, w, err := os.Pipe()
		if err != nil {
			return res, fmt.Errorf("creating pipe: %w", err)
		}
		rendered = e.render(runCtx, e.Stdout, r)
		last.stdout = h.add(w)
	}

	stderr := e.stderr()
	for i, st := range stages {
		st.res.State.advance(Spawning)
		log.Debug("spawning stage", "stage", i, "argv", st.plan.Argv())
		if err := e.start(runCtx, st, &h, stderr); err != nil {
			st.res.State.advance(SpawnFailed)
			st.res.Err = err
			log.Debug("spawn failed", "stage", i, "program", st.plan.Program, "err", err)

			// Tear down the half-built pipeline.
			h.closeAll()
			cancel()
			for _, started := range stages[:i] {
				started.kill()
			}
			e.waitAll(stages[:i])
			if rendered != nil {
				<-rendered
			}
			return res, &SpawnError{Stage: i, Program: st.plan.Program, Err: err}
		}
		st.res.State.advance(Running)
	}

	// Every stage holds its own descriptors now. Dropping ours lets EOF
	// propagate when a writer exits.
	h.closeAll()

	stop := context.AfterFunc(ctx, func() {
		log.Debug("pipeline cancelled", "err", ctx.Err())
		for _, st := range stages {
			st.kill()
		}
	})
	defer stop()

	e.waitAll(stages)
	if rendered != nil {
		if err := <-rendered; err != nil && ctx.Err() == nil {
			log.Warn("rendering objects", "err", err)
		}
	}

	res.Exit = e.aggregate(res)
	return res, nil
}

func (e *Engine) start(ctx context.Context, st *stage, h *handles, stderr io.Writer) error {
	if b, ok := e.Builtins[st.plan.Program]; ok {
		// The builtin goroutine takes over its descriptors.
		owned := h.release(st.stdin, st.stdout)
		bctx, cancel := context.WithCancel(ctx)
		st.cancel = cancel
		st.stop = make(chan struct{})
		stdin := st.stdin
		if stdin == nil {
			stdin = strings.NewReader("")
		}
		call := &Call{
			Args:   st.plan.Args,
			Dir:    e.Dir,
			Stdin:  newCtxReader(bctx, stdin),
			Stdout: st.stdout,
			Stderr: stderr,
		}
		if call.Stdout == nil {
			call.Stdout = io.Discard
		}
		st.done = make(chan struct{})
		go func() {
			defer close(st.done)
			st.code = b.Run(bctx, call)
			for _, f := range owned {
				f.Close()
			}
		}()
		return nil
	}

	path, err := e.resolve(st.plan.Program)
	if err != nil {
		return err
	}
	cmd := &exec.Cmd{
		Path:   path,
		Args:   st.plan.Argv(),
		Dir:    e.Dir,
		Env:    e.Env,
		Stdin:  st.stdin,
		Stdout: st.stdout,
		Stderr: stderr,
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	st.cmd = cmd
	return nil
}

// kill stops a running stage. An external program gets SIGKILL; a builtin
// has its context cancelled and is no longer waited for.
func (st *stage) kill() {
	if st.cmd != nil {
		if st.cmd.Process != nil {
			// ErrProcessDone only means it already exited.
			_ = st.cmd.Process.Kill()
		}
		return
	}
	if st.cancel != nil {
		st.stopOnce.Do(func() {
			close(st.stop)
			st.cancel()
		})
	}
}

func (st *stage) wait() {
	if st.cmd == nil {
		st.waitBuiltin()
		return
	}

	err := st.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		st.res.Err = err
	}
	ps := st.cmd.ProcessState
	if ps == nil {
		st.res.State.advance(Exited)
		st.res.Code = StatusFailure
		return
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.res.State.advance(Signaled)
		st.res.Signal = ws.Signal()
		return
	}
	st.res.State.advance(Exited)
	st.res.Code = ps.ExitCode()
}

// waitBuiltin records a killed builtin as Signaled without waiting for it
// to return; it closes its own descriptors whenever it does.
func (st *stage) waitBuiltin() {
	select {
	case <-st.done:
		select {
		case <-st.stop:
		default:
			st.res.State.advance(Exited)
			st.res.Code = st.code
			return
		}
	case <-st.stop:
	}
	st.res.State.advance(Signaled)
	st.res.Signal = syscall.SIGKILL
}

// waitAll waits for every running stage concurrently. Waiting in order
// could deadlock on a stage blocked writing to an unread pipe.
func (e *Engine) waitAll(stages []*stage) {
	log := e.logger()
	var wg sync.WaitGroup
	for _, st := range stages {
		if st.res.State != Running {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.wait()
			log.Debug("stage finished", "stage", st.res.Index, "program", st.res.Program,
				"state", st.res.State, "status", st.res.Status())
		}()
	}
	wg.Wait()
}

func (e *Engine) aggregate(res *Result) int {
	n := len(res.Stages)
	for i := 0; i < n-1; i++ {
		if s := res.Stages[i].Status(); s != 0 {
			e.logger().Warn("stage failed", "stage", i, "program", res.Stages[i].Program, "status", s)
		}
	}
	if e.Pipefail {
		for i := n - 1; i >= 0; i-- {
			if s := res.Stages[i].Status(); s != 0 {
				return s
			}
		}
		return 0
	}
	return res.Stages[n-1].Status()
}

// render copies an object stream from r to w as text and reports the
// outcome on the returned channel. It owns r and gives up when ctx is done.
func (e *Engine) render(ctx context.Context, w io.Writer, r *os.File) chan error {
	done := make(chan error, 1)
	go func() {
		defer r.Close()
		if w == nil {
			w = io.Discard
		}
		src := newCtxReader(ctx, r)
		err := objects.NewRenderer(e.Color).RenderStream(ctx, w, src)
		if err != nil && ctx.Err() == nil {
			// Keep draining so the producer is not killed by SIGPIPE.
			_, _ = io.Copy(io.Discard, src)
		}
		done <- err
	}()
	return done
}

func (e *Engine) resolve(program string) (string, error) {
	if strings.Contains(program, "/") {
		// Start reports a missing or unexecutable file.
		return e.path(program), nil
	}
	lookPath := e.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return lookPath(program)
}

func (e *Engine) path(name string) string {
	if filepath.IsAbs(name) || e.Dir == "" {
		return name
	}
	return filepath.Join(e.Dir, name)
}

// stderr returns the writer shared by every stage's standard error. A
// file is handed to children directly; any other writer is serialized,
// since each child gets its own copying goroutine.
func (e *Engine) stderr() io.Writer {
	switch w := e.Stderr.(type) {
	case nil:
		return io.Discard
	case *os.File:
		return w
	default:
		return &lockedWriter{w: w}
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// handles tracks descriptors held by the orchestrator so that each is
// closed exactly once.
type handles struct {
	files []*os.File
}

func (h *handles) add(f *os.File) *os.File {
	h.files = append(h.files, f)
	return f
}

// release stops tracking any of vs that are tracked files and returns
// them; the caller becomes responsible for closing them.
func (h *handles) release(vs ...any) []*os.File {
	var out []*os.File
	for _, v := range vs {
		f, ok := v.(*os.File)
		if !ok || f == nil {
			continue
		}
		for i, g := range h.files {
			if g == f {
				h.files = append(h.files[:i], h.files[i+1:]...)
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func (h *handles) closeAll() {
	for _, f := range h.files {
		f.Close()
	}
	h.files = nil
}
