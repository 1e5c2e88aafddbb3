package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/marcelocantos/monch/internal/audit"
	"github.com/marcelocantos/monch/internal/check"
	"github.com/marcelocantos/monch/internal/diag"
	"github.com/marcelocantos/monch/internal/engine"
	"github.com/marcelocantos/monch/internal/plan"
)

// Shell parses, checks and runs monch source. State that outlives a single
// command, such as the directory set by cd, lives here.
type Shell struct {
	Checker *check.Checker
	Engine  *engine.Engine
	Audit   *audit.Logger // nil disables audit logging
	Diag    diag.Renderer
	Stderr  io.Writer

	dirs dirState
}

// NewShell wires the shell builtins into eng and returns a Shell running
// commands through it. An empty eng.Dir is pinned to the current
// directory so that cd has something to be relative to.
func NewShell(checker *check.Checker, eng *engine.Engine, logger *audit.Logger, stderr io.Writer) *Shell {
	if eng.Dir == "" {
		eng.Dir, _ = os.Getwd()
	}
	s := &Shell{
		Checker: checker,
		Engine:  eng,
		Audit:   logger,
		Stderr:  stderr,
	}
	if eng.Builtins == nil {
		eng.Builtins = make(map[string]engine.Builtin)
	}
	eng.Builtins["to"] = engine.To(eng.Color)
	eng.Builtins["cd"] = s.cd()
	return s
}

// RunCommand runs a single pipeline and returns its exit status.
func (s *Shell) RunCommand(ctx context.Context, src string) int {
	plans, diags := s.plan(src, false)
	if len(diags) > 0 {
		return s.reject(src, diags)
	}
	return s.run(ctx, plans[0])
}

// RunScript runs newline-separated commands in order. The whole script is
// checked first, so a diagnostic anywhere means nothing runs. The status
// is that of the last command.
func (s *Shell) RunScript(ctx context.Context, src string) int {
	plans, diags := s.plan(src, true)
	if len(diags) > 0 {
		return s.reject(src, diags)
	}

	status := 0
	for _, p := range plans {
		if ctx.Err() != nil {
			break
		}
		status = s.run(ctx, p)
	}
	return status
}

func (s *Shell) reject(src string, diags diag.List) int {
	_ = s.Diag.RenderAll(s.stderr(), src, diags)
	return engine.StatusUsage
}

func (s *Shell) run(ctx context.Context, p *plan.Plan) int {
	start := time.Now()
	res, err := s.Engine.Run(ctx, p)
	duration := time.Since(start)

	exitCode := res.Exit
	if err != nil {
		exitCode = resolveError(err)
		_ = s.Diag.RenderError(s.stderr(), err)
	}
	cwd := s.Engine.Dir
	s.dirs.apply(s.Engine)

	s.logAudit(p, res, exitCode, err, duration, cwd)
	return exitCode
}

// resolveError extracts an exit code from an error returned by the engine.
// Engine errors carry their own status; anything else is a general
// failure.
func resolveError(err error) int {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return engine.StatusFailure
}

func (s *Shell) logAudit(p *plan.Plan, res *engine.Result, exitCode int, err error, duration time.Duration, cwd string) {
	if s.Audit == nil {
		return
	}
	// Best-effort audit logging; don't fail the command if audit fails.
	_ = s.Audit.Log(audit.Record{
		Pipeline:   p.Text,
		Programs:   p.Programs(),
		StageExits: res.Statuses(),
		Pipefail:   s.Engine.Pipefail,
		Bypass:     s.Checker.Bypass,
		ExitCode:   exitCode,
		Err:        err,
		Duration:   duration,
		Cwd:        cwd,
	})
}

func (s *Shell) stderr() io.Writer {
	if s.Stderr == nil {
		return io.Discard
	}
	return s.Stderr
}
