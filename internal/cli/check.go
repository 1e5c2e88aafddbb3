package cli

import (
	"fmt"
	"io"

	"github.com/marcelocantos/monch/internal/diag"
	"github.com/marcelocantos/monch/internal/engine"
	"github.com/marcelocantos/monch/internal/plan"
	"github.com/marcelocantos/monch/internal/syntax"
)

// Check validates src without running it and prints one plan summary per
// command to w. With script set, src is parsed as a script rather than a
// single command.
func (s *Shell) Check(w io.Writer, src string, script bool) int {
	plans, diags := s.plan(src, script)
	if len(diags) > 0 {
		return s.reject(src, diags)
	}
	for i, p := range plans {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n%s", p.Text, p.Summary())
	}
	return 0
}

func (s *Shell) plan(src string, script bool) ([]*plan.Plan, diag.List) {
	if !script {
		cmd, err := syntax.ParseCommand(src)
		if err != nil {
			return nil, diag.Of(err)
		}
		p, diags := s.Checker.Check(cmd, src)
		if len(diags) > 0 {
			return nil, diags
		}
		return []*plan.Plan{p}, nil
	}
	sc, err := syntax.ParseScript(src)
	if err != nil {
		return nil, diag.Of(err)
	}
	return s.Checker.CheckScript(sc, src)
}

// Validate reports the diagnostics for src as an error, or nil when it
// would run.
func (s *Shell) Validate(src string, script bool) ([]*plan.Plan, error) {
	plans, diags := s.plan(src, script)
	return plans, diags.Err()
}

// DumpAST prints the syntax tree of src as YAML without checking it.
func (s *Shell) DumpAST(w io.Writer, src string, script bool) int {
	var sc *syntax.Script
	if script {
		parsed, err := syntax.ParseScript(src)
		if err != nil {
			return s.reject(src, diag.Of(err))
		}
		sc = parsed
	} else {
		cmd, err := syntax.ParseCommand(src)
		if err != nil {
			return s.reject(src, diag.Of(err))
		}
		sc = &syntax.Script{Commands: []syntax.Command{*cmd}}
	}
	if err := syntax.Dump(w, sc); err != nil {
		_ = s.Diag.RenderError(s.stderr(), err)
		return engine.StatusFailure
	}
	return 0
}
