// Package check validates parsed pipelines and turns them into execution
// plans.
package check

import (
	"fmt"

	"github.com/marcelocantos/monch/internal/diag"
	"github.com/marcelocantos/monch/internal/plan"
	"github.com/marcelocantos/monch/internal/registry"
	"github.com/marcelocantos/monch/internal/rules"
	"github.com/marcelocantos/monch/internal/syntax"
)

// Direction names the stream a redirect rebinds.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// RedirectPositionError is the cause attached to a redirect that is not on
// the first (input) or last (output) stage.
type RedirectPositionError struct {
	Stage     int
	Direction Direction
}

func (e *RedirectPositionError) Error() string {
	if e.Direction == Input {
		return "cannot redirect input unless it's from the first command in a pipeline"
	}
	return "cannot redirect output unless it's from the last command in a pipeline"
}

// TypeMismatchError is the cause attached to an adjacent pair of stages
// whose stream types do not connect.
type TypeMismatchError struct {
	Producer string
	Consumer string
	Output   registry.StreamType // what the producer writes
	Input    registry.StreamType // what the consumer expects
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: cannot connect %s (produced by %s) to %s (expected by %s)",
		e.Output, e.Producer, e.Input, e.Consumer)
}

// Checker validates commands against a type registry and argument rules.
type Checker struct {
	Registry *registry.Registry // nil treats every program as unregistered
	Rules    *rules.RuleSet     // nil disables argument rules
	Bypass   bool               // skip config-level rules
}

// Check validates cmd, whose spans index into src. It returns a plan when
// there are no diagnostics, and the sorted diagnostics otherwise. Every
// problem in the command is reported, not only the first.
func (c *Checker) Check(cmd *syntax.Command, src string) (*plan.Plan, diag.List) {
	n := len(cmd.Stages)
	var diags diag.List
	misplaced := make([]bool, n)

	for i := range cmd.Stages {
		inv := &cmd.Stages[i]
		if inv.Read != nil && i > 0 {
			misplaced[i] = true
			diags = append(diags, redirectDiag(inv.Read.Span, i, Input))
		}
		if inv.Write != nil && i < n-1 {
			misplaced[i] = true
			diags = append(diags, redirectDiag(inv.Write.Span, i, Output))
		}
		if d := c.checkRules(inv); d != nil {
			diags = append(diags, d)
		}
	}

	sigs := make([]registry.Signature, n)
	for i := range cmd.Stages {
		sigs[i] = c.resolve(cmd.Stages[i].Program.Value)
	}

	for i := 0; i+1 < n; i++ {
		if misplaced[i] || misplaced[i+1] {
			continue
		}
		prod, cons := &cmd.Stages[i], &cmd.Stages[i+1]
		out, in := sigs[i].Output, sigs[i+1].Input
		if registry.Compatible(out, in) {
			continue
		}
		cause := &TypeMismatchError{
			Producer: prod.Program.Value,
			Consumer: cons.Program.Value,
			Output:   out,
			Input:    in,
		}
		d := &diag.Diagnostic{
			Kind:    diag.KindTypeMismatch,
			Span:    cons.Span,
			Message: cause.Error(),
			Cause:   cause,
		}
		if !c.registered(cause.Producer) {
			d.Notes = append(d.Notes, fmt.Sprintf("%s has no registered signature, so its output is %s", cause.Producer, out))
		}
		diags = append(diags, d)
	}

	if len(diags) > 0 {
		diags.Sort()
		return nil, diags
	}
	return build(cmd, src, sigs), nil
}

// CheckScript validates every command of a script. Plans are returned only
// if the whole script is valid.
func (c *Checker) CheckScript(script *syntax.Script, src string) ([]*plan.Plan, diag.List) {
	var (
		plans []*plan.Plan
		diags diag.List
	)
	for i := range script.Commands {
		p, ds := c.Check(&script.Commands[i], src)
		if len(ds) > 0 {
			diags = append(diags, ds...)
			continue
		}
		plans = append(plans, p)
	}
	if len(diags) > 0 {
		return nil, diags
	}
	return plans, nil
}

func (c *Checker) resolve(program string) registry.Signature {
	if c.Registry == nil {
		return registry.Unknown
	}
	return c.Registry.Resolve(program)
}

func (c *Checker) registered(program string) bool {
	if c.Registry == nil {
		return false
	}
	_, ok := c.Registry.Lookup(program)
	return ok
}

func (c *Checker) checkRules(inv *syntax.Invocation) *diag.Diagnostic {
	v := c.Rules.Check(inv.Program.Value, inv.Argv(), c.Bypass)
	if v == nil {
		return nil
	}
	span := inv.Span
	if v.Arg >= 0 && v.Arg < len(inv.Args) {
		span = inv.Args[v.Arg].Span
	}
	return &diag.Diagnostic{
		Kind:    diag.KindRule,
		Span:    span,
		Message: v.Message,
		Cause:   v,
	}
}

func redirectDiag(span syntax.Span, stage int, dir Direction) *diag.Diagnostic {
	cause := &RedirectPositionError{Stage: stage, Direction: dir}
	return &diag.Diagnostic{
		Kind:    diag.KindRedirectPosition,
		Span:    span,
		Message: cause.Error(),
		Cause:   cause,
	}
}

func build(cmd *syntax.Command, src string, sigs []registry.Signature) *plan.Plan {
	n := len(cmd.Stages)
	text := cmd.Span.Text(src)
	if text == "" {
		text = cmd.String()
	}
	p := &plan.Plan{Text: text, Stages: make([]plan.Stage, n)}

	for i := range cmd.Stages {
		inv := &cmd.Stages[i]
		st := plan.Stage{
			Index:   i,
			Program: inv.Program.Value,
			Args:    inv.Argv(),
			Source:  plan.Source{Kind: plan.FromPrevious},
			Sink:    plan.Sink{Kind: plan.ToNext},
			Input:   sigs[i].Input,
			Output:  sigs[i].Output,
		}
		if i == 0 {
			st.Source = plan.Source{Kind: plan.FromTerminal}
			if inv.Read != nil {
				st.Source = plan.Source{Kind: plan.FromFile, Path: inv.Read.Path.Value}
			}
		}
		if i == n-1 {
			st.Sink = plan.Sink{Kind: plan.ToTerminal}
			if inv.Write != nil {
				st.Sink = plan.Sink{
					Kind:   plan.ToFile,
					Path:   inv.Write.Path.Value,
					Append: inv.Write.Mode == syntax.Append,
				}
			}
		}
		p.Stages[i] = st
	}
	return p
}
