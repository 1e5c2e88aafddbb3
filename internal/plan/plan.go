// Package plan describes a validated pipeline ready for execution.
package plan

import (
	"fmt"
	"strings"

	"github.com/marcelocantos/monch/internal/registry"
)

// SourceKind says where a stage reads its standard input from.
type SourceKind int

const (
	FromTerminal SourceKind = iota // the shell's own stdin
	FromFile                       // a read redirect
	FromPrevious                   // the previous stage's pipe
)

// Source is a stage's standard input binding.
type Source struct {
	Kind SourceKind
	Path string // FromFile only
}

func (s Source) String() string {
	switch s.Kind {
	case FromFile:
		return "<" + s.Path
	case FromPrevious:
		return "pipe"
	default:
		return "terminal"
	}
}

// SinkKind says where a stage writes its standard output.
type SinkKind int

const (
	ToTerminal SinkKind = iota // the shell's own stdout
	ToFile                     // a write redirect
	ToNext                     // the next stage's pipe
)

// Sink is a stage's standard output binding.
type Sink struct {
	Kind   SinkKind
	Path   string // ToFile only
	Append bool   // ToFile only; open with O_APPEND instead of O_TRUNC
}

func (s Sink) String() string {
	switch s.Kind {
	case ToFile:
		if s.Append {
			return ">>" + s.Path
		}
		return ">" + s.Path
	case ToNext:
		return "pipe"
	default:
		return "terminal"
	}
}

// Stage is one resolved pipeline stage.
type Stage struct {
	Index   int
	Program string
	Args    []string
	Source  Source
	Sink    Sink
	Input   registry.StreamType
	Output  registry.StreamType
}

// Argv returns the argument vector handed to the process, program name
// first.
func (s *Stage) Argv() []string {
	return append([]string{s.Program}, s.Args...)
}

func (s *Stage) String() string {
	return fmt.Sprintf("%d: %s [%s -> %s] %s -> %s",
		s.Index, strings.Join(s.Argv(), " "), s.Input, s.Output, s.Source, s.Sink)
}

// Plan is a validated pipeline. Only the checker builds one, so every Plan
// satisfies the redirect placement and stream compatibility rules.
type Plan struct {
	Text   string // source text of the pipeline
	Stages []Stage
}

// Last returns the final stage.
func (p *Plan) Last() *Stage {
	return &p.Stages[len(p.Stages)-1]
}

// Programs returns the program names in pipeline order.
func (p *Plan) Programs() []string {
	names := make([]string, len(p.Stages))
	for i := range p.Stages {
		names[i] = p.Stages[i].Program
	}
	return names
}

// Summary renders one line per stage, for `monch check`.
func (p *Plan) Summary() string {
	var b strings.Builder
	for i := range p.Stages {
		b.WriteString(p.Stages[i].String())
		b.WriteByte('\n')
	}
	return b.String()
}
