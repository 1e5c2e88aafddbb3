package syntax

import "strings"

// TermKind records how a term was quoted in the source.
type TermKind int

const (
	Bare         TermKind = iota // unquoted word
	SingleQuoted                 // 'text'
	DoubleQuoted                 // "text"
)

func (k TermKind) String() string {
	switch k {
	case Bare:
		return "bare"
	case SingleQuoted:
		return "single-quoted"
	case DoubleQuoted:
		return "double-quoted"
	default:
		return "unknown"
	}
}

// Term is a single word of source text. Value holds the literal string with
// any quote delimiters stripped; quoting never changes the content.
type Term struct {
	Kind  TermKind
	Value string
	Span  Span
}

// String re-serializes the term using its original quoting style.
func (t Term) String() string {
	switch t.Kind {
	case SingleQuoted:
		return "'" + t.Value + "'"
	case DoubleQuoted:
		return `"` + t.Value + `"`
	default:
		return t.Value
	}
}

// ReadRedirect rebinds a stage's standard input to a file (`<path`).
type ReadRedirect struct {
	Path Term
	Span Span // from '<' through the path term
}

// WriteMode selects how a write redirect opens its file.
type WriteMode int

const (
	Truncate WriteMode = iota // >
	Append                    // >>
)

func (m WriteMode) String() string {
	if m == Append {
		return ">>"
	}
	return ">"
}

// WriteRedirect rebinds a stage's standard output to a file (`>path` or `>>path`).
type WriteRedirect struct {
	Path Term
	Mode WriteMode
	Span Span // from the operator through the path term
}

// Invocation is one program call within a pipeline.
type Invocation struct {
	Program Term
	Args    []Term
	Read    *ReadRedirect
	Write   *WriteRedirect
	Span    Span
}

// Argv returns the literal argument values, excluding the program name.
func (inv *Invocation) Argv() []string {
	args := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		args[i] = a.Value
	}
	return args
}

func (inv *Invocation) String() string {
	parts := []string{inv.Program.String()}
	for _, a := range inv.Args {
		parts = append(parts, a.String())
	}
	if inv.Read != nil {
		parts = append(parts, "<"+inv.Read.Path.String())
	}
	if inv.Write != nil {
		parts = append(parts, inv.Write.Mode.String()+inv.Write.Path.String())
	}
	return strings.Join(parts, " ")
}

// Command is a full pipeline: one or more invocations joined by pipes.
type Command struct {
	Stages []Invocation
	Span   Span
}

func (c *Command) String() string {
	parts := make([]string, len(c.Stages))
	for i := range c.Stages {
		parts[i] = c.Stages[i].String()
	}
	return strings.Join(parts, " | ")
}

// Script is a newline-separated sequence of commands.
type Script struct {
	Commands []Command
}
