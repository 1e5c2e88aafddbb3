// Package diag holds span-annotated diagnostics and renders them as source
// excerpts with caret markers under the offending text.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/marcelocantos/monch/internal/syntax"
)

// Kind classifies a diagnostic.
type Kind int

const (
	KindSyntax Kind = iota
	KindRedirectPosition
	KindTypeMismatch
	KindRule
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindRedirectPosition:
		return "redirect-position"
	case KindTypeMismatch:
		return "type-mismatch"
	case KindRule:
		return "rule"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Diagnostic is one problem found before execution.
type Diagnostic struct {
	Kind    Kind
	Span    syntax.Span
	Message string
	Notes   []string // extra lines rendered after the excerpt
	Cause   error    // structured detail, if any
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Span, d.Message)
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// FromSyntax converts a parse error into a diagnostic.
func FromSyntax(err *syntax.SyntaxError) *Diagnostic {
	return &Diagnostic{Kind: KindSyntax, Span: err.Span, Message: err.Message, Cause: err}
}

// List is a collection of diagnostics. A non-empty List is an error.
type List []*Diagnostic

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(l), strings.Join(msgs, "; "))
}

// Unwrap exposes each diagnostic to errors.Is and errors.As.
func (l List) Unwrap() []error {
	errs := make([]error, len(l))
	for i, d := range l {
		errs[i] = d
	}
	return errs
}

// Err returns l as an error, or nil if l is empty.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Sort orders diagnostics by source position, keeping insertion order for
// diagnostics that start at the same byte.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].Span.Start < l[j].Span.Start
	})
}

// Of collects diagnostics from err, which may be a List, a single
// Diagnostic, or a SyntaxError. Any other error yields nil.
func Of(err error) List {
	var l List
	if errors.As(err, &l) {
		return l
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		return List{d}
	}
	var se *syntax.SyntaxError
	if errors.As(err, &se) {
		return List{FromSyntax(se)}
	}
	return nil
}
