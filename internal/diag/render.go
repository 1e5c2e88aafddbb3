package diag

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/marcelocantos/monch/internal/syntax"
)

// Renderer writes diagnostics in the form
//
//	monch: error: cannot redirect output unless it's from the last command in a pipeline
//	 --> 1:11
//	  |
//	1 | echo test >file | cat
//	  |           ^^^^^
//
// Color is applied only when Color is set, regardless of the terminal
// detection fatih/color does on its own.
type Renderer struct {
	Prog  string // prefix for the summary line
	Color bool
}

type palette struct {
	err, gutter, marker, bold *color.Color
}

func (r *Renderer) palette() palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		gutter: color.New(color.FgBlue, color.Bold),
		marker: color.New(color.FgRed, color.Bold),
		bold:   color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.err, p.gutter, p.marker, p.bold} {
		if r.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Render writes one diagnostic with an excerpt of src.
func (r *Renderer) Render(w io.Writer, src string, d *Diagnostic) error {
	p := r.palette()
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", r.prefix(p), p.bold.Sprint(d.Message))

	line, text := lineOf(src, d.Span)
	width := len(strconv.Itoa(line))
	pad := strings.Repeat(" ", width)

	fmt.Fprintf(&b, "%s%s %s\n", pad, p.gutter.Sprint("-->"), d.Span)
	fmt.Fprintf(&b, "%s %s\n", pad, p.gutter.Sprint("|"))
	fmt.Fprintf(&b, "%s %s %s\n", p.gutter.Sprint(strconv.Itoa(line)), p.gutter.Sprint("|"), text)
	fmt.Fprintf(&b, "%s %s %s%s\n", pad, p.gutter.Sprint("|"), indent(text, d.Span.Col-1), p.marker.Sprint(carets(text, d.Span)))
	for _, n := range d.Notes {
		fmt.Fprintf(&b, "%s %s note: %s\n", pad, p.gutter.Sprint("="), n)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderAll writes every diagnostic in l, separated by blank lines.
func (r *Renderer) RenderAll(w io.Writer, src string, l List) error {
	for i, d := range l {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Render(w, src, d); err != nil {
			return err
		}
	}
	return nil
}

// RenderError writes a one-line summary for an error that has no span.
func (r *Renderer) RenderError(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "%s %s\n", r.prefix(r.palette()), err)
	return werr
}

func (r *Renderer) prefix(p palette) string {
	prog := r.Prog
	if prog == "" {
		prog = "monch"
	}
	return prog + ": " + p.err.Sprint("error:")
}

// lineOf returns the 1-based line number and text (without line
// terminator) of the line on which span starts.
func lineOf(src string, span syntax.Span) (int, string) {
	start := span.Start - (span.Col - 1)
	if start < 0 || start > len(src) {
		return span.Line, ""
	}
	text := src[start:]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return span.Line, strings.TrimSuffix(text, "\r")
}

// indent reproduces the first n bytes of text as blank space, keeping tabs
// so the markers line up under the excerpt.
func indent(text string, n int) string {
	if n > len(text) {
		n = len(text)
	}
	var b strings.Builder
	for _, r := range text[:n] {
		if r == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// carets returns one marker per character the span covers on its first
// line, and at least one for empty spans such as end of input.
func carets(text string, span syntax.Span) string {
	from := span.Col - 1
	to := from + span.Len()
	if from > len(text) {
		from = len(text)
	}
	if to > len(text) {
		to = len(text)
	}
	n := utf8.RuneCountInString(text[from:to])
	if n < 1 {
		n = 1
	}
	return strings.Repeat("^", n)
}
