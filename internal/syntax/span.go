package syntax

import "fmt"

// Span is a half-open byte range [Start, End) into the source text.
// Line and Col locate Start and are both 1-based; Col counts bytes.
type Span struct {
	Start int
	End   int
	Line  int
	Col   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Col)
}

// To returns a span running from the start of s to the end of o.
func (s Span) To(o Span) Span {
	s.End = o.End
	return s
}

// Text returns the slice of src covered by the span.
func (s Span) Text(src string) string {
	if s.Start < 0 || s.End > len(src) || s.Start > s.End {
		return ""
	}
	return src[s.Start:s.End]
}
