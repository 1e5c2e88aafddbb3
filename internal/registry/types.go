package registry

import (
	"fmt"
	"strings"
)

// Kind classifies a stream type.
type Kind int

const (
	KindNone   Kind = iota // the program neither reads nor writes this stream
	KindOpaque             // unstructured bytes with no static guarantees
	KindTyped              // a named structured format
)

// StreamType describes the data carried on a program's stdin or stdout.
// The zero value is None.
type StreamType struct {
	Kind   Kind
	Format string // set only for KindTyped
}

var (
	None   = StreamType{Kind: KindNone}
	Opaque = StreamType{Kind: KindOpaque}
)

// Typed returns the stream type for a named structured format.
func Typed(format string) StreamType {
	return StreamType{Kind: KindTyped, Format: format}
}

// String renders untyped kinds in square brackets so they cannot be
// confused with a format identifier.
func (t StreamType) String() string {
	switch t.Kind {
	case KindNone:
		return "[nothing]"
	case KindOpaque:
		return "[opaque]"
	case KindTyped:
		return t.Format
	default:
		return fmt.Sprintf("[kind(%d)]", int(t.Kind))
	}
}

// ParseStreamType converts a configuration string to a StreamType.
// "none" (or "nothing") and "opaque" name the untyped kinds; any other
// identifier names a format.
func ParseStreamType(s string) (StreamType, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return StreamType{}, fmt.Errorf("empty stream type")
	case "none", "nothing":
		return None, nil
	case "opaque":
		return Opaque, nil
	}
	if strings.ContainsAny(s, " \t[]") {
		return StreamType{}, fmt.Errorf("invalid stream type: %q", s)
	}
	return Typed(s), nil
}

// Compatible reports whether a producer's output may feed a consumer's
// input. An Opaque consumer accepts anything; otherwise the types must be
// identical.
func Compatible(producer, consumer StreamType) bool {
	if consumer.Kind == KindOpaque {
		return true
	}
	return producer == consumer
}

// Signature is the declared input and output stream types of a program.
type Signature struct {
	Input  StreamType
	Output StreamType
}

func (s Signature) String() string {
	return s.Input.String() + " -> " + s.Output.String()
}

// Unknown is the signature assumed for programs with no registration.
var Unknown = Signature{Input: Opaque, Output: Opaque}
