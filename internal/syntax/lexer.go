package syntax

import (
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokWord         // bare word
	tokSingle       // 'quoted'
	tokDouble       // "quoted"
	tokPipe         // |
	tokRead         // <
	tokWrite        // >
	tokAppend       // >>
	tokUnterminated // quoted string running off the end of the line
	tokIllegal      // any character the grammar does not allow
)

type token struct {
	kind tokenKind
	text string // raw source text, quotes included
	span Span
}

// lexer splits source text into tokens. Spaces and tabs separate tokens and
// comments run from '#' to the end of the line; neither produces a token.
type lexer struct {
	src       string
	pos       int
	line      int
	lineStart int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) span(start int) Span {
	return Span{
		Start: start,
		End:   l.pos,
		Line:  l.line,
		Col:   start - l.lineStart + 1,
	}
}

func (l *lexer) next() token {
	l.skipBlanks()

	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, span: l.span(start)}
	}

	c := l.src[l.pos]
	switch {
	case c == '\n':
		l.pos++
		tok := token{kind: tokNewline, text: "\n", span: l.span(start)}
		l.line++
		l.lineStart = l.pos
		return tok
	case c == '\r' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n':
		l.pos += 2
		tok := token{kind: tokNewline, text: "\r\n", span: l.span(start)}
		l.line++
		l.lineStart = l.pos
		return tok
	case c == '|':
		l.pos++
		return l.emit(tokPipe, start)
	case c == '<':
		l.pos++
		return l.emit(tokRead, start)
	case c == '>':
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '>' {
			l.pos++
			return l.emit(tokAppend, start)
		}
		return l.emit(tokWrite, start)
	case c == '\'':
		return l.quoted('\'', tokSingle)
	case c == '"':
		return l.quoted('"', tokDouble)
	}

	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isWordRune(r) {
			break
		}
		l.pos += size
	}
	if l.pos > start {
		return l.emit(tokWord, start)
	}

	_, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	return l.emit(tokIllegal, start)
}

func (l *lexer) emit(kind tokenKind, start int) token {
	return token{kind: kind, text: l.src[start:l.pos], span: l.span(start)}
}

// quoted scans a quoted run up to the matching quote. There are no escape
// sequences, and a quoted run may not cross a line break.
func (l *lexer) quoted(quote byte, kind tokenKind) token {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case quote:
			l.pos++
			return l.emit(kind, start)
		case '\n':
			return l.emit(tokUnterminated, start)
		case '\r':
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n' {
				return l.emit(tokUnterminated, start)
			}
		}
		l.pos++
	}
	return l.emit(tokUnterminated, start)
}

func (l *lexer) skipBlanks() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t':
			l.pos++
		case '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func isWordRune(r rune) bool {
	switch r {
	case '_', '-', '.', '/':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
