package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lexAll(src string) []token {
	l := newLexer(src)
	var toks []token
	for {
		tok := l.next()
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks
		}
	}
}

func kinds(toks []token) []tokenKind {
	out := make([]tokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.kind
	}
	return out
}

func TestLexerOperators(t *testing.T) {
	toks := lexAll("a|b<c>d>>e")
	assert.Equal(t, []tokenKind{
		tokWord, tokPipe, tokWord, tokRead, tokWord, tokWrite, tokWord, tokAppend, tokWord, tokEOF,
	}, kinds(toks))
	assert.Equal(t, ">>", toks[7].text)
	assert.Equal(t, Span{7, 9, 1, 8}, toks[7].span)
}

func TestLexerWordRunes(t *testing.T) {
	toks := lexAll("./bin/run-it_2 café")
	assert.Equal(t, []tokenKind{tokWord, tokWord, tokEOF}, kinds(toks))
	assert.Equal(t, "./bin/run-it_2", toks[0].text)
	assert.Equal(t, "café", toks[1].text)
	// Col counts bytes, so the EOF column follows the two-byte é.
	assert.Equal(t, 21, toks[2].span.Col)
}

func TestLexerIllegal(t *testing.T) {
	toks := lexAll("a&b")
	assert.Equal(t, []tokenKind{tokWord, tokIllegal, tokWord, tokEOF}, kinds(toks))
	assert.Equal(t, "&", toks[1].text)
}

func TestLexerCommentsAndNewlines(t *testing.T) {
	toks := lexAll("a # note | b\r\nc\n")
	assert.Equal(t, []tokenKind{tokWord, tokNewline, tokWord, tokNewline, tokEOF}, kinds(toks))
	assert.Equal(t, Span{14, 15, 2, 1}, toks[2].span)
	assert.Equal(t, 3, toks[4].span.Line)
}

func TestLexerQuotes(t *testing.T) {
	toks := lexAll(`'a "b"' "c 'd'"`)
	assert.Equal(t, []tokenKind{tokSingle, tokDouble, tokEOF}, kinds(toks))
	assert.Equal(t, `'a "b"'`, toks[0].text)
	assert.Equal(t, `"c 'd'"`, toks[1].text)
}

func TestLexerUnterminatedStopsAtLineEnd(t *testing.T) {
	toks := lexAll("'abc\ndef")
	assert.Equal(t, []tokenKind{tokUnterminated, tokNewline, tokWord, tokEOF}, kinds(toks))
	assert.Equal(t, "'abc", toks[0].text)
}
