package syntax

import "fmt"

// SyntaxError reports source text that does not match the grammar.
type SyntaxError struct {
	Span    Span
	Message string // what the parser expected, or what went wrong
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Message)
}

// ParseCommand parses a single pipeline, as typed on one interactive line.
// Surrounding blank space, a trailing comment, and trailing newlines are
// accepted.
func ParseCommand(src string) (*Command, error) {
	p := newParser(src)
	p.skipNewlines()

	cmd, err := p.command()
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if p.tok.kind != tokEOF {
		return nil, p.fail("expected end of input")
	}
	return cmd, nil
}

// ParseScript parses newline-separated commands. Blank lines and comment
// lines are skipped and the final newline is optional.
func ParseScript(src string) (*Script, error) {
	p := newParser(src)
	script := &Script{}
	for {
		p.skipNewlines()
		if p.tok.kind == tokEOF {
			return script, nil
		}
		cmd, err := p.command()
		if err != nil {
			return nil, err
		}
		script.Commands = append(script.Commands, *cmd)
	}
}

type parser struct {
	lx  *lexer
	tok token
}

func newParser(src string) *parser {
	p := &parser{lx: newLexer(src)}
	p.advance()
	return p
}

func (p *parser) advance() {
	p.tok = p.lx.next()
}

func (p *parser) skipNewlines() {
	for p.tok.kind == tokNewline {
		p.advance()
	}
}

// fail builds an error anchored at the current token.
func (p *parser) fail(expected string) error {
	if p.tok.kind == tokUnterminated {
		return &SyntaxError{Span: p.tok.span, Message: "unterminated quoted string"}
	}
	return &SyntaxError{Span: p.tok.span, Message: expected}
}

// command := invocation ("|" invocation)*
func (p *parser) command() (*Command, error) {
	first, err := p.invocation()
	if err != nil {
		return nil, err
	}
	cmd := &Command{Stages: []Invocation{*first}, Span: first.Span}

	for p.tok.kind == tokPipe {
		p.advance()
		inv, err := p.invocation()
		if err != nil {
			return nil, err
		}
		cmd.Stages = append(cmd.Stages, *inv)
		cmd.Span = cmd.Span.To(inv.Span)
	}
	return cmd, nil
}

// invocation := term (term | "<" term | (">" | ">>") term)*
func (p *parser) invocation() (*Invocation, error) {
	prog, err := p.term()
	if err != nil {
		return nil, err
	}
	inv := &Invocation{Program: prog, Span: prog.Span}

	for {
		switch p.tok.kind {
		case tokWord, tokSingle, tokDouble:
			arg, err := p.term()
			if err != nil {
				return nil, err
			}
			inv.Args = append(inv.Args, arg)
			inv.Span = inv.Span.To(arg.Span)

		case tokRead:
			op := p.tok.span
			p.advance()
			path, err := p.term()
			if err != nil {
				return nil, err
			}
			redir := &ReadRedirect{Path: path, Span: op.To(path.Span)}
			if inv.Read != nil {
				return nil, &SyntaxError{Span: redir.Span, Message: "found conflicting input redirection"}
			}
			inv.Read = redir
			inv.Span = inv.Span.To(redir.Span)

		case tokWrite, tokAppend:
			mode := Truncate
			if p.tok.kind == tokAppend {
				mode = Append
			}
			op := p.tok.span
			p.advance()
			path, err := p.term()
			if err != nil {
				return nil, err
			}
			redir := &WriteRedirect{Path: path, Mode: mode, Span: op.To(path.Span)}
			if inv.Write != nil {
				return nil, &SyntaxError{Span: redir.Span, Message: "found conflicting output redirection"}
			}
			inv.Write = redir
			inv.Span = inv.Span.To(redir.Span)

		case tokPipe, tokNewline, tokEOF:
			return inv, nil

		default:
			return nil, p.fail("expected a term, a redirect, or end of input")
		}
	}
}

// term := bareword | 'single-quoted' | "double-quoted"
func (p *parser) term() (Term, error) {
	tok := p.tok
	var t Term
	switch tok.kind {
	case tokWord:
		t = Term{Kind: Bare, Value: tok.text, Span: tok.span}
	case tokSingle:
		t = Term{Kind: SingleQuoted, Value: tok.text[1 : len(tok.text)-1], Span: tok.span}
	case tokDouble:
		t = Term{Kind: DoubleQuoted, Value: tok.text[1 : len(tok.text)-1], Span: tok.span}
	default:
		return Term{}, p.fail("expected a term")
	}
	p.advance()
	return t, nil
}
