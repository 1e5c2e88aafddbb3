package syntax

import (
	"io"

	"gopkg.in/yaml.v3"
)

type spanDoc struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
	Line  int `yaml:"line"`
	Col   int `yaml:"col"`
}

type termDoc struct {
	Kind  string  `yaml:"kind"`
	Value string  `yaml:"value"`
	Span  spanDoc `yaml:"span,flow"`
}

type redirectDoc struct {
	Op   string  `yaml:"op"`
	Path termDoc `yaml:"path"`
	Span spanDoc `yaml:"span,flow"`
}

type invocationDoc struct {
	Program termDoc      `yaml:"program"`
	Args    []termDoc    `yaml:"args,omitempty"`
	Read    *redirectDoc `yaml:"read,omitempty"`
	Write   *redirectDoc `yaml:"write,omitempty"`
	Span    spanDoc      `yaml:"span,flow"`
}

type commandDoc struct {
	Stages []invocationDoc `yaml:"stages"`
	Span   spanDoc         `yaml:"span,flow"`
}

type scriptDoc struct {
	Commands []commandDoc `yaml:"commands"`
}

// Dump writes script to w as YAML, with every node's span.
func Dump(w io.Writer, script *Script) error {
	doc := scriptDoc{Commands: make([]commandDoc, len(script.Commands))}
	for i := range script.Commands {
		doc.Commands[i] = commandOf(&script.Commands[i])
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func commandOf(c *Command) commandDoc {
	cd := commandDoc{Stages: make([]invocationDoc, len(c.Stages)), Span: spanOf(c.Span)}
	for i := range c.Stages {
		inv := &c.Stages[i]
		id := invocationDoc{Program: termOf(inv.Program), Span: spanOf(inv.Span)}
		for _, a := range inv.Args {
			id.Args = append(id.Args, termOf(a))
		}
		if r := inv.Read; r != nil {
			id.Read = &redirectDoc{Op: "<", Path: termOf(r.Path), Span: spanOf(r.Span)}
		}
		if r := inv.Write; r != nil {
			id.Write = &redirectDoc{Op: r.Mode.String(), Path: termOf(r.Path), Span: spanOf(r.Span)}
		}
		cd.Stages[i] = id
	}
	return cd
}

func termOf(t Term) termDoc {
	return termDoc{Kind: t.Kind.String(), Value: t.Value, Span: spanOf(t.Span)}
}

func spanOf(s Span) spanDoc {
	return spanDoc{Start: s.Start, End: s.End, Line: s.Line, Col: s.Col}
}
