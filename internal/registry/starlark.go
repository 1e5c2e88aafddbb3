package registry

import (
	"fmt"
	"log/slog"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// LoadScript executes a Starlark types script and registers every
// signature it declares. The script sees one builtin:
//
//	signature("jq", input="opaque", output="opaque")
//	signature("ps", output="objects")
//
// Omitted types default to "opaque". If src is nil the file is read from
// filename. Registrations are recorded with the script path as origin.
func LoadScript(r *Registry, filename string, src any) error {
	var pending []Entry
	declare := func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		input, output := "opaque", "opaque"
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"name", &name, "input?", &input, "output?", &output); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%s: empty program name", b.Name())
		}
		in, err := ParseStreamType(input)
		if err != nil {
			return nil, fmt.Errorf("%s(%q): input: %w", b.Name(), name, err)
		}
		out, err := ParseStreamType(output)
		if err != nil {
			return nil, fmt.Errorf("%s(%q): output: %w", b.Name(), name, err)
		}
		pending = append(pending, Entry{
			Name:      name,
			Signature: Signature{Input: in, Output: out},
			Origin:    Origin(filename),
		})
		return starlark.None, nil
	}

	thread := &starlark.Thread{
		Name: "types",
		Print: func(_ *starlark.Thread, msg string) {
			slog.Debug("types script", "file", filename, "msg", msg)
		},
	}
	predeclared := starlark.StringDict{
		"signature": starlark.NewBuiltin("signature", declare),
	}
	if _, err := starlark.ExecFileOptions(&syntax.FileOptions{TopLevelControl: true}, thread, filename, src, predeclared); err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return fmt.Errorf("types script: %s", evalErr.Backtrace())
		}
		return fmt.Errorf("types script: %w", err)
	}

	// Nothing is registered unless the whole script succeeds.
	for _, e := range pending {
		r.Register(e.Name, e.Signature, e.Origin)
	}
	return nil
}
