package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marcelocantos/monch/internal/engine"
)

// dirState holds a directory change requested by cd. The engine reads its
// Dir while spawning later stages, so the change is only applied once the
// pipeline has finished.
type dirState struct {
	mu   sync.Mutex
	next string
}

func (d *dirState) set(dir string) {
	d.mu.Lock()
	d.next = dir
	d.mu.Unlock()
}

func (d *dirState) apply(eng *engine.Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next != "" {
		eng.Dir = d.next
		d.next = ""
	}
}

// cd changes the directory used by the commands that follow it.
//
//	cd          go to $HOME
//	cd <dir>    relative to the current directory
func (s *Shell) cd() engine.Builtin {
	return engine.BuiltinFunc(func(_ context.Context, call *engine.Call) int {
		var target string
		switch len(call.Args) {
		case 0:
			home, err := os.UserHomeDir()
			if err != nil {
				fmt.Fprintf(call.Stderr, "cd: %v\n", err)
				return engine.StatusFailure
			}
			target = home
		case 1:
			target = call.Args[0]
		default:
			fmt.Fprintln(call.Stderr, "cd: too many arguments")
			return engine.StatusFailure
		}

		if !filepath.IsAbs(target) {
			target = filepath.Join(call.Dir, target)
		}
		info, err := os.Stat(target)
		if err != nil {
			fmt.Fprintf(call.Stderr, "cd: %v\n", err)
			return engine.StatusFailure
		}
		if !info.IsDir() {
			fmt.Fprintf(call.Stderr, "cd: %s: not a directory\n", target)
			return engine.StatusFailure
		}
		s.dirs.set(filepath.Clean(target))
		return 0
	})
}
