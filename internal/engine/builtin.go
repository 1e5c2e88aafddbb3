package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/marcelocantos/monch/internal/objects"
)

// Call is the environment of one builtin stage.
type Call struct {
	Args   []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Builtin is a stage that runs inside the shell process. Run returns the
// stage's exit code. It should return promptly once ctx is done.
type Builtin interface {
	Run(ctx context.Context, call *Call) int
}

// BuiltinFunc adapts a function to Builtin.
type BuiltinFunc func(ctx context.Context, call *Call) int

func (f BuiltinFunc) Run(ctx context.Context, call *Call) int { return f(ctx, call) }

// To converts an object stream for its consumer:
//
//	to text      one human-readable line per record (the default)
//	to objects   records passed through unchanged
func To(useColor bool) Builtin {
	return BuiltinFunc(func(ctx context.Context, call *Call) int {
		target := "text"
		switch len(call.Args) {
		case 0:
		case 1:
			target = call.Args[0]
		default:
			fmt.Fprintln(call.Stderr, "to: expected one argument only")
			return StatusFailure
		}

		var err error
		switch target {
		case "text":
			err = objects.NewRenderer(useColor).RenderStream(ctx, call.Stdout, call.Stdin)
		case objects.Format.String():
			_, err = io.Copy(call.Stdout, call.Stdin)
		default:
			fmt.Fprintf(call.Stderr, "to: cannot convert to %s\n", target)
			return StatusFailure
		}
		if ctx.Err() != nil {
			return StatusFailure
		}
		if err != nil {
			fmt.Fprintf(call.Stderr, "to: %s: %v\n", target, err)
			return StatusFailure
		}
		return 0
	})
}

// ctxReader makes a blocking reader stop once ctx is done. A read still
// pending at that point finishes in the background and its data is dropped.
type ctxReader struct {
	ctx     context.Context
	r       io.Reader
	buf     []byte
	rest    []byte // read but not yet returned
	pending bool
	res     chan readResult
}

type readResult struct {
	n   int
	err error
}

func newCtxReader(ctx context.Context, r io.Reader) *ctxReader {
	return &ctxReader{ctx: ctx, r: r, res: make(chan readResult, 1)}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(c.rest) > 0 {
		n := copy(p, c.rest)
		c.rest = c.rest[n:]
		return n, nil
	}
	if !c.pending {
		c.pending = true
		c.buf = make([]byte, len(p))
		go func(buf []byte) {
			n, err := c.r.Read(buf)
			c.res <- readResult{n, err}
		}(c.buf)
	}
	select {
	case r := <-c.res:
		c.pending = false
		n := copy(p, c.buf[:r.n])
		if n < r.n {
			c.rest = c.buf[n:r.n]
			return n, nil
		}
		return n, r.err
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	}
}
