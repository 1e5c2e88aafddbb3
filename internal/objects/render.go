package objects

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fxamacker/cbor/v2"
)

// Renderer formats records as single human-readable lines.
type Renderer struct {
	number, boolean, note, punct *color.Color
}

// NewRenderer returns a renderer; with useColor false it emits plain text.
func NewRenderer(useColor bool) *Renderer {
	r := &Renderer{
		number:  color.New(color.FgGreen),
		boolean: color.New(color.FgMagenta),
		note:    color.New(color.Italic),
		punct:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.number, r.boolean, r.note, r.punct} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Format renders one record.
//
//	{name: ls, size: 4096, tags: [a, b], blob: (binary data)}
func (r *Renderer) Format(v any) string {
	var b strings.Builder
	r.format(&b, v)
	return b.String()
}

func (r *Renderer) format(b *strings.Builder, v any) {
	switch v := v.(type) {
	case nil:
		b.WriteString(r.note.Sprint("(null)"))
	case string:
		b.WriteString(v)
	case bool:
		b.WriteString(r.boolean.Sprint(strconv.FormatBool(v)))
	case uint64:
		b.WriteString(r.number.Sprint(strconv.FormatUint(v, 10)))
	case int64:
		b.WriteString(r.number.Sprint(strconv.FormatInt(v, 10)))
	case float64:
		b.WriteString(r.number.Sprint(strconv.FormatFloat(v, 'f', 3, 64)))
	case float32:
		b.WriteString(r.number.Sprint(strconv.FormatFloat(float64(v), 'f', 3, 32)))
	case *big.Int:
		b.WriteString(r.number.Sprint(v.String()))
	case big.Int:
		b.WriteString(r.number.Sprint(v.String()))
	case time.Time:
		b.WriteString(v.Format(time.RFC3339Nano))
	case []byte:
		b.WriteString(r.note.Sprint("(binary data)"))
	case cbor.Tag:
		b.WriteString(r.note.Sprintf("(tag %d) ", v.Number))
		r.format(b, v.Content)
	case cbor.SimpleValue:
		b.WriteString(r.note.Sprintf("(simple %d)", uint8(v)))
	case []any:
		b.WriteString("[")
		for i, item := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			r.format(b, item)
		}
		b.WriteString("]")
	case map[any]any:
		r.formatMap(b, len(v), func(yield func(k, v any)) {
			for k, val := range v {
				yield(k, val)
			}
		})
	case map[string]any:
		r.formatMap(b, len(v), func(yield func(k, v any)) {
			for k, val := range v {
				yield(k, val)
			}
		})
	default:
		b.WriteString(r.note.Sprintf("(cannot display %T)", v))
	}
}

// formatMap writes entries sorted by their rendered plain-text key so the
// output is stable across runs.
func (r *Renderer) formatMap(b *strings.Builder, n int, each func(yield func(k, v any))) {
	type entry struct {
		sortKey string
		k, v    any
	}
	plain := NewRenderer(false)
	entries := make([]entry, 0, n)
	each(func(k, v any) {
		entries = append(entries, entry{sortKey: plain.Format(k), k: k, v: v})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].sortKey < entries[j].sortKey })

	b.WriteString(r.punct.Sprint("{"))
	for i, e := range entries {
		if i > 0 {
			b.WriteString(r.punct.Sprint(", "))
		}
		if s, ok := e.k.(string); ok {
			b.WriteString(r.punct.Sprint(s + ": "))
		} else {
			r.format(b, e.k)
			b.WriteString(r.punct.Sprint(": "))
		}
		r.format(b, e.v)
	}
	b.WriteString(r.punct.Sprint("}"))
}

// RenderStream decodes records from src and writes one line per record to
// dst until src is exhausted or ctx is done.
func (r *Renderer) RenderStream(ctx context.Context, dst io.Writer, src io.Reader) error {
	dec := NewDecoder(src)
	w := bufio.NewWriter(dst)
	for {
		if err := ctx.Err(); err != nil {
			w.Flush()
			return err
		}
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return w.Flush()
		}
		if err != nil {
			w.Flush()
			return err
		}
		if _, err := fmt.Fprintln(w, r.Format(v)); err != nil {
			return err
		}
		// Flush per record so interactive pipelines show output promptly.
		if err := w.Flush(); err != nil {
			return err
		}
	}
}
