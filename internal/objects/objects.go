// Package objects implements the structured record stream spoken by the
// typed utilities: a sequence of CBOR data items written back to back.
package objects

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/marcelocantos/monch/internal/registry"
)

// Format is the stream type of an object stream.
var Format = registry.Objects

var decMode = func() cbor.DecMode {
	// Maps decode as map[any]any since keys need not be strings.
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encoder writes records to an object stream.
type Encoder struct {
	enc *cbor.Encoder
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: encMode.NewEncoder(w)}
}

// Encode writes one record.
func (e *Encoder) Encode(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// Decoder reads records from an object stream.
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

// Decode reads the next record into v. It returns io.EOF when the stream
// ends cleanly between records, and io.ErrUnexpectedEOF when it ends
// inside one.
func (d *Decoder) Decode(v any) error {
	err := d.dec.Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return io.ErrUnexpectedEOF
	}
	return fmt.Errorf("reading object: %w", err)
}
