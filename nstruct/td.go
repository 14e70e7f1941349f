// Package nstruct is a declarative binary-struct engine: describe a
// C-style wire format once as a type descriptor (TD) and get parsing,
// constructing, serializing, and introspection for free.
//
// A TD is built by the declaration constructors (Uint16BE, NewBitfield,
// NewEnum, NewStruct, Array, Optional, Darray, ...) and frozen at
// construction time. The one later change is that declaring a derived
// struct registers it with its base. Once all declarations are made, the
// same TD can be used to parse or pack from multiple goroutines
// concurrently as long as each call works on its own buffer and value
// tree.
package nstruct

import "bytes"

// Endian selects the byte order used to read and write a primitive
// integer field on the wire.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

func (e Endian) String() string {
	if e == LittleEndian {
		return "little"
	}
	return "big"
}

// TD is the common contract every type descriptor satisfies: primitives,
// bitfields, enums, arrays, and structs. Most callers work through the
// more specific types (*StructTD, *BitfieldTD) for field-level access;
// TD is what the parse and pack engines dispatch on internally, and what
// field declarations (Field, Embed) hold.
type TD interface {
	// TypeName returns the declared name of the type, used in error
	// messages and as the dump contract's "_type" value.
	TypeName() string

	// parse consumes bytes from c, never crossing limit (an absolute
	// offset into the cursor's backing buffer), and returns the decoded
	// value.
	parse(c *cursor, limit int, fieldPath string) (any, error)

	// pack serializes val, appending to buf.
	pack(val any, buf *bytes.Buffer, fieldPath string) error

	// realSize returns val's unpadded on-wire byte length.
	realSize(val any) (int, error)

	// fixedSize returns the type's constant byte width and true, or
	// (0, false) if the width depends on the value or on sibling fields.
	fixedSize() (int, bool)

	// defaultValue returns the zero value used to initialize a field
	// slot before caller-supplied initializers or parsed data populate
	// it.
	defaultValue() any
}

// parentAwareParser is implemented by field types whose parse behavior
// depends on sibling fields already parsed into the enclosing struct's
// value (Optional's predicate, Darray's count). The struct parse engine
// checks for this interface and, when present, calls it instead of the
// plain TD.parse method.
type parentAwareParser interface {
	parseWithParent(c *cursor, limit int, parent *Value, fieldPath string) (any, error)
}

// maskFor returns a bitmask covering the low nbits bits of a uint64.
func maskFor(nbits int) uint64 {
	if nbits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(nbits)) - 1
}

func roundUp(n, modulus int) int {
	if modulus <= 1 {
		return n
	}
	rem := n % modulus
	if rem == 0 {
		return n
	}
	return n + (modulus - rem)
}
