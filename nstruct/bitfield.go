package nstruct

import (
	"bytes"
	"math/bits"
)

// BitSubField describes one named (or anonymous/padding) run of bits
// packed into a bitfield's backing integer.
type BitSubField struct {
	Name     string // empty means anonymous padding
	Bits     int    // width of one element
	ArrayLen int    // 0 or 1: scalar; >1: an array of ArrayLen elements, each Bits wide
}

// Bit declares a scalar named sub-field of the given bit width.
func Bit(name string, bits int) BitSubField { return BitSubField{Name: name, Bits: bits} }

// BitArray declares a named sub-field that is an array of n elements,
// each bits wide, packed contiguously.
func BitArray(name string, bits, n int) BitSubField {
	return BitSubField{Name: name, Bits: bits, ArrayLen: n}
}

// BitPad declares an anonymous run of padding bits.
func BitPad(bits int) BitSubField { return BitSubField{Bits: bits} }

func (s BitSubField) elems() int {
	if s.ArrayLen <= 1 {
		return 1
	}
	return s.ArrayLen
}

func (s BitSubField) totalBits() int { return s.Bits * s.elems() }

// BitfieldTD packs named sub-fields of arbitrary bit widths into a
// backing unsigned integer (component C2). Sub-fields are packed
// MSB-first within the backing integer regardless of the backing
// integer's own declared endianness: only the backing integer's bytes on
// the wire honor that endianness.
type BitfieldTD struct {
	name     string
	backing  *intTD
	subs     []BitSubField
	backingW int // bits
}

// NewBitfield declares a bitfield type over backing (which must be an
// unsigned integer TD) and the given sub-fields, in MSB-to-LSB order. The
// sum of all sub-field bit widths (each multiplied by its array length)
// must equal the backing integer's bit width.
func NewBitfield(name string, backing *intTD, subs ...BitSubField) (*BitfieldTD, error) {
	if backing.signed {
		return nil, &BitfieldWidthMismatchError{BackingBits: backing.width * 8}
	}
	w := backing.width * 8
	sum := 0
	for _, s := range subs {
		sum += s.totalBits()
	}
	if sum != w {
		return nil, &BitfieldWidthMismatchError{BackingBits: w, SumBits: sum}
	}
	return &BitfieldTD{name: name, backing: backing, subs: subs, backingW: w}, nil
}

// MustBitfield is NewBitfield, panicking on declaration error. Declaration
// errors are meant to fail immediately at TD construction (spec §7); this
// mirrors the pack's own MustGetLogger/MustStringFormatter convention for
// "this really should never fail at runtime" constructors.
func MustBitfield(name string, backing *intTD, subs ...BitSubField) *BitfieldTD {
	td, err := NewBitfield(name, backing, subs...)
	if err != nil {
		panic(err)
	}
	return td
}

func (t *BitfieldTD) TypeName() string       { return t.name }
func (t *BitfieldTD) fixedSize() (int, bool) { return t.backing.width, true }

func (t *BitfieldTD) defaultValue() any { return t.newValue() }

func (t *BitfieldTD) newValue() *Value {
	v := &Value{td: t, fields: map[string]any{}}
	for _, s := range t.subs {
		if s.Name == "" {
			continue
		}
		if s.ArrayLen > 1 {
			v.fields[s.Name] = make([]uint64, s.ArrayLen)
		} else {
			v.fields[s.Name] = uint64(0)
		}
	}
	return v
}

// New instantiates a bitfield value, applying named initializers for its
// sub-fields. Unknown names fail.
func (t *BitfieldTD) New(init map[string]any) (*Value, error) {
	v := t.newValue()
	for k, val := range init {
		if _, ok := v.fields[k]; !ok {
			return nil, &UnknownFieldError{TypeName: t.name, Field: k}
		}
		v.fields[k] = val
	}
	return v, nil
}

func (t *BitfieldTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	raw, err := t.backing.parse(c, limit, fieldPath)
	if err != nil {
		return nil, err
	}
	packed := raw.(uint64)
	v := t.newValue()
	shift := t.backingW
	for _, s := range t.subs {
		elemBits := s.Bits
		if s.ArrayLen > 1 {
			arr := make([]uint64, s.ArrayLen)
			for i := range arr {
				shift -= elemBits
				arr[i] = (packed >> uint(shift)) & maskFor(elemBits)
			}
			if s.Name != "" {
				v.fields[s.Name] = arr
			}
			continue
		}
		shift -= elemBits
		val := (packed >> uint(shift)) & maskFor(elemBits)
		if s.Name != "" {
			v.fields[s.Name] = val
		}
	}
	return v, nil
}

// bitWidthOf returns the number of bits needed to represent val, the way
// maskFor's inverse check would: 0 needs 0 bits, so any declared width
// fits it. Grounded on math/bits.Len64, the same "how many bits does this
// value occupy" primitive TomTonic-multimap's presence-bitmap arithmetic
// builds on.
func bitWidthOf(val uint64) int { return bits.Len64(val) }

func (t *BitfieldTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	v, ok := val.(*Value)
	if !ok {
		return &FieldWidthOverflowError{FieldPath: fieldPath}
	}
	var packed uint64
	shift := t.backingW
	for _, s := range t.subs {
		elemBits := s.Bits
		if s.ArrayLen > 1 {
			arr, _ := v.fields[s.Name].([]uint64)
			for i := 0; i < s.ArrayLen; i++ {
				shift -= elemBits
				var elemVal uint64
				if i < len(arr) {
					elemVal = arr[i]
				}
				if bitWidthOf(elemVal) > elemBits {
					return &FieldWidthOverflowError{FieldPath: fieldPath, Value: int64(elemVal), WidthBits: elemBits}
				}
				packed |= elemVal << uint(shift)
			}
			continue
		}
		shift -= elemBits
		var elemVal uint64
		if s.Name != "" {
			elemVal, _ = v.fields[s.Name].(uint64)
		}
		if bitWidthOf(elemVal) > elemBits {
			return &FieldWidthOverflowError{FieldPath: s.Name, Value: int64(elemVal), WidthBits: elemBits}
		}
		packed |= elemVal << uint(shift)
	}
	return t.backing.pack(packed, buf, fieldPath)
}

func (t *BitfieldTD) realSize(val any) (int, error) { return t.backing.width, nil }

// Uint returns the scalar value of a named sub-field.
func (v *Value) Uint(name string) uint64 {
	u, _ := v.fields[name].(uint64)
	return u
}

// UintArray returns the values of a named array sub-field.
func (v *Value) UintArray(name string) []uint64 {
	a, _ := v.fields[name].([]uint64)
	return a
}

// SetUint sets a named scalar sub-field (bitfield) or integer field
// (struct).
func (v *Value) SetUint(name string, val uint64) { v.fields[name] = val }
