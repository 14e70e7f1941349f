package nstruct

import (
	"bytes"
	"encoding/binary"
)

// intTD is a fixed-width integer primitive (component C1): one of
// {8,16,32,64} bits, signed or unsigned, big- or little-endian. Parsed
// values are always represented as int64 (signed) or uint64 (unsigned)
// in field slots, regardless of declared width; pack also accepts the
// other Go integer types (see toRaw).
type intTD struct {
	name   string
	width  int // bytes: 1, 2, 4, 8
	signed bool
	endian Endian
}

func newIntTD(name string, width int, signed bool, endian Endian) *intTD {
	return &intTD{name: name, width: width, signed: signed, endian: endian}
}

// Unsigned, fixed-width integer constructors. Naming follows the
// Uint16be/Uint16le convention used by the pack's construct-style binary
// field libraries.
func Uint8() *intTD                { return newIntTD("uint8", 1, false, BigEndian) }
func Uint16BE() *intTD              { return newIntTD("uint16be", 2, false, BigEndian) }
func Uint16LE() *intTD              { return newIntTD("uint16le", 2, false, LittleEndian) }
func Uint32BE() *intTD              { return newIntTD("uint32be", 4, false, BigEndian) }
func Uint32LE() *intTD              { return newIntTD("uint32le", 4, false, LittleEndian) }
func Uint64BE() *intTD              { return newIntTD("uint64be", 8, false, BigEndian) }
func Uint64LE() *intTD              { return newIntTD("uint64le", 8, false, LittleEndian) }

// Signed, fixed-width integer constructors.
func Int8() *intTD     { return newIntTD("int8", 1, true, BigEndian) }
func Int16BE() *intTD  { return newIntTD("int16be", 2, true, BigEndian) }
func Int16LE() *intTD  { return newIntTD("int16le", 2, true, LittleEndian) }
func Int32BE() *intTD  { return newIntTD("int32be", 4, true, BigEndian) }
func Int32LE() *intTD  { return newIntTD("int32le", 4, true, LittleEndian) }
func Int64BE() *intTD  { return newIntTD("int64be", 8, true, BigEndian) }
func Int64LE() *intTD  { return newIntTD("int64le", 8, true, LittleEndian) }

func (t *intTD) TypeName() string   { return t.name }
func (t *intTD) fixedSize() (int, bool) { return t.width, true }

func (t *intTD) defaultValue() any {
	if t.signed {
		return int64(0)
	}
	return uint64(0)
}

func (t *intTD) byteOrder() binary.ByteOrder {
	if t.endian == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (t *intTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	b, err := c.next(limit, t.width, fieldPath)
	if err != nil {
		return nil, err
	}
	var raw uint64
	switch t.width {
	case 1:
		raw = uint64(b[0])
	case 2:
		raw = uint64(t.byteOrder().Uint16(b))
	case 4:
		raw = uint64(t.byteOrder().Uint32(b))
	case 8:
		raw = t.byteOrder().Uint64(b)
	}
	if !t.signed {
		return raw, nil
	}
	return signExtend(raw, t.width), nil
}

func signExtend(raw uint64, width int) int64 {
	bits := uint(width * 8)
	signBit := uint64(1) << (bits - 1)
	if raw&signBit == 0 {
		return int64(raw)
	}
	return int64(raw | (^uint64(0) << bits))
}

func (t *intTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	raw, err := t.toRaw(val, fieldPath)
	if err != nil {
		return err
	}
	tmp := make([]byte, t.width)
	switch t.width {
	case 1:
		tmp[0] = byte(raw)
	case 2:
		t.byteOrder().PutUint16(tmp, uint16(raw))
	case 4:
		t.byteOrder().PutUint32(tmp, uint32(raw))
	case 8:
		t.byteOrder().PutUint64(tmp, raw)
	}
	buf.Write(tmp)
	return nil
}

// toRaw accepts int64, uint64, int, or uint field values (callers commonly
// pass plain Go int literals to New/Set) and range-checks against the
// declared width.
func (t *intTD) toRaw(val any, fieldPath string) (uint64, error) {
	var signedVal int64
	var unsignedVal uint64
	isSigned := false
	switch v := val.(type) {
	case int64:
		signedVal, isSigned = v, true
	case int:
		signedVal, isSigned = int64(v), true
	case uint64:
		unsignedVal = v
	case uint:
		unsignedVal = uint64(v)
	case uint8:
		unsignedVal = uint64(v)
	case uint16:
		unsignedVal = uint64(v)
	case uint32:
		unsignedVal = uint64(v)
	case int8:
		signedVal, isSigned = int64(v), true
	case int16:
		signedVal, isSigned = int64(v), true
	case int32:
		signedVal, isSigned = int64(v), true
	default:
		return 0, &FieldWidthOverflowError{FieldPath: fieldPath, WidthBits: t.width * 8}
	}

	bits := uint(t.width * 8)
	if t.signed {
		if !isSigned {
			signedVal = int64(unsignedVal)
		}
		lo, hi := signedRange(bits)
		if signedVal < lo || signedVal > hi {
			return 0, &FieldWidthOverflowError{FieldPath: fieldPath, Value: signedVal, WidthBits: t.width * 8}
		}
		return uint64(signedVal) & maskFor(int(bits)), nil
	}
	if isSigned {
		if signedVal < 0 {
			return 0, &FieldWidthOverflowError{FieldPath: fieldPath, Value: signedVal, WidthBits: t.width * 8}
		}
		unsignedVal = uint64(signedVal)
	}
	if bits < 64 && unsignedVal > maskFor(int(bits)) {
		return 0, &FieldWidthOverflowError{FieldPath: fieldPath, Value: int64(unsignedVal), WidthBits: t.width * 8}
	}
	return unsignedVal, nil
}

func signedRange(bits uint) (lo, hi int64) {
	if bits >= 64 {
		return int64(-1) << 63, (int64(1) << 62) + ((int64(1) << 62) - 1)
	}
	hi = (int64(1) << (bits - 1)) - 1
	lo = -(int64(1) << (bits - 1))
	return lo, hi
}

func (t *intTD) realSize(val any) (int, error) { return t.width, nil }

// rawTD is a contiguous variable-length byte string whose length is
// always dictated by the enclosing window: it never self-delimits.
type rawTD struct{}

// Raw declares a byte-string field whose length comes entirely from the
// enclosing window: the struct's size callback, or, under Create, the
// rest of the buffer. With neither, Parse reads it as empty.
func Raw() *rawTD { return &rawTD{} }

func (t *rawTD) TypeName() string       { return "raw" }
func (t *rawTD) fixedSize() (int, bool) { return 0, false }
func (t *rawTD) defaultValue() any      { return []byte{} }

func (t *rawTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	n := c.remaining(limit)
	b, err := c.next(limit, n, fieldPath)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (t *rawTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	b, ok := val.([]byte)
	if !ok {
		return &FieldWidthOverflowError{FieldPath: fieldPath}
	}
	buf.Write(b)
	return nil
}

func (t *rawTD) realSize(val any) (int, error) {
	b, ok := val.([]byte)
	if !ok {
		return 0, &FieldWidthOverflowError{}
	}
	return len(b), nil
}

// charArrayTD is a fixed N-byte field represented as a string. On parse,
// trailing NUL bytes are trimmed (so a round-tripped value compares equal
// to the value that produced it); on pack, the string is zero-padded or
// must fit exactly within N bytes.
type charArrayTD struct{ n int }

// CharArray declares a fixed-size char[N] field.
func CharArray(n int) *charArrayTD { return &charArrayTD{n: n} }

func (t *charArrayTD) TypeName() string       { return "char[]" }
func (t *charArrayTD) fixedSize() (int, bool) { return t.n, true }
func (t *charArrayTD) defaultValue() any      { return "" }

func (t *charArrayTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	b, err := c.next(limit, t.n, fieldPath)
	if err != nil {
		return nil, err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

func (t *charArrayTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	s, ok := val.(string)
	if !ok {
		return &FieldWidthOverflowError{FieldPath: fieldPath}
	}
	if len(s) > t.n {
		return &FieldWidthOverflowError{FieldPath: fieldPath, Value: int64(len(s)), WidthBits: t.n * 8}
	}
	tmp := make([]byte, t.n)
	copy(tmp, s)
	buf.Write(tmp)
	return nil
}

func (t *charArrayTD) realSize(val any) (int, error) { return t.n, nil }

// arrayTD is a fixed-length (N>=1) or open-trailer (N==0) array of a
// fixed-size element type.
type arrayTD struct {
	elem TD
	n    int // 0 means "consume the rest of the window"
}

// Array declares T[N]: a fixed-length array of N elements of elem. N=0
// declares an open trailer whose length is (remaining bytes in the
// enclosing window) / sizeof(elem).
func Array(elem TD, n int) *arrayTD { return &arrayTD{elem: elem, n: n} }

func (t *arrayTD) TypeName() string { return "array" }

func (t *arrayTD) fixedSize() (int, bool) {
	if t.n == 0 {
		return 0, false
	}
	w, ok := t.elem.fixedSize()
	if !ok {
		return 0, false
	}
	return w * t.n, true
}

func (t *arrayTD) defaultValue() any {
	n := t.n
	out := make([]any, n)
	for i := range out {
		out[i] = t.elem.defaultValue()
	}
	return out
}

func (t *arrayTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	elemWidth, fixed := t.elem.fixedSize()
	n := t.n
	if n == 0 {
		if !fixed || elemWidth == 0 {
			return nil, &SizeUnderflowError{TypeName: t.TypeName()}
		}
		n = c.remaining(limit) / elemWidth
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := t.elem.parse(c, limit, fieldPath)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *arrayTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	items, ok := val.([]any)
	if !ok {
		return &FieldWidthOverflowError{FieldPath: fieldPath}
	}
	if t.n != 0 && len(items) != t.n {
		return &FieldWidthOverflowError{FieldPath: fieldPath, Value: int64(len(items))}
	}
	for _, item := range items {
		if err := t.elem.pack(item, buf, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func (t *arrayTD) realSize(val any) (int, error) {
	items, ok := val.([]any)
	if !ok {
		return 0, &FieldWidthOverflowError{}
	}
	total := 0
	for _, item := range items {
		s, err := t.elem.realSize(item)
		if err != nil {
			return 0, err
		}
		total += s
	}
	return total, nil
}
