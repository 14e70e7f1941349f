package nstruct

import (
	"bytes"
	"testing"
)

// TestFixedStruct covers scenario S1: a struct with padding fields, a
// fixed char array, and a fixed-length array of integers.
func TestFixedStruct(t *testing.T) {
	td := MustStruct("S1", []FieldEntry{
		Field(Uint16BE(), "myshort"),
		Field(Uint8(), "mybyte"),
		Pad(Uint8()),
		Field(CharArray(5), "mystr"),
		Pad(Uint8()),
		Field(Array(Uint16BE(), 5), "myarray"),
	})

	want := []byte{
		0x00, 0x02, 0x00, 0x00, 0x31, 0x32, 0x33, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00, 0x05,
	}

	v, err := td.New(map[string]any{
		"myshort": 2,
		"mystr":   "123",
		"myarray": []any{1, 2, 3, 4, 5},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ToBytes = % x, want % x", got, want)
	}

	parsed, consumed, err := td.Parse(want, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != 20 {
		t.Fatalf("consumed = %d, want 20", consumed)
	}
	if parsed.Int("myshort") != 2 {
		t.Errorf("myshort = %d, want 2", parsed.Int("myshort"))
	}
	if parsed.Str("mystr") != "123" {
		t.Errorf("mystr = %q, want \"123\"", parsed.Str("mystr"))
	}
	arr := parsed.List("myarray")
	if len(arr) != 5 {
		t.Fatalf("len(myarray) = %d, want 5", len(arr))
	}
	for i, want := range []uint64{1, 2, 3, 4, 5} {
		if arr[i].(uint64) != want {
			t.Errorf("myarray[%d] = %v, want %d", i, arr[i], want)
		}
	}
}

// TestSizeDrivenVariableStruct covers scenario S2: a size callback and
// pack_real_size-style prepack governing a trailing raw field, and the
// contrasting behavior when no size callback is declared at all.
func TestSizeDrivenVariableStruct(t *testing.T) {
	want := []byte{0x00, 0x07, 0x61, 0x62, 0x63, 0x64, 0x65}

	sized := MustStruct("S2Sized",
		[]FieldEntry{Field(Uint16BE(), "length"), Field(Raw(), "data")},
		WithSize(func(v *Value) (int, error) { return int(v.Int("length")), nil }),
		WithPrepack(PackRealSize("length")),
	)

	v, err := sized.New(map[string]any{"data": []byte("abcde")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := sized.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ToBytes = % x, want % x", got, want)
	}

	parsed, consumed, err := sized.Parse(want, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != 7 {
		t.Fatalf("consumed = %d, want 7", consumed)
	}
	if parsed.Int("length") != 7 {
		t.Errorf("length = %d, want 7", parsed.Int("length"))
	}
	if string(parsed.Bytes("data")) != "abcde" {
		t.Errorf("data = %q, want \"abcde\"", parsed.Bytes("data"))
	}

	noSize := MustStruct("S2NoSize",
		[]FieldEntry{Field(Uint16BE(), "length"), Field(Raw(), "data")},
	)
	parsed2, consumed2, err := noSize.Parse(want, 0)
	if err != nil {
		t.Fatalf("Parse (no size): %v", err)
	}
	if consumed2 != 2 {
		t.Fatalf("consumed (no size) = %d, want 2", consumed2)
	}
	if parsed2.Int("length") != 7 {
		t.Errorf("length (no size) = %d, want 7", parsed2.Int("length"))
	}
	if len(parsed2.Bytes("data")) != 0 {
		t.Errorf("data (no size) = % x, want empty", parsed2.Bytes("data"))
	}
}

// TestExtension covers scenario S3: a base struct with a size callback
// and two tag-dispatched derived types.
func TestExtension(t *testing.T) {
	base := MustStruct("Base",
		[]FieldEntry{
			Field(Uint16BE(), "length"),
			Field(Uint8(), "type"),
			Field(Uint8(), "basedata"),
		},
		WithPadding(4),
		WithSize(func(v *Value) (int, error) { return int(v.Int("length")), nil }),
		WithPrepack(PackRealSize("length")),
		WithClassifier(func(v *Value) (any, error) { return v.Int("type"), nil }),
	)
	derivedA := MustStruct("A",
		[]FieldEntry{Field(Uint16BE(), "data1"), Field(Uint8(), "data2")},
		WithBase(base, nil, int64(1)),
	)
	derivedB := MustStruct("B",
		[]FieldEntry{Field(Uint32BE(), "data3")},
		WithBase(base, nil, int64(2)),
	)

	va, err := derivedA.New(map[string]any{"type": 1, "basedata": 1, "data1": 2, "data2": 3})
	if err != nil {
		t.Fatalf("New(A): %v", err)
	}
	bytesA, err := derivedA.ToBytes(va)
	if err != nil {
		t.Fatalf("ToBytes(A): %v", err)
	}
	wantA := []byte{0x00, 0x07, 0x01, 0x01, 0x00, 0x02, 0x03, 0x00}
	if !bytes.Equal(bytesA, wantA) {
		t.Fatalf("ToBytes(A) = % x, want % x", bytesA, wantA)
	}

	vb, err := derivedB.New(map[string]any{"type": 2, "basedata": 1, "data3": 4})
	if err != nil {
		t.Fatalf("New(B): %v", err)
	}
	bytesB, err := derivedB.ToBytes(vb)
	if err != nil {
		t.Fatalf("ToBytes(B): %v", err)
	}
	wantB := []byte{0x00, 0x08, 0x02, 0x01, 0x00, 0x00, 0x00, 0x04}
	if !bytes.Equal(bytesB, wantB) {
		t.Fatalf("ToBytes(B) = % x, want % x", bytesB, wantB)
	}

	parsed, consumed, err := base.Parse(bytesA, 0)
	if err != nil {
		t.Fatalf("Parse(A): %v", err)
	}
	if consumed != 8 {
		t.Fatalf("consumed(A) = %d, want 8", consumed)
	}
	if parsed.GetType().TypeName() != "A" {
		t.Fatalf("effective type = %s, want A", parsed.GetType().TypeName())
	}
	if parsed.Int("data1") != 2 || parsed.Int("data2") != 3 {
		t.Errorf("A fields = data1:%d data2:%d, want 2,3", parsed.Int("data1"), parsed.Int("data2"))
	}

	parsedB, _, err := base.Parse(bytesB, 0)
	if err != nil {
		t.Fatalf("Parse(B): %v", err)
	}
	if parsedB.GetType().TypeName() != "B" {
		t.Fatalf("effective type = %s, want B", parsedB.GetType().TypeName())
	}
	if parsedB.Int("data3") != 4 {
		t.Errorf("B.data3 = %d, want 4", parsedB.Int("data3"))
	}
}

// TestAmbiguousDerivedStrict exercises the Strict parse option against two
// derived types whose criteria both match the same value.
func TestAmbiguousDerivedStrict(t *testing.T) {
	base := MustStruct("Base2", []FieldEntry{Field(Uint8(), "flag")},
		WithClassifier(func(v *Value) (any, error) { return v.Int("flag"), nil }))
	_ = MustStruct("C1", nil, WithBase(base, func(v *Value) (bool, error) { return true, nil }))
	_ = MustStruct("C2", nil, WithBase(base, func(v *Value) (bool, error) { return true, nil }))

	_, _, err := base.ParseWithOptions([]byte{1}, 0, ParseOptions{Strict: true})
	if _, ok := err.(*AmbiguousDerivedError); !ok {
		t.Fatalf("err = %v, want *AmbiguousDerivedError", err)
	}

	v, _, err := base.Parse([]byte{1}, 0)
	if err != nil {
		t.Fatalf("non-strict parse: %v", err)
	}
	if v.GetType().TypeName() != "C1" {
		t.Fatalf("first-match-wins chose %s, want C1", v.GetType().TypeName())
	}
}

func TestEmbeddedFieldsPromoted(t *testing.T) {
	header := MustStruct("Header", []FieldEntry{Field(Uint8(), "version")})
	outer := MustStruct("Outer", []FieldEntry{
		Embed(header),
		Field(Uint8(), "payload"),
	})
	v, err := outer.New(map[string]any{"version": 1, "payload": 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := outer.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("ToBytes = % x, want 01 02", got)
	}
}

func TestDuplicateFieldNameRejected(t *testing.T) {
	header := MustStruct("Header2", []FieldEntry{Field(Uint8(), "x")})
	_, err := NewStruct("Outer2", []FieldEntry{
		Embed(header),
		Field(Uint8(), "x"),
	})
	if _, ok := err.(*DuplicateFieldError); !ok {
		t.Fatalf("err = %v, want *DuplicateFieldError", err)
	}
}

func TestUnknownFieldOnNew(t *testing.T) {
	td := MustStruct("S", []FieldEntry{Field(Uint8(), "a")})
	_, err := td.New(map[string]any{"b": 1})
	if _, ok := err.(*UnknownFieldError); !ok {
		t.Fatalf("err = %v, want *UnknownFieldError", err)
	}
}

func TestFieldWidthOverflow(t *testing.T) {
	td := MustStruct("S3", []FieldEntry{Field(Uint8(), "a")})
	v, err := td.New(map[string]any{"a": 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = td.ToBytes(v)
	if _, ok := err.(*FieldWidthOverflowError); !ok {
		t.Fatalf("err = %v, want *FieldWidthOverflowError", err)
	}
}

func TestNoClassifierError(t *testing.T) {
	base := MustStruct("NoClass", []FieldEntry{Field(Uint8(), "t")})
	_, err := NewStruct("Derived", nil, WithBase(base, nil, int64(1)))
	if _, ok := err.(*NoClassifierError); !ok {
		t.Fatalf("err = %v, want *NoClassifierError", err)
	}
}

// TestRoundTripEqual exercises the round-trip testable property (spec §8
// property 1): parse(to_bytes(v)) is structurally equal to v.
func TestRoundTripEqual(t *testing.T) {
	td := MustStruct("S1", []FieldEntry{
		Field(Uint16BE(), "myshort"),
		Field(Uint8(), "mybyte"),
		Pad(Uint8()),
		Field(CharArray(5), "mystr"),
		Pad(Uint8()),
		Field(Array(Uint16BE(), 5), "myarray"),
	})

	v, err := td.New(map[string]any{
		"myshort": 2,
		"mybyte":  9,
		"mystr":   "123",
		"myarray": []any{1, 2, 3, 4, 5},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	packed, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	reparsed, _, err := td.Parse(packed, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !v.Equal(reparsed) {
		t.Fatalf("round-trip not structurally equal, diff: %v", v.Diff(reparsed))
	}

	reparsed.Set("mybyte", uint64(99))
	if v.Equal(reparsed) {
		t.Fatalf("Equal reported equal after a field was changed")
	}
	diff := v.Diff(reparsed)
	if len(diff) == 0 {
		t.Fatalf("Diff reported no differences after a field was changed")
	}
}

func TestLengthAndRealSize(t *testing.T) {
	td := MustStruct("Padded", []FieldEntry{Field(Uint8(), "a")}, WithPadding(4))
	v, err := td.New(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rs, err := RealSize(v)
	if err != nil {
		t.Fatalf("RealSize: %v", err)
	}
	if rs != 1 {
		t.Errorf("RealSize = %d, want 1", rs)
	}
	l, err := Length(v)
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if l != 4 {
		t.Errorf("Length = %d, want 4", l)
	}
}
