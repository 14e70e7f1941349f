package nstruct

import (
	"bytes"
	"testing"
)

func msgTD() *StructTD {
	return MustStruct("Msg", []FieldEntry{
		Field(Uint8(), "flag"),
		Optional(Uint16BE(), "extra", func(v *Value) (bool, error) { return v.Int("flag") == 1, nil }),
		Field(Uint8(), "count"),
		Darray(Uint8(), "items", func(v *Value) (int, error) { return int(v.Int("count")), nil }),
	})
}

func TestOptionalFieldPresent(t *testing.T) {
	td := msgTD()
	buf := []byte{1, 0x00, 0x2A, 2, 10, 20}

	v, consumed, err := td.Parse(buf, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed = %d, want %d", consumed, len(buf))
	}
	if v.Int("extra") != 0x2A {
		t.Errorf("extra = %d, want 42", v.Int("extra"))
	}
	items := v.List("items")
	if len(items) != 2 || items[0].(uint64) != 10 || items[1].(uint64) != 20 {
		t.Errorf("items = %v, want [10 20]", items)
	}

	packed, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if !bytes.Equal(packed, buf) {
		t.Fatalf("round-trip ToBytes = % x, want % x", packed, buf)
	}
}

func TestOptionalFieldAbsent(t *testing.T) {
	td := msgTD()
	buf := []byte{0, 3, 7, 8, 9}

	v, consumed, err := td.Parse(buf, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed = %d, want %d", consumed, len(buf))
	}
	if v.Get("extra") != nil {
		t.Errorf("extra = %v, want absent (nil)", v.Get("extra"))
	}
	items := v.List("items")
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}

	packed, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if !bytes.Equal(packed, buf) {
		t.Fatalf("round-trip ToBytes = % x, want % x", packed, buf)
	}
}

func TestDarrayCountFromSibling(t *testing.T) {
	td := MustStruct("Counted", []FieldEntry{
		Field(Uint8(), "n"),
		Darray(Uint16BE(), "vals", func(v *Value) (int, error) { return int(v.Int("n")), nil }),
	}, WithPrepack(PackExpr("n", func(v *Value) any { return uint64(len(v.List("vals"))) })))

	v, err := td.New(map[string]any{"vals": []any{100, 200, 300}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	packed, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	want := []byte{3, 0x00, 0x64, 0x00, 0xC8, 0x01, 0x2C}
	if !bytes.Equal(packed, want) {
		t.Fatalf("ToBytes = % x, want % x", packed, want)
	}

	parsed, _, err := td.Parse(packed, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	vals := parsed.List("vals")
	if len(vals) != 3 || vals[0].(uint64) != 100 || vals[1].(uint64) != 200 || vals[2].(uint64) != 300 {
		t.Errorf("vals = %v, want [100 200 300]", vals)
	}
}

// TestPackValueConstant exercises pack_value: a prepack hook that writes a
// fixed constant into a field regardless of what New/parse put there.
func TestPackValueConstant(t *testing.T) {
	td := MustStruct("Versioned", []FieldEntry{
		Field(Uint8(), "version"),
		Field(Uint8(), "payload"),
	}, WithPrepack(PackValue("version", uint64(7))))

	v, err := td.New(map[string]any{"version": 1, "payload": 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	packed, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	want := []byte{7, 5}
	if !bytes.Equal(packed, want) {
		t.Fatalf("ToBytes = % x, want % x", packed, want)
	}
}

// TestDarrayCountExceedsBuffer exercises the resource-policy bound on
// Darray: a wire-controlled count far larger than the remaining window
// must fail with a bounded error rather than allocate a huge slice.
func TestDarrayCountExceedsBuffer(t *testing.T) {
	td := MustStruct("Huge", []FieldEntry{
		Field(Uint32BE(), "n"),
		Darray(Uint8(), "items", func(v *Value) (int, error) { return int(v.Int("n")), nil }),
	})
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 1, 2, 3}

	_, _, err := td.Parse(buf, 0)
	if _, ok := err.(*InsufficientBytesError); !ok {
		t.Fatalf("err = %v (%T), want *InsufficientBytesError", err, err)
	}
}

// TestOpenTrailerArray exercises the same "no size callback" rule as
// scenario S2: a plain Parse of an open trailer with no governing size
// callback consumes zero bytes, while Create widens it to the rest of
// the buffer.
func TestOpenTrailerArray(t *testing.T) {
	td := MustStruct("Trailer", []FieldEntry{
		Field(Array(Uint8(), 0), "rest"),
	})
	buf := []byte{1, 2, 3, 4}

	v, consumed, err := td.Parse(buf, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != 0 {
		t.Fatalf("consumed = %d, want 0", consumed)
	}
	if len(v.List("rest")) != 0 {
		t.Fatalf("len(rest) = %d, want 0", len(v.List("rest")))
	}

	created, err := td.Create(buf)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rest := created.List("rest")
	if len(rest) != 4 {
		t.Fatalf("len(rest) (Create) = %d, want 4", len(rest))
	}
}
