package nstruct

import (
	"fmt"
	"testing"
)

func TestDumpExtendOverride(t *testing.T) {
	code := NewEnum("Code", Uint8(), false, map[string]uint64{"OK": 0, "FAIL": 1})
	td := MustStruct("Outer", []FieldEntry{Field(Uint8(), "code")},
		WithExtend(map[string]TD{"code": code}))

	v, err := td.New(map[string]any{"code": uint64(1)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// extend never changes wire bytes.
	packed, err := td.ToBytes(v)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if len(packed) != 1 || packed[0] != 1 {
		t.Fatalf("ToBytes = % x, want 01", packed)
	}

	dumped, err := Dump(v, DumpOptions{HumanReadable: true})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	m := dumped.(map[string]any)
	if m["code"] != "FAIL" {
		t.Errorf("code = %v, want FAIL (via extend override)", m["code"])
	}
}

func TestDumpIncludeType(t *testing.T) {
	td := MustStruct("Typed", []FieldEntry{Field(Uint8(), "x")})
	v, err := td.New(map[string]any{"x": 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dumped, err := Dump(v, DumpOptions{IncludeType: true})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	m := dumped.(map[string]any)
	if m["_type"] != "Typed" {
		t.Errorf("_type = %v, want Typed", m["_type"])
	}
	dumped2, err := Dump(v, DumpOptions{})
	if err != nil {
		t.Fatalf("Dump (no type): %v", err)
	}
	m2 := dumped2.(map[string]any)
	if _, ok := m2["_type"]; ok {
		t.Errorf("_type present, want absent when IncludeType is false")
	}
}

// TestFormatterRootOnly decides SPEC_FULL.md's open question: a struct's
// WithFormatter only applies when that struct's value is the root value
// passed to Dump, never when it's reached as a nested field.
func TestFormatterRootOnly(t *testing.T) {
	formatter := func(m any) (any, error) {
		mm := m.(map[string]any)
		return fmt.Sprintf("code=%v", mm["code"]), nil
	}
	inner := MustStruct("Inner", []FieldEntry{Field(Uint8(), "code")}, WithFormatter(formatter))
	wrapper := MustStruct("Wrapper", []FieldEntry{Field(inner, "inner")})

	iv, err := inner.New(map[string]any{"code": 5})
	if err != nil {
		t.Fatalf("New(inner): %v", err)
	}

	rootDump, err := Dump(iv, DumpOptions{})
	if err != nil {
		t.Fatalf("Dump(root): %v", err)
	}
	if rootDump != "code=5" {
		t.Errorf("root dump = %v, want \"code=5\"", rootDump)
	}

	wv, err := wrapper.New(nil)
	if err != nil {
		t.Fatalf("New(wrapper): %v", err)
	}
	wv.Set("inner", iv)
	nestedDump, err := Dump(wv, DumpOptions{})
	if err != nil {
		t.Fatalf("Dump(nested): %v", err)
	}
	m := nestedDump.(map[string]any)
	innerMap, ok := m["inner"].(map[string]any)
	if !ok {
		t.Fatalf("inner = %v (%T), want an unformatted map (nested formatter must not apply)", m["inner"], m["inner"])
	}
	if innerMap["code"] != uint64(5) {
		t.Errorf("inner.code = %v, want 5", innerMap["code"])
	}
}
