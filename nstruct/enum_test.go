package nstruct

import "testing"

// TestBitmaskEnumDump covers scenario S6: a bitmask enum dumped with and
// without human-readable symbolization.
func TestBitmaskEnumDump(t *testing.T) {
	abilities := NewEnum("abilities", Uint8(), true, map[string]uint64{
		"SWIMMING": 1,
		"JUMPING":  2,
		"RUNNING":  4,
		"CLIMBING": 8,
	})
	td := MustStruct("Animal", []FieldEntry{Field(abilities, "abilities")})

	v, err := td.New(map[string]any{"abilities": uint64(10)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dumped, err := Dump(v, DumpOptions{HumanReadable: true})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	m := dumped.(map[string]any)
	if m["abilities"] != "JUMPING CLIMBING" {
		t.Errorf("abilities = %v, want \"JUMPING CLIMBING\"", m["abilities"])
	}

	rawDump, err := Dump(v, DumpOptions{HumanReadable: false})
	if err != nil {
		t.Fatalf("Dump (raw): %v", err)
	}
	m2 := rawDump.(map[string]any)
	if m2["abilities"] != uint64(10) {
		t.Errorf("abilities (raw) = %v, want 10", m2["abilities"])
	}
}

func TestPlainEnumSymbolize(t *testing.T) {
	color := NewEnum("color", Uint8(), false, map[string]uint64{"RED": 1, "GREEN": 2, "BLUE": 3})
	if got := color.Symbolize(uint64(2)); got != "GREEN" {
		t.Errorf("Symbolize(2) = %v, want GREEN", got)
	}
	if got := color.Symbolize(uint64(9)); got != uint64(9) {
		t.Errorf("Symbolize(9) = %v, want unmatched raw value 9", got)
	}
}

func TestBitmaskEnumResidualBits(t *testing.T) {
	flags := NewEnum("flags", Uint8(), true, map[string]uint64{"A": 1, "B": 2})
	if got := flags.Symbolize(uint64(5)); got != "A 0x4" {
		t.Errorf("Symbolize(5) = %v, want \"A 0x4\"", got)
	}
	if got := flags.Symbolize(uint64(0)); got != "0x0" {
		t.Errorf("Symbolize(0) = %v, want \"0x0\"", got)
	}
}
