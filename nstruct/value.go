package nstruct

// Value is the runtime representation of a parsed or constructed struct
// or bitfield (component C8): a mutable tree node with per-field slots,
// attribute-style access, and an effective type that may differ from the
// type it was declared against when parse-time polymorphic dispatch chose
// a derived type.
//
// Values are tree-shaped by construction: a field slot holds a scalar, a
// []byte, a []any (list/array), or a nested *Value. There is no sharing
// and no cycles.
type Value struct {
	td        TD // the TD this value was instantiated or parsed against
	effective TD // the TD that actually describes its fields; struct derived dispatch only

	fields map[string]any

	// variantStack records, in dispatch order, the derived TDs chosen
	// during parse (the base the parse started from is not included).
	// Re-packing reproduces the extension layers through the effective
	// type; this list is kept for inspection only.
	variantStack []*StructTD
}

// GetType returns the value's effective type: the derived type chosen at
// parse time, or the type it was declared against if no dispatch
// occurred.
func (v *Value) GetType() TD {
	if v.effective != nil {
		return v.effective
	}
	return v.td
}

// Get returns the raw value of a field slot, or nil if unset.
func (v *Value) Get(name string) any { return v.fields[name] }

// Set assigns a field slot. It does not check name against the type's
// field namespace; unknown names are rejected (UnknownFieldError) only by
// New.
func (v *Value) Set(name string, val any) { v.fields[name] = val }

// Int returns a signed integer field as int64.
func (v *Value) Int(name string) int64 {
	switch n := v.fields[name].(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

// Bytes returns a raw byte-string field.
func (v *Value) Bytes(name string) []byte {
	b, _ := v.fields[name].([]byte)
	return b
}

// Str returns a char-array field.
func (v *Value) Str(name string) string {
	s, _ := v.fields[name].(string)
	return s
}

// List returns an array/darray field as a slice of decoded elements.
func (v *Value) List(name string) []any {
	l, _ := v.fields[name].([]any)
	return l
}

// AppendList appends an element to an array/darray field, creating it if
// absent.
func (v *Value) AppendList(name string, elem any) {
	v.fields[name] = append(v.List(name), elem)
}

// Nested returns a composite (struct or bitfield) field's value.
func (v *Value) Nested(name string) *Value {
	nv, _ := v.fields[name].(*Value)
	return nv
}

// Equal reports whether v and other are structurally equal: same
// effective type name and field-by-field equal values (nested values
// compared recursively, slices element-wise).
func (v *Value) Equal(other *Value) bool {
	return len(v.Diff(other)) == 0
}

// Diff returns a list of human-readable descriptions of every field path
// at which v and other differ. It is used by tests asserting the
// round-trip testable property and is not part of the declared runtime
// API.
func (v *Value) Diff(other *Value) []string {
	return diffValues("", v, other)
}

func diffValues(path string, a, b *Value) []string {
	var out []string
	if a == nil || b == nil {
		if a != b {
			out = append(out, path+": nil mismatch")
		}
		return out
	}
	if a.GetType().TypeName() != b.GetType().TypeName() {
		out = append(out, path+": type "+a.GetType().TypeName()+" != "+b.GetType().TypeName())
	}
	seen := map[string]bool{}
	for k := range a.fields {
		seen[k] = true
	}
	for k := range b.fields {
		seen[k] = true
	}
	for k := range seen {
		out = append(out, diffField(path+"."+k, a.fields[k], b.fields[k])...)
	}
	return out
}

func diffField(path string, a, b any) []string {
	switch av := a.(type) {
	case *Value:
		bv, ok := b.(*Value)
		if !ok {
			return []string{path + ": type mismatch"}
		}
		return diffValues(path, av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return []string{path + ": list length mismatch"}
		}
		var out []string
		for i := range av {
			out = append(out, diffField(path+"[]", av[i], bv[i])...)
		}
		return out
	case []byte:
		bv, ok := b.([]byte)
		if !ok || string(av) != string(bv) {
			return []string{path + ": bytes differ"}
		}
		return nil
	case []uint64:
		bv, ok := b.([]uint64)
		if !ok || len(av) != len(bv) {
			return []string{path + ": uint array differs"}
		}
		for i := range av {
			if av[i] != bv[i] {
				return []string{path + ": uint array differs"}
			}
		}
		return nil
	default:
		// Integer slots may hold a plain Go int (from New/Set) or the
		// int64/uint64 a parse produces; compare those by value.
		num := func(x any) (int64, bool) {
			switch n := x.(type) {
			case int:
				return int64(n), true
			case int64:
				return n, true
			case uint64:
				return int64(n), true
			case uint:
				return int64(n), true
			}
			return 0, false
		}
		if an, ok := num(a); ok {
			if bn, ok := num(b); ok && an == bn {
				return nil
			}
		}
		if a != b {
			return []string{path + ": scalar differs"}
		}
		return nil
	}
}
