package nstruct

// fieldKind distinguishes the three shapes a struct field entry can take
// (component C4 data model: named primitive/composite, anonymous padding,
// embedded struct).
type fieldKind int

const (
	fieldNamed fieldKind = iota
	fieldPadding
	fieldEmbedded
)

// FieldEntry is one entry in a struct declaration's field list.
type FieldEntry struct {
	kind fieldKind
	name string
	td   TD
}

// Field declares a named field of the given type, contributing td's
// decoded value under name in the flattened namespace.
func Field(td TD, name string) FieldEntry {
	return FieldEntry{kind: fieldNamed, name: name, td: td}
}

// Pad declares anonymous padding: td's bytes are consumed on parse and
// written as zero (or td's default) on pack, but it contributes no name.
func Pad(td TD) FieldEntry {
	return FieldEntry{kind: fieldPadding, td: td}
}

// Embed declares an anonymous embedded struct: its fields are promoted
// into the parent's namespace at this declared position, and its size and
// prepack callbacks (if any) see the parent's value.
func Embed(s *StructTD) FieldEntry {
	return FieldEntry{kind: fieldEmbedded, td: s}
}

// orderedField is one entry in a struct's flattened parse/pack order.
type orderedField struct {
	name    string
	td      TD
	padding bool
}
