package nstruct

import (
	"bytes"

	"github.com/blichmann/nstruct/nstruct/nlog"
)

// SizeFunc computes a struct's total declared on-wire size (including its
// fixed prefix) from its own (possibly partially parsed) value.
type SizeFunc func(v *Value) (int, error)

// PrepackFunc runs immediately before serialization to derive fields
// (length, checksum, ...) from the rest of the value.
type PrepackFunc func(v *Value) error

// InitFunc runs once when a value is instantiated via New, after default
// field slots are populated but before caller initializers are applied.
type InitFunc func(v *Value) error

// ClassifierFunc computes the dispatch key a base struct uses to pick a
// derived type at parse time.
type ClassifierFunc func(v *Value) (any, error)

// CriteriaFunc is a derived type's fallback predicate, evaluated against
// the base's (partially parsed) value when no classifyBy key matched.
type CriteriaFunc func(v *Value) (bool, error)

// FormatterFunc post-processes a dumped value (see component C9).
type FormatterFunc func(dumped any) (any, error)

// ParseOptions tunes parse-time behavior.
type ParseOptions struct {
	// Strict turns multiple matching derived types into
	// AmbiguousDerivedError instead of first-match-wins.
	Strict bool

	// expandTrailer is set internally by Create to widen a variable-size
	// field that has no governing size callback to consume all
	// remaining bytes, instead of zero.
	expandTrailer bool
}

// StructTD is the central composite type descriptor (component C4): an
// ordered field list, an alignment policy, optional embedded sub-structs,
// an optional base/derived relation with classifier-driven dispatch, and
// the size/prepack/init hooks that make a single declaration describe an
// entire family of related wire structures.
type StructTD struct {
	name    string
	fields  []FieldEntry
	padding int

	sizeFn      SizeFunc
	prepackFn   PrepackFunc
	initFn      InitFunc
	classifierFn ClassifierFunc

	base       *StructTD
	criteria   CriteriaFunc
	classifyBy []any

	extend    map[string]TD
	formatter FormatterFunc

	derived []*StructTD

	flat     []orderedField
	fieldSet map[string]bool
}

// StructOption configures a StructTD at declaration time.
type StructOption func(*StructTD)

// WithPadding sets the struct's alignment modulus in bytes (1 disables
// padding). If omitted, a derived type inherits its base's padding; a
// type with no base defaults to 1.
func WithPadding(p int) StructOption {
	return func(s *StructTD) { s.padding = p }
}

// WithSize declares the struct's size callback.
func WithSize(fn SizeFunc) StructOption {
	return func(s *StructTD) { s.sizeFn = fn }
}

// WithPrepack declares the struct's prepack callback.
func WithPrepack(fn PrepackFunc) StructOption {
	return func(s *StructTD) { s.prepackFn = fn }
}

// WithInit declares the struct's init callback.
func WithInit(fn InitFunc) StructOption {
	return func(s *StructTD) { s.initFn = fn }
}

// WithClassifier declares the function a base struct uses to compute the
// dispatch key for selecting a derived type at parse time.
func WithClassifier(fn ClassifierFunc) StructOption {
	return func(s *StructTD) { s.classifierFn = fn }
}

// WithBase declares that this struct extends base: it inherits base's
// flattened field layout, padding default, and size semantics, and is
// registered as one of base's candidate derived types. criteria is the
// fallback predicate used when no classifyBy key matched; classifyBy
// lists the keys base's classifier can return to select this type
// directly. Derived-type dispatch runs only under a base that declares
// WithClassifier; without one, neither criteria nor classifyBy is
// consulted at parse time.
func WithBase(base *StructTD, criteria CriteriaFunc, classifyBy ...any) StructOption {
	return func(s *StructTD) {
		s.base = base
		s.criteria = criteria
		s.classifyBy = classifyBy
	}
}

// WithExtend overrides, for dump purposes only, the declared type of the
// named fields. It never changes parse/pack bytes.
func WithExtend(overrides map[string]TD) StructOption {
	return func(s *StructTD) { s.extend = overrides }
}

// WithFormatter declares a whole-value formatter, applied last during
// dump when this struct's value is the top-level value passed to Dump
// (see SPEC_FULL.md's root-only decision).
func WithFormatter(fn FormatterFunc) StructOption {
	return func(s *StructTD) { s.formatter = fn }
}

// NewStruct declares a struct type descriptor named name with the given
// field entries and options. Declaration errors (duplicate flattened field
// names; classifyBy without a classifier; a cyclic base chain) are
// reported here, immediately, rather than at parse or pack time. Bitfield
// width mismatches are reported earlier, by NewBitfield.
func NewStruct(name string, fields []FieldEntry, opts ...StructOption) (*StructTD, error) {
	s := &StructTD{name: name, fields: fields, padding: -1}
	for _, opt := range opts {
		opt(s)
	}

	if s.padding <= 0 {
		if s.base != nil {
			s.padding = s.base.padding
		} else {
			s.padding = 1
		}
	}

	if len(s.classifyBy) > 0 {
		if s.base == nil || s.base.classifierFn == nil {
			return nil, &NoClassifierError{Base: name}
		}
	}

	for b := s.base; b != nil; b = b.base {
		if b == s {
			return nil, &CycleInDerivationError{TypeName: name}
		}
	}

	s.flat = s.flatOrder()
	s.fieldSet = map[string]bool{}
	for _, f := range s.flat {
		if f.name == "" {
			continue
		}
		if s.fieldSet[f.name] {
			return nil, &DuplicateFieldError{TypeName: name, Field: f.name}
		}
		s.fieldSet[f.name] = true
	}

	if s.base != nil {
		s.base.derived = append(s.base.derived, s)
	}
	return s, nil
}

// MustStruct is NewStruct, panicking on declaration error.
func MustStruct(name string, fields []FieldEntry, opts ...StructOption) *StructTD {
	td, err := NewStruct(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return td
}

func (s *StructTD) TypeName() string { return s.name }

// ownOrder returns s's own field entries flattened (embedded fields
// promoted, recursively) but without any base fields.
func (s *StructTD) ownOrder() []orderedField {
	var out []orderedField
	for _, fe := range s.fields {
		switch fe.kind {
		case fieldNamed:
			out = append(out, orderedField{name: fe.name, td: fe.td})
		case fieldPadding:
			out = append(out, orderedField{td: fe.td, padding: true})
		case fieldEmbedded:
			out = append(out, fe.td.(*StructTD).flatOrder()...)
		}
	}
	return out
}

// flatOrder returns s's complete parse/pack field order: base fields
// (recursively) first, then s's own (embedded-promoted) fields.
func (s *StructTD) flatOrder() []orderedField {
	if s.base != nil {
		out := append([]orderedField{}, s.base.flatOrder()...)
		return append(out, s.ownOrder()...)
	}
	return s.ownOrder()
}

func (s *StructTD) fixedSize() (int, bool) {
	if s.sizeFn != nil || s.classifierFn != nil {
		return 0, false
	}
	total := 0
	if s.base != nil {
		bw, ok := s.base.fixedSize()
		if !ok {
			return 0, false
		}
		total += bw
	}
	ow, ok := s.ownFixedSize()
	if !ok {
		return 0, false
	}
	total += ow
	return roundUp(total, s.padding), true
}

func (s *StructTD) ownFixedSize() (int, bool) {
	total := 0
	for _, fe := range s.fields {
		var td TD
		switch fe.kind {
		case fieldNamed, fieldPadding:
			td = fe.td
		case fieldEmbedded:
			w, ok := fe.td.(*StructTD).ownFixedSize()
			if !ok {
				return 0, false
			}
			total += w
			continue
		}
		w, ok := td.fixedSize()
		if !ok {
			return 0, false
		}
		total += w
	}
	return total, true
}

func (s *StructTD) defaultValue() any { return s.newZeroValue() }

func (s *StructTD) newZeroValue() *Value {
	v := &Value{td: s, fields: map[string]any{}}
	s.initDefaultsChain(v)
	return v
}

func (s *StructTD) initDefaultsChain(v *Value) {
	if s.base != nil {
		s.base.initDefaultsChain(v)
	}
	s.initDefaultsOwn(v)
}

func (s *StructTD) initDefaultsOwn(v *Value) {
	for _, fe := range s.fields {
		switch fe.kind {
		case fieldNamed:
			v.fields[fe.name] = fe.td.defaultValue()
		case fieldEmbedded:
			fe.td.(*StructTD).initDefaultsOwn(v)
		}
	}
}

func (s *StructTD) runInitChain(v *Value) error {
	if s.base != nil {
		if err := s.base.runInitChain(v); err != nil {
			return err
		}
	}
	if s.initFn != nil {
		if err := s.initFn(v); err != nil {
			return wrapCallback("init", s.name, err)
		}
	}
	return nil
}

// New instantiates a value of this struct type: default-zero fields, the
// base-to-derived init callback chain, then caller-supplied initializers.
// Unknown initializer names fail.
func (s *StructTD) New(init map[string]any) (*Value, error) {
	v := s.newZeroValue()
	if err := s.runInitChain(v); err != nil {
		return nil, err
	}
	for k, val := range init {
		if !s.fieldSet[k] {
			return nil, &UnknownFieldError{TypeName: s.name, Field: k}
		}
		v.fields[k] = val
	}
	return v, nil
}

// ---- parse ----

func (s *StructTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	return s.parseRoot(c, limit, ParseOptions{}, fieldPath)
}

func (s *StructTD) parseRoot(c *cursor, limit int, opts ParseOptions, path string) (*Value, error) {
	v := s.newZeroValue()
	start := c.Offset()
	nlog.Trace("nstruct: %s: parsing at offset %d (limit %d)", s.name, start, limit)

	if err := s.parseSelfAndBases(v, c, limit, opts, path); err != nil {
		return nil, err
	}

	cur := s
	for cur.classifierFn != nil {
		derived, err := cur.pickDerived(v, opts.Strict)
		if err != nil {
			return nil, err
		}
		if derived == nil {
			break
		}
		nlog.Trace("nstruct: %s: dispatched to derived type %s at offset %d", cur.name, derived.name, c.Offset())
		v.effective = derived
		v.variantStack = append(v.variantStack, derived)
		if err := derived.parseOwnInto(v, c, limit, opts, path); err != nil {
			return nil, err
		}
		cur = derived
	}

	if sizeFn := v.GetType().(*StructTD).nearestSizeFn(); sizeFn != nil {
		total, err := sizeFn(v)
		if err != nil {
			return nil, wrapCallback("size", path, err)
		}
		if start+total < c.Offset() {
			return nil, &SizeUnderflowError{TypeName: s.name, Declared: total, Required: c.Offset() - start}
		}
		if c.Offset() < start+total {
			c.setOffset(start + total)
		}
	}

	padded := roundUp(c.Offset()-start, v.GetType().(*StructTD).padding)
	c.setOffset(start + padded)
	return v, nil
}

func (s *StructTD) nearestSizeFn() SizeFunc {
	if s.sizeFn != nil {
		return s.sizeFn
	}
	if s.base != nil {
		return s.base.nearestSizeFn()
	}
	return nil
}

func (s *StructTD) parseSelfAndBases(v *Value, c *cursor, limit int, opts ParseOptions, path string) error {
	if s.base != nil {
		if err := s.base.parseSelfAndBases(v, c, limit, opts, path); err != nil {
			return err
		}
	}
	return s.parseOwnInto(v, c, limit, opts, path)
}

// parseOwnInto parses s's own declared fields (embedded fields promoted
// and recursed into, in declared position) into v, narrowing the cursor
// window for any variable-size field using s's own size callback if
// declared.
func (s *StructTD) parseOwnInto(v *Value, c *cursor, limit int, opts ParseOptions, path string) error {
	start := c.Offset()
	effLimit := limit
	applied := false

	ensureLimit := func() error {
		if applied {
			return nil
		}
		applied = true
		if s.sizeFn != nil {
			total, err := s.sizeFn(v)
			if err != nil {
				return wrapCallback("size", path, err)
			}
			nl := start + total
			if nl < c.Offset() {
				return &SizeUnderflowError{TypeName: s.name, Declared: total, Required: c.Offset() - start}
			}
			if nl < effLimit {
				effLimit = nl
			}
		} else if !opts.expandTrailer {
			effLimit = c.Offset()
		}
		return nil
	}

	for _, fe := range s.fields {
		switch fe.kind {
		case fieldNamed, fieldPadding:
			fp := path
			if fe.name != "" {
				fp = path + "." + fe.name
			}
			var val any
			var err error
			if pa, ok := fe.td.(parentAwareParser); ok {
				// Optional/Darray already have a narrower size policy of
				// their own (a predicate, a count); they never need the
				// enclosing struct's size callback to know their width,
				// so they're exempt from the zero-without-size clamp
				// below.
				val, err = pa.parseWithParent(c, effLimit, v, fp)
			} else {
				if _, fixed := fe.td.fixedSize(); !fixed {
					if err := ensureLimit(); err != nil {
						return err
					}
				}
				val, err = fe.td.parse(c, effLimit, fp)
			}
			if err != nil {
				return err
			}
			if fe.kind == fieldNamed {
				v.fields[fe.name] = val
			}
		case fieldEmbedded:
			embedded := fe.td.(*StructTD)
			if err := embedded.parseOwnInto(v, c, effLimit, opts, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *StructTD) pickDerived(v *Value, strict bool) (*StructTD, error) {
	var matches []*StructTD

	if s.classifierFn != nil {
		key, err := s.classifierFn(v)
		if err != nil {
			return nil, wrapCallback("classifier", s.name, err)
		}
		for _, d := range s.derived {
			for _, ck := range d.classifyBy {
				if ck == key {
					matches = append(matches, d)
				}
			}
		}
	}
	if len(matches) == 0 {
		for _, d := range s.derived {
			if d.criteria == nil {
				continue
			}
			ok, err := d.criteria(v)
			if err != nil {
				return nil, wrapCallback("criteria", d.name, err)
			}
			if ok {
				matches = append(matches, d)
			}
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if strict && len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.name
		}
		return nil, &AmbiguousDerivedError{Base: s.name, Candidates: names}
	}
	return matches[0], nil
}

// Parse consumes a value of this type from buf starting at offset,
// returning the value and the number of bytes consumed (already rounded
// up to this type's padding).
func (s *StructTD) Parse(buf []byte, offset int) (*Value, int, error) {
	return s.ParseWithOptions(buf, offset, ParseOptions{})
}

// ParseWithOptions is Parse with explicit ParseOptions (e.g. Strict mode).
func (s *StructTD) ParseWithOptions(buf []byte, offset int, opts ParseOptions) (*Value, int, error) {
	c := newCursor(buf, offset)
	v, err := s.parseRoot(c, len(buf), opts, s.name)
	if err != nil {
		return nil, 0, err
	}
	return v, c.Offset() - offset, nil
}

// Create parses buf from offset 0 and, as a convenience, expands the
// final variable-length trailer (if any) to consume all remaining bytes
// even when no size callback governs it.
func (s *StructTD) Create(buf []byte) (*Value, error) {
	c := newCursor(buf, 0)
	v, err := s.parseRoot(c, len(buf), ParseOptions{expandTrailer: true}, s.name)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ---- pack ----

func (s *StructTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	v, ok := val.(*Value)
	if !ok {
		return &FieldWidthOverflowError{FieldPath: fieldPath}
	}
	b, err := s.ToBytes(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// ToBytes runs the effective (possibly derived) type's prepack chain and
// serializes v: base chain first, then own fields in declared order, then
// zero padding up to this type's modulus.
func (s *StructTD) ToBytes(v *Value) ([]byte, error) {
	eff := v.GetType().(*StructTD)
	nlog.Trace("nstruct: %s: prepack+pack", eff.name)
	if err := runFullPrepack(eff, v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := eff.packChain(v, &buf, eff.name); err != nil {
		return nil, err
	}
	padded := roundUp(buf.Len(), eff.padding)
	for buf.Len() < padded {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func (s *StructTD) packChain(v *Value, buf *bytes.Buffer, path string) error {
	if s.base != nil {
		if err := s.base.packChain(v, buf, path); err != nil {
			return err
		}
	}
	return s.packOwn(v, buf, path)
}

func (s *StructTD) packOwn(v *Value, buf *bytes.Buffer, path string) error {
	for _, fe := range s.fields {
		switch fe.kind {
		case fieldNamed:
			if err := fe.td.pack(v.fields[fe.name], buf, path+"."+fe.name); err != nil {
				return err
			}
		case fieldPadding:
			if err := fe.td.pack(fe.td.defaultValue(), buf, path); err != nil {
				return err
			}
		case fieldEmbedded:
			if err := fe.td.(*StructTD).packOwn(v, buf, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// runFullPrepack invokes prepack callbacks bottom-up: for the effective
// type's base chain from derived to root, each level's embedded
// sub-structs first, then that level's own prepack.
func runFullPrepack(eff *StructTD, v *Value) error {
	for t := eff; t != nil; t = t.base {
		if err := t.runPrepackOwn(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *StructTD) runPrepackOwn(v *Value) error {
	for _, fe := range s.fields {
		if fe.kind == fieldEmbedded {
			if err := fe.td.(*StructTD).runPrepackOwn(v); err != nil {
				return err
			}
		}
	}
	if s.prepackFn != nil {
		if err := s.prepackFn(v); err != nil {
			return wrapCallback("prepack", s.name, err)
		}
	}
	return nil
}

func (s *StructTD) realSize(val any) (int, error) {
	v, ok := val.(*Value)
	if !ok {
		return 0, &FieldWidthOverflowError{}
	}
	return v.GetType().(*StructTD).chainRealSize(v)
}

func (s *StructTD) chainRealSize(v *Value) (int, error) {
	total := 0
	if s.base != nil {
		bw, err := s.base.chainRealSize(v)
		if err != nil {
			return 0, err
		}
		total += bw
	}
	ow, err := s.ownRealSize(v)
	if err != nil {
		return 0, err
	}
	return total + ow, nil
}

func (s *StructTD) ownRealSize(v *Value) (int, error) {
	total := 0
	for _, fe := range s.fields {
		switch fe.kind {
		case fieldNamed:
			w, err := fe.td.realSize(v.fields[fe.name])
			if err != nil {
				return 0, err
			}
			total += w
		case fieldPadding:
			w, err := fe.td.realSize(fe.td.defaultValue())
			if err != nil {
				return 0, err
			}
			total += w
		case fieldEmbedded:
			w, err := fe.td.(*StructTD).ownRealSize(v)
			if err != nil {
				return 0, err
			}
			total += w
		}
	}
	return total, nil
}

// RealSize returns v's unpadded on-wire byte length. For a struct value,
// this runs the effective type's prepack chain first, since a prepack
// callback commonly derives a length or count field that other fields'
// widths (though never the struct's own byte count) depend on.
func RealSize(v *Value) (int, error) {
	if s, ok := v.GetType().(*StructTD); ok {
		if err := runFullPrepack(s, v); err != nil {
			return 0, err
		}
		return s.chainRealSize(v)
	}
	return v.GetType().realSize(v)
}

// Length returns v's padded on-wire byte length.
func Length(v *Value) (int, error) {
	rs, err := RealSize(v)
	if err != nil {
		return 0, err
	}
	if s, ok := v.GetType().(*StructTD); ok {
		return roundUp(rs, s.padding), nil
	}
	return rs, nil
}
