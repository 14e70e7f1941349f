package nstruct

import "bytes"

// optionalTD declares a field present only when predicate(parent) is
// true at parse time (component C5). Predicate is evaluated against the
// enclosing struct's in-progress value, so it typically reads a sibling
// flags or version field already parsed earlier in the same struct.
type optionalTD struct {
	elem      TD
	predicate func(v *Value) (bool, error)
}

// Optional declares a field of type elem that is parsed only when
// predicate, evaluated against the enclosing struct's value, returns
// true; otherwise the field is left unset and consumes zero bytes.
func Optional(elem TD, name string, predicate func(v *Value) (bool, error)) FieldEntry {
	return Field(&optionalTD{elem: elem, predicate: predicate}, name)
}

func (t *optionalTD) TypeName() string       { return "optional<" + t.elem.TypeName() + ">" }
func (t *optionalTD) fixedSize() (int, bool) { return 0, false }
func (t *optionalTD) defaultValue() any      { return nil }

// parse is the parentAwareParser-less fallback, used only if this TD is
// ever parsed outside a struct's own field loop. Absent parent context
// there is no predicate to evaluate, so the field is treated as absent.
func (t *optionalTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	return nil, nil
}

func (t *optionalTD) parseWithParent(c *cursor, limit int, parent *Value, fieldPath string) (any, error) {
	ok, err := t.predicate(parent)
	if err != nil {
		return nil, wrapCallback("optional", fieldPath, err)
	}
	if !ok {
		return nil, nil
	}
	return t.elem.parse(c, limit, fieldPath)
}

func (t *optionalTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	if val == nil {
		return nil
	}
	return t.elem.pack(val, buf, fieldPath)
}

func (t *optionalTD) realSize(val any) (int, error) {
	if val == nil {
		return 0, nil
	}
	return t.elem.realSize(val)
}

// darrayTD declares a field that is exactly countFn(parent) elements of
// elem, where countFn typically reads a sibling count field (component
// C5). Unlike Array(elem, 0), which infers its element count from the
// remaining window, Darray's count is computed explicitly and does not
// depend on elem having a fixed width.
type darrayTD struct {
	elem    TD
	countFn func(v *Value) (int, error)
}

// Darray declares a field that is exactly countFn(parent) elements of
// elem, parsed in sequence starting at the current cursor position.
func Darray(elem TD, name string, countFn func(v *Value) (int, error)) FieldEntry {
	return Field(&darrayTD{elem: elem, countFn: countFn}, name)
}

func (t *darrayTD) TypeName() string       { return "darray<" + t.elem.TypeName() + ">" }
func (t *darrayTD) fixedSize() (int, bool) { return 0, false }
func (t *darrayTD) defaultValue() any      { return []any{} }

func (t *darrayTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	return []any{}, nil
}

func (t *darrayTD) parseWithParent(c *cursor, limit int, parent *Value, fieldPath string) (any, error) {
	n, err := t.countFn(parent)
	if err != nil {
		return nil, wrapCallback("darray", fieldPath, err)
	}
	if n < 0 {
		return nil, &InsufficientBytesError{FieldPath: fieldPath, Needed: n, Available: c.remaining(limit)}
	}
	// n comes from a wire-controlled count field, not a declared constant
	// (unlike Array's fixed N), so it must be bounded against what the
	// window actually holds before allocating out — otherwise a few bytes
	// of header can request an arbitrarily large slice.
	maxN := c.remaining(limit)
	if w, fixed := t.elem.fixedSize(); fixed && w > 0 {
		maxN /= w
	}
	if n > maxN {
		return nil, &InsufficientBytesError{FieldPath: fieldPath, Needed: n, Available: maxN}
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

func (t *darrayTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	items, ok := val.([]any)
	if !ok {
		return &FieldWidthOverflowError{FieldPath: fieldPath}
	}
	for _, item := range items {
		if err := t.elem.pack(item, buf, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func (t *darrayTD) realSize(val any) (int, error) {
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

// PackValue returns a PrepackFunc that sets field to the fixed constant
// value, overwriting whatever the caller initialized or parsed into it.
// Use for fields whose on-wire value never varies, such as a format
// version or a reserved tag.
func PackValue(field string, value any) PrepackFunc {
	return func(v *Value) error {
		v.Set(field, value)
		return nil
	}
}

// PackExpr returns a PrepackFunc that sets field to a pure function of
// the value, for derivations that cannot fail (a simple arithmetic
// expression over sibling fields).
func PackExpr(field string, fn func(v *Value) any) PrepackFunc {
	return func(v *Value) error {
		v.Set(field, fn(v))
		return nil
	}
}

// PackRealSize returns a PrepackFunc that writes the effective struct's
// own unpadded on-wire byte length into field, typically paired with a
// WithSize callback that reads the same field back during parse to
// narrow the window for a trailing variable-length field.
func PackRealSize(field string) PrepackFunc {
	return func(v *Value) error {
		eff := v.GetType().(*StructTD)
		rs, err := eff.chainRealSize(v)
		if err != nil {
			return err
		}
		v.Set(field, uint64(rs))
		return nil
	}
}
