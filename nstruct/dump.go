package nstruct

// DumpOptions controls Dump's output shape.
type DumpOptions struct {
	// HumanReadable requests enum/bitmask symbolization instead of raw
	// integer values.
	HumanReadable bool

	// IncludeType adds a "_type" key carrying the effective type's name
	// to every struct-shaped mapping.
	IncludeType bool
}

// Dump converts a parsed or constructed value into a JSON-friendly
// mapping: nested structs become map[string]any, arrays become []any,
// byte strings become []byte (callers typically base64- or hex-encode
// these themselves when marshaling to JSON text), bitfields become a
// map[string]any of their named sub-fields, and plain scalars dump as
// their stored Go scalar representation (or, with HumanReadable, an
// enum/bitmask's symbolic name).
//
// A field's declared type can be overridden for dump purposes only via
// WithExtend; the override never changes what Parse/ToBytes read or
// write. A struct's own WithFormatter, if declared, is applied only when
// that struct's value is the root of this Dump call (see SPEC_FULL.md's
// decision on nested formatter application).
func Dump(v *Value, opts DumpOptions) (any, error) {
	out, err := dumpValue(v, opts, true)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func dumpValue(v *Value, opts DumpOptions, isRoot bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.GetType().(type) {
	case *StructTD:
		return dumpStruct(t, v, opts, isRoot)
	case *BitfieldTD:
		return dumpBitfield(t, v, opts)
	default:
		return nil, &UnknownFieldError{TypeName: v.GetType().TypeName()}
	}
}

func dumpStruct(s *StructTD, v *Value, opts DumpOptions, isRoot bool) (any, error) {
	out := map[string]any{}
	if opts.IncludeType {
		out["_type"] = s.TypeName()
	}
	for _, fe := range s.flat {
		if fe.padding || fe.name == "" {
			continue
		}
		fieldTD := fe.td
		if override, ok := nearestExtend(s, fe.name); ok {
			fieldTD = override
		}
		dumped, err := dumpField(fieldTD, v.fields[fe.name], opts)
		if err != nil {
			return nil, err
		}
		out[fe.name] = dumped
	}

	var result any = out
	if isRoot && s.formatter != nil {
		formatted, err := s.formatter(out)
		if err != nil {
			return nil, wrapCallback("formatter", s.name, err)
		}
		result = formatted
	}
	return result, nil
}

// nearestExtend looks up a dump-only type override for name, checking s
// and then its base chain (a derived type's extend map, if any, takes
// precedence over its base's).
func nearestExtend(s *StructTD, name string) (TD, bool) {
	for t := s; t != nil; t = t.base {
		if t.extend != nil {
			if td, ok := t.extend[name]; ok {
				return td, true
			}
		}
	}
	return nil, false
}

func dumpBitfield(t *BitfieldTD, v *Value, opts DumpOptions) (any, error) {
	out := map[string]any{}
	for _, s := range t.subs {
		if s.Name == "" {
			continue
		}
		if s.ArrayLen > 1 {
			out[s.Name] = v.UintArray(s.Name)
		} else {
			out[s.Name] = v.Uint(s.Name)
		}
	}
	return out, nil
}

func dumpField(td TD, val any, opts DumpOptions) (any, error) {
	switch t := td.(type) {
	case *EnumTD:
		if opts.HumanReadable {
			return t.Symbolize(val), nil
		}
		return val, nil
	case *StructTD:
		nv, ok := val.(*Value)
		if !ok {
			return nil, nil
		}
		return dumpStruct(nv.GetType().(*StructTD), nv, opts, false)
	case *BitfieldTD:
		nv, ok := val.(*Value)
		if !ok {
			return nil, nil
		}
		return dumpBitfield(t, nv, opts)
	case *arrayTD:
		items, ok := val.([]any)
		if !ok {
			return []any{}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			d, err := dumpField(t.elem, item, opts)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case *darrayTD:
		items, ok := val.([]any)
		if !ok {
			return []any{}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			d, err := dumpField(t.elem, item, opts)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case *optionalTD:
		if val == nil {
			return nil, nil
		}
		return dumpField(t.elem, val, opts)
	default:
		return val, nil
	}
}
