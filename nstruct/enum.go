package nstruct

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// EnumTD wraps an integer primitive with a symbolic name mapping
// (component C3). It never changes wire bytes: parse and pack delegate
// entirely to the backing integer. Enum contributes only to
// introspection, via Symbolize, which the dump contract (C9) calls when
// human-readable formatting is requested.
type EnumTD struct {
	name    string
	backing *intTD
	bitmask bool
	values  map[string]uint64
	byValue map[uint64]string
	ordered []enumSymbol // ascending by value, used for deterministic bitmask joins
}

type enumSymbol struct {
	name  string
	value uint64
}

// NewEnum declares an enum named name, backed by backing, mapping each
// symbol to its integer value. When bitmask is true, values are expected
// to be disjoint single-bit flags combinable with bitwise OR.
func NewEnum(name string, backing *intTD, bitmask bool, symbols map[string]uint64) *EnumTD {
	e := &EnumTD{
		name:    name,
		backing: backing,
		bitmask: bitmask,
		values:  map[string]uint64{},
		byValue: map[uint64]string{},
	}
	for k, v := range symbols {
		e.values[k] = v
		e.byValue[v] = k
		e.ordered = append(e.ordered, enumSymbol{name: k, value: v})
	}
	sort.Slice(e.ordered, func(i, j int) bool { return e.ordered[i].value < e.ordered[j].value })
	return e
}

func (t *EnumTD) TypeName() string       { return t.name }
func (t *EnumTD) fixedSize() (int, bool) { return t.backing.fixedSize() }
func (t *EnumTD) defaultValue() any      { return t.backing.defaultValue() }

func (t *EnumTD) parse(c *cursor, limit int, fieldPath string) (any, error) {
	return t.backing.parse(c, limit, fieldPath)
}

func (t *EnumTD) pack(val any, buf *bytes.Buffer, fieldPath string) error {
	return t.backing.pack(val, buf, fieldPath)
}

func (t *EnumTD) realSize(val any) (int, error) { return t.backing.realSize(val) }

// Symbolize converts a scalar enum value into its human-readable dump
// form: the exact symbol for a plain enum, or for a bitmask enum, the
// space-joined names of every set flag in ascending value order, with any
// residual unmatched bits appended as a hex literal.
func (t *EnumTD) Symbolize(val any) any {
	raw := asUint64(val)
	if !t.bitmask {
		if name, ok := t.byValue[raw]; ok {
			return name
		}
		return raw
	}
	var parts []string
	remaining := raw
	for _, s := range t.ordered {
		if s.value != 0 && remaining&s.value == s.value {
			parts = append(parts, s.name)
			remaining &^= s.value
		}
	}
	if remaining != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", remaining))
	}
	if len(parts) == 0 {
		return "0x0"
	}
	return strings.Join(parts, " ")
}

func asUint64(val any) uint64 {
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case int:
		return uint64(v)
	case uint:
		return uint64(v)
	default:
		return 0
	}
}
