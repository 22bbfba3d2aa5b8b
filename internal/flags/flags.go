// Package flags decodes Discord bitfields into named, read-only booleans.
//
// Every flag type is an immutable uint64 value. The only way to "change" one is
// to build a new value with Union / Without.
package flags

import (
	"iter"
	"strings"
)

// Bit names one bit of a flag type
type Bit struct {
	Name  string
	Shift uint
}

// Layout lists the named bits of a flag type in ascending shift order
type Layout []Bit

// Mask ORs every named bit of the layout
func (l Layout) Mask() uint64 {
	var mask uint64
	for _, bit := range l {
		mask |= 1 << bit.Shift
	}
	return mask
}

// Lookup returns the shift of a named bit
func (l Layout) Lookup(name string) (uint, bool) {
	for _, bit := range l {
		if bit.Name == name {
			return bit.Shift, true
		}
	}
	return 0, false
}

func has[T ~uint64](v T, shift uint) bool {
	return (uint64(v)>>shift)&1 == 1
}

func names[T ~uint64](v T, layout Layout) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, bit := range layout {
			if has(v, bit.Shift) && !yield(bit.Name) {
				return
			}
		}
	}
}

func format[T ~uint64](kind string, v T, layout Layout) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteByte('(')
	first := true
	for name := range names(v, layout) {
		if !first {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
		first = false
	}
	sb.WriteByte(')')
	return sb.String()
}

// FromNames builds a raw bitfield from bit names, ignoring unknown names
func FromNames(layout Layout, bitNames ...string) uint64 {
	var v uint64
	for _, name := range bitNames {
		if shift, ok := layout.Lookup(name); ok {
			v |= 1 << shift
		}
	}
	return v
}
