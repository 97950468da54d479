// Package byterange provides a small range type used to validate that a
// firmware image's sections tile their address space without gaps or
// overlap.
package byterange

import (
	"fmt"
	"sort"
)

// Range is a half-open byte interval [Offset, Offset+Length).
type Range struct {
	Offset uint64
	Length uint64
}

func (r Range) String() string {
	return fmt.Sprintf(`{"Offset":"0x%x", "Length":"0x%x"}`, r.Offset, r.Length)
}

// End returns the exclusive end of the range.
func (r Range) End() uint64 {
	return r.Offset + r.Length
}

// Intersect returns true if r and cmp share at least one byte.
func (r Range) Intersect(cmp Range) bool {
	if r.Length == 0 || cmp.Length == 0 {
		return false
	}
	if r.End() <= cmp.Offset {
		return false
	}
	if r.Offset >= cmp.End() {
		return false
	}
	return true
}

// Ranges is a helper to manipulate multiple Range values at once.
type Ranges []Range

// Sort orders the slice by Offset.
func (s Ranges) Sort() {
	sort.Slice(s, func(i, j int) bool {
		return s[i].Offset < s[j].Offset
	})
}

// AnyOverlap reports whether any two ranges in s share a byte, checked
// pairwise rather than by cursor adjacency, so it catches overlap even in
// an unsorted or partially-built slice.
func (s Ranges) AnyOverlap() bool {
	for i := range s {
		for j := i + 1; j < len(s); j++ {
			if s[i].Intersect(s[j]) {
				return true
			}
		}
	}
	return false
}

// TilesExactly reports whether the (already offset-ordered) ranges cover
// [0, total) with no gaps and no overlap — the core firmware layout
// invariant: every section abuts the next, and the last one ends exactly at
// total.
func (s Ranges) TilesExactly(total uint64) error {
	cursor := uint64(0)
	for i, r := range s {
		if r.Offset != cursor {
			return fmt.Errorf("section %d: offset 0x%x does not abut cursor 0x%x", i, r.Offset, cursor)
		}
		cursor = r.End()
	}
	if cursor != total {
		return fmt.Errorf("sections end at 0x%x, want 0x%x", cursor, total)
	}
	return nil
}
