// Package policy resolves, per payload of a composite cache record, which
// cache behavior applies.
//
// The common case is "no overrides at all": a RecordPolicy is then a single
// flags word and costs nothing. Sparse overrides allocate one shared,
// immutable overlay that is sorted once and queried by binary search, so a
// composite request fanning out over dozens of payloads pays O(log n) per
// payload and no locking.
package policy

import (
	"slices"
)

// Flags is a bit set of cache behaviors to skip.
type Flags uint32

const (
	// Default reads and writes every tier.
	Default Flags = 0
	// SkipRead suppresses cache queries; the request always builds.
	SkipRead Flags = 1 << 0
	// SkipWrite suppresses write-back of built results.
	SkipWrite Flags = 1 << 1
	// SkipMeta suppresses metadata lookups for the record.
	SkipMeta Flags = 1 << 2
	// SkipData skips fetching one payload's bytes. Meaningful on a
	// per-payload override; masked out of the aggregate because the
	// record as a whole is still read or written.
	SkipData Flags = 1 << 3
)

// Has reports whether all bits of q are set.
func (f Flags) Has(q Flags) bool { return f&q == q }

// PayloadID identifies one payload (sub-item) of a cache record.
type PayloadID uint64

type override struct {
	id    PayloadID
	flags Flags
}

// overlay is immutable once built and shared by pointer across every
// RecordPolicy derived from the same Build call.
type overlay struct {
	overrides []override // sorted by id
	aggregate Flags
}

// RecordPolicy is an immutable cache-behavior resolution for one record.
// The zero value behaves like Default with no overrides. Copying is cheap;
// copies share the overlay.
type RecordPolicy struct {
	base Flags
	ov   *overlay
}

// Base returns the record-wide policy.
func (p RecordPolicy) Base() Flags { return p.base }

// Aggregate returns the base policy OR-combined with every override,
// excluding SkipData (an override skipping one payload's bytes does not mean
// the record skips data).
func (p RecordPolicy) Aggregate() Flags {
	if p.ov == nil {
		return p.base
	}
	return p.ov.aggregate
}

// PayloadPolicy returns the policy for one payload: its override if one was
// added, the base policy otherwise.
func (p RecordPolicy) PayloadPolicy(id PayloadID) Flags {
	if p.ov == nil {
		return p.base
	}
	i, found := slices.BinarySearchFunc(p.ov.overrides, id, func(o override, target PayloadID) int {
		switch {
		case o.id < target:
			return -1
		case o.id > target:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return p.base
	}
	return p.ov.overrides[i].flags
}

// overrideInlineCap sizes the builder's first allocation; overrides are rare
// and sparse, so most builders never grow past it.
const overrideInlineCap = 4

// Builder accumulates per-payload overrides and finalizes them into a
// RecordPolicy. The zero-override path allocates nothing.
//
// A Builder is not safe for concurrent use; the RecordPolicy it builds is.
type Builder struct {
	base      Flags
	overrides []override
}

// NewBuilder starts a builder with the given record-wide policy.
func NewBuilder(base Flags) *Builder {
	return &Builder{base: base}
}

// Add records an override for one payload. Append-only; ordering is
// resolved in Build.
func (b *Builder) Add(id PayloadID, flags Flags) *Builder {
	if b.overrides == nil {
		b.overrides = make([]override, 0, overrideInlineCap)
	}
	b.overrides = append(b.overrides, override{id: id, flags: flags})
	return b
}

// Build sorts the overrides once and computes the aggregate. The returned
// policy and its overlay are immutable; the builder may be reused only after
// abandoning the result.
func (b *Builder) Build() RecordPolicy {
	if len(b.overrides) == 0 {
		return RecordPolicy{base: b.base}
	}

	sorted := slices.Clone(b.overrides)
	slices.SortFunc(sorted, func(x, y override) int {
		switch {
		case x.id < y.id:
			return -1
		case x.id > y.id:
			return 1
		default:
			return 0
		}
	})

	aggregate := b.base
	for _, o := range sorted {
		aggregate |= o.flags &^ SkipData
	}

	return RecordPolicy{
		base: b.base,
		ov: &overlay{
			overrides: sorted,
			aggregate: aggregate,
		},
	}
}
