package cache

import (
	"bytes"
	"errors"
)

// Robin-Hood open-addressed index from key bytes to entries.
//
// Each occupied bin stores the entry, its full 64-bit hash, and its PSL
// (probe sequence length): the distance from the bin's ideal position
// hash mod capacity. On collision the incoming entry displaces any
// incumbent with a strictly smaller PSL ("rob the rich"), which keeps
// probe sequences short and lets lookups stop early. Deletion shifts
// subsequent bins backward instead of leaving tombstones.
//
// Inspired by the rmind/rhashmap Robin Hood hashmap library:
// https://github.com/rmind/rhashmap
//
// Not safe for concurrent use; the Cache serializes access through its
// admission gate.

const (
	// indexMaxCapacity caps table growth; inserts that would require
	// growing past it fail with errIndexFull.
	indexMaxCapacity = 1 << 32
	// indexGrowthStep bounds how much a single upsize may add once the
	// table is large; small tables double instead.
	indexGrowthStep = 1 << 20
)

var errIndexFull = errors.New("cache: index at maximum capacity")

type bin struct {
	ent  *entry // nil means the bin is empty
	hash uint64
	psl  uint64
}

type index struct {
	bins    []bin
	length  int
	minSize int
}

// newIndex allocates a table with capacity max(minSize, 1).
func newIndex(minSize int) *index {
	if minSize < 1 {
		minSize = 1
	}
	ix := &index{minSize: minSize}
	ix.bins = make([]bin, minSize)
	return ix
}

// hashKey is the djb2 hash over the key bytes: h = h*33 + byte, seeded
// with 5381. Non-cryptographic; collision resistance is not required here.
// http://www.cse.yorku.ca/~oz/hash.html
func hashKey(key []byte) uint64 {
	h := uint64(5381)
	for _, b := range key {
		h = h*33 + uint64(b)
	}
	return h
}

// upsizeThreshold is approximately 85% of x, computed as (x*870)>>10.
func upsizeThreshold(x int) int { return (x * 870) >> 10 }

// downsizeThreshold is approximately 40% of x, computed as (x*409)>>10.
func downsizeThreshold(x int) int { return (x * 409) >> 10 }

// find returns the entry stored under key, or nil.
//
// Probing stops at an empty bin or as soon as the probe distance exceeds
// the stored PSL of the current bin: by the Robin-Hood invariant no bin
// holding the key can occur later in the sequence.
func (ix *index) find(key []byte, hash uint64) *entry {
	capacity := uint64(len(ix.bins))
	for n, i := uint64(0), hash%capacity; ; n, i = n+1, (i+1)%capacity {
		b := &ix.bins[i]
		if b.ent != nil && b.hash == hash && bytes.Equal(b.ent.key, key) {
			return b.ent
		}
		if b.ent == nil || n > b.psl {
			return nil
		}
	}
}

// insert places e into the table using Robin-Hood displacement, growing
// the table first if the insert would push the load factor past ~85%.
// Inserting a key that is already present replaces the stored entry.
// The bin index is recorded into each entry it places or displaces.
func (ix *index) insert(e *entry) error {
	if err := ix.ensureCapacity(); err != nil {
		return err
	}
	ix.insertNoResize(e)
	return nil
}

// ensureCapacity grows the table now if the next insert would need to,
// so that callers can fail before mutating any other cache state.
func (ix *index) ensureCapacity() error {
	if ix.length+1 <= upsizeThreshold(len(ix.bins)) {
		return nil
	}
	grown := len(ix.bins) * 2
	if limit := len(ix.bins) + indexGrowthStep; grown > limit {
		grown = limit
	}
	return ix.resize(grown)
}

func (ix *index) insertNoResize(e *entry) {
	capacity := uint64(len(ix.bins))
	incoming := bin{ent: e, hash: e.hash, psl: 0}

	for i := incoming.hash % capacity; ; i = (i + 1) % capacity {
		b := &ix.bins[i]

		if b.ent != nil {
			// Duplicate key: replace the payload in place.
			if b.hash == incoming.hash && bytes.Equal(b.ent.key, incoming.ent.key) {
				b.ent = incoming.ent
				b.ent.slot = int(i)
				return
			}

			// Rob the rich: displace an incumbent with a smaller PSL
			// and keep probing with the displaced bin.
			if incoming.psl > b.psl {
				incoming, *b = *b, incoming
				b.ent.slot = int(i)
			}
			incoming.psl++
			continue
		}

		*b = incoming
		b.ent.slot = int(i)
		ix.length++
		return
	}
}

// delete removes key from the table and returns the entry that was stored,
// or nil if absent. The vacated slot is repaired by backward shifting:
// each following bin with psl > 0 moves back one slot with its psl
// decremented, until an empty bin or a bin already in its ideal position.
// Shrinks the table when occupancy drops below ~40% (but never below
// minSize).
func (ix *index) delete(key []byte, hash uint64) *entry {
	capacity := uint64(len(ix.bins))
	threshold := downsizeThreshold(len(ix.bins))

	i := hash % capacity
	for n := uint64(0); ; n, i = n+1, (i+1)%capacity {
		b := &ix.bins[i]
		if b.ent == nil || n > b.psl {
			return nil
		}
		if b.hash == hash && bytes.Equal(b.ent.key, key) {
			break
		}
	}

	removed := ix.bins[i].ent
	ix.length--

	// Backward shift to repair the probe sequence.
	hole := i
	for {
		b := &ix.bins[hole]
		b.ent = nil
		b.hash = 0
		b.psl = 0

		next := (hole + 1) % capacity
		nb := &ix.bins[next]
		if nb.ent == nil || nb.psl == 0 {
			break
		}

		nb.psl--
		*b = *nb
		b.ent.slot = int(hole)
		hole = next
	}

	if ix.length > ix.minSize && ix.length < threshold {
		shrunk := len(ix.bins) / 2
		if shrunk < ix.minSize {
			shrunk = ix.minSize
		}
		// Shrinking re-inserts into a smaller table and cannot hit the
		// capacity cap.
		_ = ix.resize(shrunk)
	}
	return removed
}

// resize rebuilds the table at the new capacity by re-inserting every
// occupied bin. PSLs are regenerated rather than copied since the modulus
// changes.
func (ix *index) resize(capacity int) error {
	if capacity > indexMaxCapacity {
		return errIndexFull
	}

	old := ix.bins
	ix.bins = make([]bin, capacity)
	ix.length = 0

	for i := range old {
		if old[i].ent == nil {
			continue
		}
		ix.insertNoResize(old[i].ent)
	}
	return nil
}
