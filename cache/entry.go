package cache

import "sync/atomic"

// entry is the owned record for one cached key/value pair. The key and
// value bytes are copied on insert, so callers may reuse their buffers
// immediately. slot and node are back-links into the hash index and the
// recency list. node lets the list unlink without scanning; slot is kept
// current on every placement and shift, but deletion from the index
// still locates the entry by probing for its key.
type entry struct {
	key   []byte
	value []byte
	hash  uint64

	slot int       // current bin index in the hash index
	node *listNode // position in the recency list

	// readers counts outstanding ReadHandles. unlinked is set once the
	// entry has been removed from both the index and the list; storage
	// is reclaimed only when both unlinked is set and readers is zero.
	// destroyed arbitrates so reclamation happens exactly once.
	readers   atomic.Int32
	unlinked  atomic.Bool
	destroyed atomic.Bool
}

func newEntry(key, value []byte) *entry {
	e := &entry{
		key:   make([]byte, len(key)),
		value: make([]byte, len(value)),
		hash:  hashKey(key),
	}
	copy(e.key, key)
	copy(e.value, value)
	return e
}

func (e *entry) size() int64 { return int64(len(e.value)) }

// maybeDestroy reclaims the entry's buffers if it is unlinked and no
// readers remain. Both the last releasing reader and the unlinking
// writer race to call this; the destroyed flag makes it single-shot.
func (e *entry) maybeDestroy() {
	if !e.unlinked.Load() || e.readers.Load() != 0 {
		return
	}
	if !e.destroyed.CompareAndSwap(false, true) {
		return
	}
	e.key = nil
	e.value = nil
	e.node = nil
}

// ReadHandle pins a cache entry's value bytes. The bytes returned by
// Value remain valid until Release is called, even if the entry is
// evicted or deleted in the meantime. Handles are not safe for
// concurrent use and must be released exactly once.
type ReadHandle struct {
	c        *Cache
	e        *entry
	released bool
}

// Value returns the cached value bytes. The slice is shared with the
// cache and must be treated as read-only. Calling Value after Release
// panics.
func (h *ReadHandle) Value() []byte {
	if h.released {
		panic("cache: ReadHandle.Value after Release")
	}
	return h.e.value
}

// Release unpins the entry. If the entry was unlinked while this handle
// was outstanding and this was the last reader, its storage is reclaimed
// now. Releasing twice panics.
func (h *ReadHandle) Release() {
	if h.released {
		panic("cache: ReadHandle released twice")
	}
	h.released = true
	h.c.handles.Add(-1)
	if h.e.readers.Add(-1) == 0 {
		h.e.maybeDestroy()
	}
}
