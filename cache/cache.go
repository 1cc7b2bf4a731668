package cache

import (
	"sync"
	"sync/atomic"

	"github.com/j-helland/proxy-lab/internal/util"
)

// InsertResult reports the outcome of an Insert.
type InsertResult int

const (
	// Inserted means the entry was stored (possibly after evictions).
	Inserted InsertResult = iota
	// AlreadyPresent means the key is already cached; the stored entry and
	// its recency position are untouched (first writer wins).
	AlreadyPresent
	// TooLarge means the value exceeds MaxSize and can never be cached.
	TooLarge
	// IndexFull means the hash index is at its maximum capacity; cache state
	// is left unmodified. The caller may retry after deletions. Insert on
	// a closed cache also reports IndexFull.
	IndexFull
)

// String returns a stable label for logs and tests.
func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already-present"
	case TooLarge:
		return "too-large"
	case IndexFull:
		return "index-full"
	default:
		return "unknown"
	}
}

// Cache is a byte-budgeted LRU cache over opaque byte-string keys and
// values. All methods are safe for concurrent use.
//
// Operations linearize in the order they are admitted by the gate.
// The recency list has its own small mutex because concurrent readers
// promote entries while holding only read admission. Lock order is
// always gate before listMu, never reversed.
type Cache struct {
	opt  Options
	gate gate

	// idx and bytesUsed are written only under write admission.
	// lru is read under read admission and written under listMu.
	idx    *index
	listMu sync.Mutex
	lru    recencyList

	bytesUsed atomic.Int64
	handles   atomic.Int64 // outstanding ReadHandles, for Close misuse checks
	closed    atomic.Bool

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// New constructs a Cache with the provided Options.
// Panics if MaxSize <= 0.
func New(opt Options) *Cache {
	if opt.MaxSize <= 0 {
		panic("cache: MaxSize must be > 0")
	}
	if opt.MinIndexSize < 1 {
		opt.MinIndexSize = 1
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	return &Cache{
		opt: opt,
		idx: newIndex(opt.MinIndexSize),
	}
}

// Find looks up key and, on a hit, promotes the entry to MRU and returns
// a ReadHandle pinning its value. The caller must Release the handle.
func (c *Cache) Find(key []byte) (*ReadHandle, bool) {
	if c.closed.Load() {
		return nil, false
	}
	c.gate.acquireRead()
	defer c.gate.releaseRead()

	e := c.idx.find(key, hashKey(key))
	if e == nil {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return nil, false
	}

	c.listMu.Lock()
	c.lru.moveToFront(e.node)
	c.listMu.Unlock()

	// The pin must be taken while read admission still holds, so that
	// no writer can unlink-and-reclaim the entry in between.
	e.readers.Add(1)
	c.handles.Add(1)
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return &ReadHandle{c: c, e: e}, true
}

// Insert stores a copy of key and value. Duplicate keys are a no-op
// (AlreadyPresent); values larger than MaxSize are refused (TooLarge).
// LRU entries are evicted until the value fits.
func (c *Cache) Insert(key, value []byte) InsertResult {
	if int64(len(value)) > c.opt.MaxSize {
		return TooLarge
	}
	if c.closed.Load() {
		return IndexFull
	}

	c.gate.acquireWrite()
	defer c.gate.releaseWrite()

	hash := hashKey(key)
	if c.idx.find(key, hash) != nil {
		return AlreadyPresent
	}

	// Grow the index up front so a full table fails before any state
	// changes.
	if err := c.idx.ensureCapacity(); err != nil {
		return IndexFull
	}

	e := newEntry(key, value)

	// Charge the new bytes first, then evict from the tail until the
	// budget holds again. The new entry is not yet linked into the
	// recency list, so it can never evict itself.
	c.bytesUsed.Add(e.size())
	for c.bytesUsed.Load() > c.opt.MaxSize && c.lru.len() > 0 {
		victim := c.lru.back().ent
		c.removeEntryLocked(victim, EvictCapacity)
	}

	// ensureCapacity ran above and evictions only shrink the table.
	_ = c.idx.insert(e)
	c.listMu.Lock()
	e.node = c.lru.pushFront(e)
	c.listMu.Unlock()

	c.opt.Metrics.Size(c.idx.length, c.bytesUsed.Load())
	return Inserted
}

// Delete removes key from the cache. Returns false if the key is absent.
// If read handles for the entry are outstanding, its storage survives
// until the last one is released; the key is unreachable immediately.
func (c *Cache) Delete(key []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.gate.acquireWrite()
	defer c.gate.releaseWrite()

	e := c.idx.find(key, hashKey(key))
	if e == nil {
		return false
	}
	c.removeEntryLocked(e, EvictDelete)
	c.opt.Metrics.Size(c.idx.length, c.bytesUsed.Load())
	return true
}

// removeEntryLocked unlinks e from the index and the recency list,
// returns its bytes to the budget, and reclaims storage unless readers
// are still pinning it. Caller holds write admission.
func (c *Cache) removeEntryLocked(e *entry, reason EvictReason) {
	c.idx.delete(e.key, e.hash)
	c.listMu.Lock()
	c.lru.unlink(e.node)
	c.listMu.Unlock()
	c.bytesUsed.Add(-e.size())

	c.evicts.Add(1)
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(e.key, e.value, reason)
	}

	e.unlinked.Store(true)
	e.maybeDestroy()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.gate.acquireRead()
	defer c.gate.releaseRead()
	return c.idx.length
}

// BytesUsed returns the total value bytes currently charged against the
// budget.
func (c *Cache) BytesUsed() int64 { return c.bytesUsed.Load() }

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	BytesUsed int64  `json:"bytes_used"`
	MaxSize   int64  `json:"max_size"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Snapshot returns current counter values. Counters are read atomically
// but not as one consistent cut; this is for observability, not logic.
func (c *Cache) Snapshot() Stats {
	c.gate.acquireRead()
	defer c.gate.releaseRead()
	return Stats{
		Entries:   c.idx.length,
		BytesUsed: c.bytesUsed.Load(),
		MaxSize:   c.opt.MaxSize,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
	}
}

// Close destroys all entries and marks the cache closed. Calling Close
// while any ReadHandle is outstanding is a programmer error and panics.
func (c *Cache) Close() error {
	if c.handles.Load() != 0 {
		panic("cache: Close with outstanding ReadHandles")
	}
	if c.closed.Swap(true) {
		return nil
	}
	c.gate.acquireWrite()
	defer c.gate.releaseWrite()

	for c.lru.len() > 0 {
		e := c.lru.back().ent
		c.idx.delete(e.key, e.hash)
		c.listMu.Lock()
		c.lru.unlink(e.node)
		c.listMu.Unlock()
		e.unlinked.Store(true)
		e.maybeDestroy()
	}
	c.bytesUsed.Store(0)
	c.idx = newIndex(c.opt.MinIndexSize)
	return nil
}
