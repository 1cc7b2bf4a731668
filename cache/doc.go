// Package cache implements the shared response cache used by the proxy:
// an in-memory, byte-budgeted LRU cache over opaque byte-string keys and
// values, safe for concurrent use by many connection-handling goroutines.
//
// Design
//
//   - Index: an open-addressed Robin-Hood hash table maps key bytes to
//     entries. Probing terminates early once the probe distance exceeds the
//     stored PSL of the current bin, deletion uses backward shifting, and
//     the table resizes to keep its load factor between roughly 40% and 85%.
//
//   - Recency: a circular doubly-linked list orders live entries from MRU
//     (head) to LRU (tail). All list operations are O(1); eviction always
//     takes the tail.
//
//   - Admission: a FIFO reader/writer gate admits any number of concurrent
//     readers, serializes writers against everything else, and never lets a
//     late arrival jump the queue. Find runs under read admission; Insert,
//     Delete and eviction run under write admission.
//
//   - Entry lifetime: Find returns a ReadHandle that pins the entry's value
//     bytes. Eviction may unlink a pinned entry (it becomes unreachable),
//     but its storage is only reclaimed when the last handle is released.
//     The pin is a per-entry atomic reader count, independent of the gate,
//     so a handle outlives the read admission that produced it.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; metrics/prom provides a Prometheus adapter.
//
// Basic usage
//
//	c := cache.New(cache.Options{MaxSize: 1 << 20})
//	c.Insert([]byte("http://example.com/"), responseBytes)
//	if h, ok := c.Find([]byte("http://example.com/")); ok {
//	    use(h.Value())
//	    h.Release()
//	}
//
// All methods on Cache are safe for concurrent use. Typical operation cost
// is O(1) expected: one probe sequence in the index plus a constant number
// of pointer fixes in the recency list.
package cache
