package cache

import "testing"

func listKeys(l *recencyList) []string {
	var keys []string
	n := l.head
	for i := 0; i < l.len(); i++ {
		keys = append(keys, string(n.ent.key))
		n = n.next
	}
	return keys
}

func assertOrder(t *testing.T, l *recencyList, want ...string) {
	t.Helper()
	got := listKeys(l)
	if len(got) != len(want) {
		t.Fatalf("order: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v, want %v", got, want)
		}
	}
}

// Head insertion yields MRU-first order, and the tail is reachable in
// one hop from the head.
func TestRecencyList_PushFrontAndBack(t *testing.T) {
	t.Parallel()

	var l recencyList
	if l.back() != nil {
		t.Fatal("empty list must have no tail")
	}

	l.pushFront(newEntry([]byte("a"), nil))
	l.pushFront(newEntry([]byte("b"), nil))
	l.pushFront(newEntry([]byte("c"), nil))

	assertOrder(t, &l, "c", "b", "a")
	if got := string(l.back().ent.key); got != "a" {
		t.Fatalf("tail: got %q, want a", got)
	}
}

// Unlinking the head, the tail, and an interior node all restore a
// consistent circular list, down to the empty state.
func TestRecencyList_Unlink(t *testing.T) {
	t.Parallel()

	var l recencyList
	na := l.pushFront(newEntry([]byte("a"), nil))
	nb := l.pushFront(newEntry([]byte("b"), nil))
	nc := l.pushFront(newEntry([]byte("c"), nil))
	nd := l.pushFront(newEntry([]byte("d"), nil))

	l.unlink(nc) // interior
	assertOrder(t, &l, "d", "b", "a")

	l.unlink(nd) // head
	assertOrder(t, &l, "b", "a")

	l.unlink(na) // tail
	assertOrder(t, &l, "b")

	l.unlink(nb)
	if l.len() != 0 || l.head != nil {
		t.Fatalf("list not empty: len=%d head=%v", l.len(), l.head)
	}

	// The list must be usable again after emptying.
	l.pushFront(newEntry([]byte("e"), nil))
	assertOrder(t, &l, "e")
}

// moveToFront promotes any position to MRU and leaves the circle intact.
func TestRecencyList_MoveToFront(t *testing.T) {
	t.Parallel()

	var l recencyList
	na := l.pushFront(newEntry([]byte("a"), nil))
	l.pushFront(newEntry([]byte("b"), nil))
	nc := l.pushFront(newEntry([]byte("c"), nil))

	l.moveToFront(na) // tail to head
	assertOrder(t, &l, "a", "c", "b")

	l.moveToFront(nc) // interior to head
	assertOrder(t, &l, "c", "a", "b")

	l.moveToFront(nc) // already head, no-op
	assertOrder(t, &l, "c", "a", "b")

	if got := string(l.back().ent.key); got != "b" {
		t.Fatalf("tail after promotions: got %q, want b", got)
	}
}

// A single-element list promotes to itself without corruption.
func TestRecencyList_SingleElement(t *testing.T) {
	t.Parallel()

	var l recencyList
	n := l.pushFront(newEntry([]byte("a"), nil))
	l.moveToFront(n)
	assertOrder(t, &l, "a")
	if n.next != n || n.prev != n {
		t.Fatal("single node must link to itself")
	}
}
