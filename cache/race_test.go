package cache

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// A mixed workload of concurrent Find/Insert/Delete on random keys with
// a budget small enough to force constant evictions. Should pass under
// `-race` without detector reports.
func TestRace_MixedWorkload(t *testing.T) {
	c := New(Options{MaxSize: 4096})
	defer func() { _ = c.Close() }()

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 512
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			value := make([]byte, 64)
			for time.Now().Before(deadline) {
				k := []byte(fmt.Sprintf("k:%d", r.Intn(keyspace)))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Delete
					c.Delete(k)
				case 5, 6, 7, 8, 9, 10, 11, 12, 13, 14: // ~10% — Insert
					c.Insert(k, value)
				case 15: // ~1% — Snapshot
					c.Snapshot()
				default: // ~84% — Find and read the pinned bytes
					if h, ok := c.Find(k); ok {
						_ = h.Value()[0]
						h.Release()
					}
				}
			}
		}(w)
	}
	wg.Wait()

	checkCacheInvariants(t, c)
}

// Readers hold handles while writers evict the same entries. Every
// pinned read must see the bytes that were inserted, never reclaimed
// storage.
func TestRace_PinnedReadsSurviveEviction(t *testing.T) {
	c := New(Options{MaxSize: 256})
	defer func() { _ = c.Close() }()

	stop := make(chan struct{})
	var g errgroup.Group

	// Writer loop: keep inserting entries so the budget churns and the
	// readers' keys are evicted out from under them.
	g.Go(func() error {
		value := make([]byte, 64)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return nil
			default:
			}
			c.Insert([]byte(fmt.Sprintf("churn:%d", i)), value)
		}
	})

	for w := 0; w < 4; w++ {
		g.Go(func() error {
			deadline := time.Now().Add(time.Second)
			for i := 0; time.Now().Before(deadline); i++ {
				key := []byte(fmt.Sprintf("pin:%d", i))
				want := []byte(fmt.Sprintf("value:%d", i))
				c.Insert(key, want)

				h, ok := c.Find(key)
				if !ok {
					continue // already evicted, fine
				}
				// Give the writer a chance to evict while we hold the pin.
				runtime.Gosched()
				got := h.Value()
				for j := range want {
					if got[j] != want[j] {
						h.Release()
						return fmt.Errorf("pinned value corrupted at %d", j)
					}
				}
				h.Release()
			}
			return nil
		})
	}

	time.Sleep(1100 * time.Millisecond)
	close(stop)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
