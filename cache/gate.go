package cache

import "sync"

// gate is the cache's admission control: readers may run concurrently
// with each other, writers run alone, and waiters are admitted in strict
// FIFO order so neither side starves.
//
// Admission rules:
//   - A read request is admitted immediately iff no writer is active and
//     nobody is queued; otherwise it parks at the tail of the queue.
//   - A write request is admitted immediately iff nothing is active and
//     nobody is queued; otherwise it parks.
//   - On each release, if the queue head is a writer it is admitted once
//     the reader count reaches zero; if the head is a reader, it and
//     every contiguous reader behind it are admitted together.
//
// A late-arriving reader never jumps ahead of a queued writer.
//
// Waiters park on a per-waiter channel that is closed on admission, so
// no condition variable broadcast is needed. State transitions happen
// under a single mutex.
type gate struct {
	mu      sync.Mutex
	readers int
	writing bool
	queue   []gateWaiter
}

type gateWaiter struct {
	reader bool
	ready  chan struct{}
}

func (g *gate) acquireRead() {
	g.mu.Lock()
	if len(g.queue) == 0 && !g.writing {
		g.readers++
		g.mu.Unlock()
		return
	}
	w := gateWaiter{reader: true, ready: make(chan struct{})}
	g.queue = append(g.queue, w)
	g.mu.Unlock()
	<-w.ready
}

func (g *gate) acquireWrite() {
	g.mu.Lock()
	if len(g.queue) == 0 && !g.writing && g.readers == 0 {
		g.writing = true
		g.mu.Unlock()
		return
	}
	w := gateWaiter{reader: false, ready: make(chan struct{})}
	g.queue = append(g.queue, w)
	g.mu.Unlock()
	<-w.ready
}

func (g *gate) releaseRead() {
	g.mu.Lock()
	g.readers--
	g.admitLocked()
	g.mu.Unlock()
}

func (g *gate) releaseWrite() {
	g.mu.Lock()
	g.writing = false
	g.admitLocked()
	g.mu.Unlock()
}

// admitLocked wakes the queue head if it can now run: one writer when
// the gate is idle, or the whole contiguous reader prefix.
func (g *gate) admitLocked() {
	if len(g.queue) == 0 {
		return
	}
	if !g.queue[0].reader {
		if g.readers == 0 && !g.writing {
			g.writing = true
			w := g.queue[0]
			g.queue = g.queue[1:]
			close(w.ready)
		}
		return
	}
	for len(g.queue) > 0 && g.queue[0].reader {
		g.readers++
		w := g.queue[0]
		g.queue = g.queue[1:]
		close(w.ready)
	}
}
