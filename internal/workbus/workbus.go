// Package workbus implements the server's priority work queue between the
// update and gaia threads (§4.i): brush edits always jump the queue,
// client-requested loads are served in ascending-priority order, and local
// background loads fill in last. Grounded on
// original_source/server/src/update_gaia.rs's LoadReason/ServerToGaia
// ordering, using container/heap the way the teacher's
// internal/pathfinding/navigator.go and the pack's
// katalvlaran-lvlath/dijkstra/dijkstra.go drive their open-set heaps.
package workbus

import (
	"container/heap"
	"sync"

	"terrainengine/internal/terrain"
)

// Reason identifies why a load was requested.
type Reason int

const (
	// ReasonLocal is a coarse background load with no specific requester.
	ReasonLocal Reason = iota
	// ReasonClient is a load requested by a connected client at a given
	// priority (smaller = more urgent).
	ReasonClient
)

// Kind distinguishes a load item from a brush item.
type Kind int

const (
	KindLoad Kind = iota
	KindBrush
)

// Item is one unit of gaia-thread work.
type Item struct {
	Kind     Kind
	Position terrain.BlockPosition
	LOD      terrain.LODIndex
	Reason   Reason
	ClientID uint64
	Priority uint16 // only meaningful when Reason == ReasonClient
	Brush    interface{}
	index    int    // heap bookkeeping
	seq      uint64 // insertion order, for FIFO tiebreaking among equal priority
}

func (i Item) key() (terrain.BlockPosition, terrain.LODIndex, Reason) {
	return i.Position, i.LOD, i.Reason
}

// less reports whether a sorts before b in priority order: Brush > ForClient
// (ascending priority) > Local, ties broken by FIFO insertion order (§4.i,
// §8.5). This is the total order original_source/server/src/update_gaia.rs
// expresses via LoadReason's Ord and ServerToGaia's variant ordering, taken
// directly from the textual description in spec §4.i rather than reproduced
// from Rust's derive-macro semantics (which have no direct Go analog).
func less(a, b *Item) bool {
	if a.Kind != b.Kind {
		return a.Kind == KindBrush
	}
	if a.Kind == KindBrush {
		return a.seq < b.seq
	}
	if a.Reason != b.Reason {
		return a.Reason == ReasonClient
	}
	if a.Reason == ReasonClient && a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	return less(h[i], h[j])
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *itemHeap) Push(x interface{}) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Bus is a priority queue with "second enqueue replaces first" dedup
// semantics on (position, lod, reason) for load items. Brush items are
// never deduplicated.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    itemHeap
	dedup   map[[3]interface{}]*Item
	closed  bool
	nextSeq uint64
}

func New() *Bus {
	b := &Bus{
		dedup: make(map[[3]interface{}]*Item),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func dedupKey(pos terrain.BlockPosition, lod terrain.LODIndex, reason Reason) [3]interface{} {
	return [3]interface{}{pos, lod, reason}
}

// Push enqueues item. A load item with the same (position, lod, reason) as
// one already queued replaces it in place rather than adding a duplicate.
func (b *Bus) Push(item Item) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item.seq = b.nextSeq
	b.nextSeq++

	if item.Kind == KindLoad {
		k := dedupKey(item.key())
		if existing, ok := b.dedup[k]; ok {
			idx := existing.index
			*existing = item
			existing.index = idx
			heap.Fix(&b.heap, idx)
			b.cond.Signal()
			return
		}
		stored := item
		heap.Push(&b.heap, &stored)
		b.dedup[k] = &stored
		b.cond.Signal()
		return
	}

	stored := item
	heap.Push(&b.heap, &stored)
	b.cond.Signal()
}

// Pop blocks until an item is available (or the bus is closed) and returns
// the highest-priority one.
func (b *Bus) Pop() (Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.heap.Len() == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.heap.Len() == 0 {
		return Item{}, false
	}
	item := heap.Pop(&b.heap).(*Item)
	if item.Kind == KindLoad {
		delete(b.dedup, dedupKey(item.key()))
	}
	return *item, true
}

// Len reports the number of queued items.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heap.Len()
}

// Close wakes any blocked Pop callers once no more work will arrive.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
