package world

import (
	"sort"
	"sync"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// Priority orders load queue entries. Lower values load first.
type Priority uint8

const (
	PriorityVisible Priority = iota
	PriorityPreload
)

func (p Priority) String() string {
	if p == PriorityVisible {
		return "visible"
	}
	return "preload"
}

// LoadEntry is a pending chunk load. Distance is measured in chunks from the
// viewpoint.
type LoadEntry struct {
	Coord    grid.ChunkCoord
	Priority Priority
	Distance float64
	seq      uint64
}

// LoadQueue holds at most one entry per coordinate.
type LoadQueue struct {
	mu      sync.Mutex
	pending []LoadEntry
	members map[grid.ChunkCoord]int
	seq     uint64
}

func NewLoadQueue() *LoadQueue {
	return &LoadQueue{
		members: make(map[grid.ChunkCoord]int),
	}
}

// Push adds an entry, or refreshes priority and distance if the coordinate
// is already queued. It reports whether a new entry was added.
func (q *LoadQueue) Push(e LoadEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i, ok := q.members[e.Coord]; ok {
		q.pending[i].Priority = e.Priority
		q.pending[i].Distance = e.Distance
		return false
	}
	q.seq++
	e.seq = q.seq
	q.members[e.Coord] = len(q.pending)
	q.pending = append(q.pending, e)
	return true
}

func (q *LoadQueue) Contains(coord grid.ChunkCoord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.members[coord]
	return ok
}

// Retain drops every entry for which keep returns false and returns the
// dropped entries.
func (q *LoadQueue) Retain(keep func(LoadEntry) bool) []LoadEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var dropped []LoadEntry
	kept := q.pending[:0]
	for _, e := range q.pending {
		if keep(e) {
			kept = append(kept, e)
			continue
		}
		dropped = append(dropped, e)
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = LoadEntry{}
	}
	q.pending = kept
	q.reindex()
	return dropped
}

// Sort orders the queue by (priority, distance), keeping insertion order
// among equal entries.
func (q *LoadQueue) Sort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	sort.Slice(q.pending, func(i, j int) bool {
		a, b := q.pending[i], q.pending[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.seq < b.seq
	})
	q.reindex()
}

// Pop removes the head of the queue.
func (q *LoadQueue) Pop() (LoadEntry, bool) {
	batch := q.Drain(1)
	if len(batch) == 0 {
		return LoadEntry{}, false
	}
	return batch[0], true
}

// Drain removes up to max entries from the head. A non-positive max drains
// everything.
func (q *LoadQueue) Drain(max int) []LoadEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	if max <= 0 || max >= len(q.pending) {
		batch := append([]LoadEntry(nil), q.pending...)
		q.pending = nil
		q.members = make(map[grid.ChunkCoord]int)
		return batch
	}
	batch := append([]LoadEntry(nil), q.pending[:max]...)
	q.pending = append(q.pending[:0], q.pending[max:]...)
	q.reindex()
	return batch
}

// Entries returns a copy of the queue in its current order.
func (q *LoadQueue) Entries() []LoadEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]LoadEntry(nil), q.pending...)
}

func (q *LoadQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *LoadQueue) reindex() {
	for k := range q.members {
		delete(q.members, k)
	}
	for i, e := range q.pending {
		q.members[e.Coord] = i
	}
}
