package world

import (
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
)

// EventKind enumerates lifecycle notifications.
type EventKind string

const (
	EventChunkAdded    EventKind = "chunk_added"
	EventChunkResident EventKind = "chunk_resident"
	EventChunkRemoved  EventKind = "chunk_removed"
)

// Event is delivered to listeners after the tick that produced it has
// released the manager lock, so listeners may call back into the manager.
type Event struct {
	Kind    EventKind
	Coord   grid.ChunkCoord
	LOD     terrain.LOD
	Islands []terrain.Island
	Tick    uint64
	At      time.Time
}

// Listener receives chunk notifications.
type Listener interface {
	HandleChunkEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleChunkEvent(e Event) { f(e) }
