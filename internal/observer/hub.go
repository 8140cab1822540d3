package observer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

const (
	MsgHello    = "hello"
	MsgAdded    = "chunk_added"
	MsgResident = "chunk_resident"
	MsgRemoved  = "chunk_removed"
)

// Message is the envelope pushed to observers. Hello carries the client id
// and a snapshot of every resident chunk.
type Message struct {
	Type     string     `json:"type"`
	ClientID string     `json:"clientId,omitempty"`
	Tick     uint64     `json:"tick,omitempty"`
	Chunk    *ChunkMsg  `json:"chunk,omitempty"`
	Chunks   []ChunkMsg `json:"chunks,omitempty"`
}

type ChunkMsg struct {
	X       int         `json:"x"`
	Z       int         `json:"z"`
	LOD     string      `json:"lod,omitempty"`
	Islands []IslandMsg `json:"islands,omitempty"`
}

type IslandMsg struct {
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
	Biome  string  `json:"biome"`
}

// Snapshotter enumerates resident chunks for newly connected observers.
type Snapshotter interface {
	ResidentIslands() map[grid.ChunkCoord][]terrain.Island
}

type client struct {
	id  string
	out chan []byte
}

// Hub fans chunk notifications out to websocket observers, such as a
// minimap adding and removing island markers. Slow observers lose messages
// rather than stall the manager.
type Hub struct {
	snap   Snapshotter
	buffer int
	logger *slog.Logger

	upgrader websocket.Upgrader
	dropped  atomic.Uint64

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(cfg config.ObserverConfig, snap Snapshotter, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		snap:   snap,
		buffer: buffer,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts messages discarded because an observer's buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// HandleChunkEvent implements world.Listener.
func (h *Hub) HandleChunkEvent(e world.Event) {
	msg := Message{
		Type:  string(e.Kind),
		Tick:  e.Tick,
		Chunk: chunkMsg(e.Coord, e.LOD.String(), islandsOf(e)),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode observer message", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.out <- b:
		default:
			h.dropped.Add(1)
			h.logger.Debug("observer buffer full, dropping message", "client", c.id, "type", msg.Type)
		}
	}
}

func islandsOf(e world.Event) []terrain.Island {
	if e.Kind == world.EventChunkRemoved {
		return nil
	}
	return e.Islands
}

func chunkMsg(coord grid.ChunkCoord, lod string, islands []terrain.Island) *ChunkMsg {
	m := &ChunkMsg{X: coord.X, Z: coord.Z, LOD: lod}
	for _, is := range islands {
		m.Islands = append(m.Islands, IslandMsg{X: is.CenterX, Z: is.CenterZ, Radius: is.Radius, Biome: is.Biome.String()})
	}
	return m
}

// Handler upgrades the connection and streams notifications until the
// observer disconnects.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, err := h.register()
		if err != nil {
			h.logger.Error("observer snapshot", "error", err)
			return
		}
		defer h.unregister(c.id)
		h.logger.Info("observer connected", "client", c.id, "remote", r.RemoteAddr)

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Observers only listen; reads detect the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(done)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		h.logger.Info("observer disconnected", "client", c.id)
	}
}

// register queues the hello snapshot ahead of any later event.
func (h *Hub) register() (*client, error) {
	c := &client{id: uuid.NewString(), out: make(chan []byte, h.buffer+1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	hello := Message{Type: MsgHello, ClientID: c.id}
	if h.snap != nil {
		resident := h.snap.ResidentIslands()
		coords := make([]grid.ChunkCoord, 0, len(resident))
		for coord := range resident {
			coords = append(coords, coord)
		}
		sort.Slice(coords, func(i, j int) bool {
			if coords[i].X == coords[j].X {
				return coords[i].Z < coords[j].Z
			}
			return coords[i].X < coords[j].X
		})
		for _, coord := range coords {
			hello.Chunks = append(hello.Chunks, *chunkMsg(coord, "", resident[coord]))
		}
	}
	b, err := json.Marshal(hello)
	if err != nil {
		return nil, err
	}
	c.out <- b
	h.clients[c.id] = c
	return c, nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}
