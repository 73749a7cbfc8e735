package observer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsculpt.ai/internal/observerproto"
	"voxelsculpt.ai/internal/sim/terrain"
)

var ErrUnknownHandle = errors.New("unknown render handle")

// Handle is the RenderHandle the Hub gives out. Handles are never reused.
type Handle uint64

type chunkState struct {
	grid  [3]int
	spawn []byte
	mesh  []byte // nil until the first SetMesh
}

type subscriber struct {
	out chan []byte
}

// Hub is a terrain.RenderSink that keeps the latest placeholder and mesh of
// every chunk and fans them out to observer connections. Calls from the
// editor never block: a subscriber that cannot keep up is disconnected and
// must reconnect to get a fresh replay.
type Hub struct {
	log   *log.Logger
	queue int

	mu         sync.Mutex
	nextHandle uint64
	chunks     map[Handle]*chunkState
	byGrid     map[[3]int]Handle
	subs       map[uint64]*subscriber
	nextSub    uint64

	evictTotal atomic.Uint64
}

func NewHub(queue int, logger *log.Logger) *Hub {
	if queue <= 0 {
		queue = 256
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		log:    logger,
		queue:  queue,
		chunks: map[Handle]*chunkState{},
		byGrid: map[[3]int]Handle{},
		subs:   map[uint64]*subscriber{},
	}
}

var _ terrain.RenderSink = (*Hub)(nil)

func (h *Hub) Spawn(grid terrain.Vec3i, origin mgl32.Vec3) (terrain.RenderHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextHandle++
	id := Handle(h.nextHandle)
	g := grid.ToArray()
	b, err := json.Marshal(observerproto.ChunkSpawnMsg{
		Type:            observerproto.TypeSpawn,
		ProtocolVersion: observerproto.Version,
		Handle:          uint64(id),
		Grid:            g,
		Origin:          origin,
	})
	if err != nil {
		return nil, err
	}
	if old, ok := h.byGrid[g]; ok {
		delete(h.chunks, old)
	}
	h.chunks[id] = &chunkState{grid: g, spawn: b}
	h.byGrid[g] = id
	h.broadcastLocked(b)
	return id, nil
}

func (h *Hub) SetMesh(rh terrain.RenderHandle, m *terrain.Mesh) error {
	id, ok := rh.(Handle)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownHandle, rh)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.chunks[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, id)
	}
	b, err := json.Marshal(meshMsg(id, st.grid, m))
	if err != nil {
		return err
	}
	st.mesh = b
	h.broadcastLocked(b)
	return nil
}

func meshMsg(id Handle, grid [3]int, m *terrain.Mesh) observerproto.ChunkMeshMsg {
	msg := observerproto.ChunkMeshMsg{
		Type:            observerproto.TypeMesh,
		ProtocolVersion: observerproto.Version,
		Handle:          uint64(id),
		Grid:            grid,
		Vertices:        []float32{},
		Normals:         []float32{},
		Indices:         []uint32{},
	}
	if m == nil {
		return msg
	}
	msg.Vertices = flatten(m.Vertices)
	msg.Normals = flatten(m.Normals)
	if m.Indices != nil {
		msg.Indices = m.Indices
	}
	return msg
}

func flatten(vs []mgl32.Vec3) []float32 {
	out := make([]float32, 0, 3*len(vs))
	for _, v := range vs {
		out = append(out, v[0], v[1], v[2])
	}
	return out
}

func (h *Hub) broadcastLocked(b []byte) {
	for id, s := range h.subs {
		select {
		case s.out <- b:
		default:
			close(s.out)
			delete(h.subs, id)
			h.evictTotal.Add(1)
			h.log.Printf("observer %d evicted: queue full", id)
		}
	}
}

// Subscribe registers a new observer. Unless skipReplay is set, the returned
// channel already holds the current state of every chunk in creation order.
// The channel is closed on eviction or Unsubscribe.
func (h *Hub) Subscribe(skipReplay bool) (uint64, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := 0
	if !skipReplay {
		replay = 2 * len(h.chunks)
	}
	s := &subscriber{out: make(chan []byte, h.queue+replay)}
	if !skipReplay {
		ids := make([]Handle, 0, len(h.chunks))
		for id := range h.chunks {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			st := h.chunks[id]
			s.out <- st.spawn
			if st.mesh != nil {
				s.out <- st.mesh
			}
		}
	}
	h.nextSub++
	h.subs[h.nextSub] = s
	return h.nextSub, s.out
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		close(s.out)
		delete(h.subs, id)
	}
}

// Chunks is the number of live chunk handles.
func (h *Hub) Chunks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chunks)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) EvictTotal() uint64 { return h.evictTotal.Load() }
