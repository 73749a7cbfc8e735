package observerproto

import (
	"voxelsculpt.ai/internal/persistence/indexdb"
	"voxelsculpt.ai/internal/sim/editor"
)

// Version is the observer protocol version (separate from the edit WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeSpawn     = "CHUNK_SPAWN"
	TypeMesh      = "CHUNK_MESH"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Skip the replay of chunks that already exist.
	SkipReplay bool `json:"skip_replay,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	WorldParams     WorldParams    `json:"world_params"`
	Overlay         editor.Overlay `json:"overlay"`
	Chunks          int            `json:"chunks"`
	Index           *indexdb.Stats `json:"index,omitempty"`
}

type WorldParams struct {
	GridSize  [3]int `json:"grid_size"`
	ChunkSize [3]int `json:"chunk_size"`
}

// Server -> Client. A chunk placeholder was created (empty mesh, world
// transform only). Re-creating a cell yields a new handle.
type ChunkSpawnMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Handle          uint64     `json:"handle"`
	Grid            [3]int     `json:"grid"`
	Origin          [3]float32 `json:"origin"`
}

// Server -> Client. Full replacement mesh for a chunk. Positions are local to
// the chunk origin; vertices and normals are packed xyz triples.
type ChunkMeshMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Handle          uint64    `json:"handle"`
	Grid            [3]int    `json:"grid"`
	Vertices        []float32 `json:"vertices"`
	Normals         []float32 `json:"normals"`
	Indices         []uint32  `json:"indices"`
}
