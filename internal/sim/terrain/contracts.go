package terrain

import "github.com/go-gl/mathgl/mgl32"

// SDF is an edit: a density field plus the world-space box outside of which
// it has no effect. Value must be a pure function of its input.
type SDF interface {
	Minimum() mgl32.Vec3
	Maximum() mgl32.Vec3
	Value(p mgl32.Vec3) float32
}

// MeshGenerator extracts a surface from a chunk. Implementations only get the
// chunk's read API.
type MeshGenerator interface {
	CreateChunkMesh(c *Chunk) (*Mesh, error)
}

// RenderHandle is whatever the sink uses to identify a chunk's render object.
type RenderHandle any

// RenderSink receives a placeholder when a chunk is created and a replacement
// mesh every time the chunk is re-rendered.
type RenderSink interface {
	Spawn(grid Vec3i, origin mgl32.Vec3) (RenderHandle, error)
	SetMesh(h RenderHandle, m *Mesh) error
}

// Mesh is a chunk surface in chunk-local coordinates; the sink places it at
// the chunk origin.
type Mesh struct {
	Vertices []mgl32.Vec3
	Normals  []mgl32.Vec3
	Indices  []uint32
}

func (m *Mesh) Triangles() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}
