package mesher

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsculpt.ai/internal/sim/sdf"
	"voxelsculpt.ai/internal/sim/terrain"
)

type captureSink struct {
	meshes map[terrain.Vec3i]*terrain.Mesh
}

func (s *captureSink) Spawn(grid terrain.Vec3i, _ mgl32.Vec3) (terrain.RenderHandle, error) {
	return grid, nil
}

func (s *captureSink) SetMesh(h terrain.RenderHandle, m *terrain.Mesh) error {
	if s.meshes == nil {
		s.meshes = map[terrain.Vec3i]*terrain.Mesh{}
	}
	s.meshes[h.(terrain.Vec3i)] = m
	return nil
}

func sculpt(t *testing.T, edit terrain.SDF) (*terrain.Chunk, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	m, err := terrain.New(terrain.Config{
		GridSize:  terrain.Vec3i{X: 1, Y: 1, Z: 1},
		ChunkSize: terrain.Vec3i{X: 12, Y: 12, Z: 12},
	}, SurfaceNets{}, sink)
	if err != nil {
		t.Fatalf("terrain.New: %v", err)
	}
	if _, err := m.UpdateChunks(edit); err != nil {
		t.Fatalf("UpdateChunks: %v", err)
	}
	rec, _ := m.Record(terrain.Vec3i{})
	return rec.Chunk, sink
}

func TestSurfaceNets_Sphere(t *testing.T) {
	c, sink := sculpt(t, sdf.Sphere{Center: mgl32.Vec3{6, 6, 6}, Radius: 3.5})
	mesh := sink.meshes[terrain.Vec3i{}]
	if mesh == nil {
		t.Fatalf("no mesh delivered to sink")
	}
	if len(mesh.Vertices) == 0 || mesh.Triangles() == 0 {
		t.Fatalf("empty mesh: verts=%d tris=%d", len(mesh.Vertices), mesh.Triangles())
	}
	if len(mesh.Normals) != len(mesh.Vertices) {
		t.Fatalf("normals=%d verts=%d", len(mesh.Normals), len(mesh.Vertices))
	}
	for _, idx := range mesh.Indices {
		if int(idx) >= len(mesh.Vertices) {
			t.Fatalf("index %d out of range (%d verts)", idx, len(mesh.Vertices))
		}
	}
	center := mgl32.Vec3{6, 6, 6}
	for i, v := range mesh.Vertices {
		r := v.Sub(center).Len()
		if r < 2.5 || r > 4.5 {
			t.Fatalf("vertex %d at distance %v from center", i, r)
		}
		// Normals point away from the solid.
		if mesh.Normals[i].Dot(v.Sub(center)) <= 0 {
			t.Fatalf("normal %d points inwards", i)
		}
	}

	before := c.Digest()
	if _, err := (SurfaceNets{}).CreateChunkMesh(c); err != nil {
		t.Fatalf("CreateChunkMesh: %v", err)
	}
	if c.Digest() != before {
		t.Fatalf("mesher mutated the chunk")
	}
}

func TestSurfaceNets_UniformChunkIsEmpty(t *testing.T) {
	c, _ := sculpt(t, sdf.Plane{Height: -5, Min: mgl32.Vec3{}, Max: mgl32.Vec3{12, 12, 12}})
	mesh, err := SurfaceNets{}.CreateChunkMesh(c)
	if err != nil {
		t.Fatalf("CreateChunkMesh: %v", err)
	}
	if len(mesh.Vertices) != 0 || len(mesh.Indices) != 0 {
		t.Fatalf("uniform chunk produced geometry: verts=%d idx=%d", len(mesh.Vertices), len(mesh.Indices))
	}
}

func TestSurfaceNets_PlaneIsFlat(t *testing.T) {
	c, _ := sculpt(t, sdf.Plane{Height: 4.5, Min: mgl32.Vec3{}, Max: mgl32.Vec3{12, 12, 12}})
	mesh, err := SurfaceNets{}.CreateChunkMesh(c)
	if err != nil {
		t.Fatalf("CreateChunkMesh: %v", err)
	}
	if mesh.Triangles() == 0 {
		t.Fatalf("plane produced no triangles")
	}
	for i, v := range mesh.Vertices {
		if v.Y() != 4.5 {
			t.Fatalf("vertex %d y=%v want 4.5", i, v.Y())
		}
		if mesh.Normals[i] != (mgl32.Vec3{0, 1, 0}) {
			t.Fatalf("normal %d=%v want up", i, mesh.Normals[i])
		}
	}
}

func TestNull(t *testing.T) {
	c, _ := sculpt(t, sdf.Sphere{Center: mgl32.Vec3{6, 6, 6}, Radius: 3})
	mesh, err := Null{}.CreateChunkMesh(c)
	if err != nil || mesh == nil || len(mesh.Vertices) != 0 {
		t.Fatalf("Null mesh=%+v err=%v", mesh, err)
	}
}
