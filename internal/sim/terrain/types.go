package terrain

import "github.com/go-gl/mathgl/mgl32"

// Vec3i is an integer lattice coordinate. Depending on context it is a grid
// coordinate (chunks), a chunk-local voxel coordinate or a size.
type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Scale multiplies component-wise.
func (v Vec3i) Scale(o Vec3i) Vec3i { return Vec3i{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

// Volume is X*Y*Z.
func (v Vec3i) Volume() int { return v.X * v.Y * v.Z }

func (v Vec3i) Positive() bool { return v.X > 0 && v.Y > 0 && v.Z > 0 }

// Within reports whether v lies in [0,size) on every axis.
func (v Vec3i) Within(size Vec3i) bool {
	return v.X >= 0 && v.Y >= 0 && v.Z >= 0 && v.X < size.X && v.Y < size.Y && v.Z < size.Z
}

func (v Vec3i) Vec3() mgl32.Vec3 { return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)} }

// AABB is an axis-aligned box. Min and Max are inclusive for diagnostics;
// the update path treats ranges as half-open.
type AABB struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

func (b AABB) Size() mgl32.Vec3 { return b.Max.Sub(b.Min) }

// Intersects treats both boxes as closed.
func (b AABB) Intersects(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}
