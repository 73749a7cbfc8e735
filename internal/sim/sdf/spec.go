package sdf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsculpt.ai/internal/sim/terrain"
)

var ErrUnknownShape = errors.New("unknown shape")

const (
	KindSphere = "SPHERE"
	KindBox    = "BOX"
	KindPlane  = "PLANE"
)

// Spec is the wire/log form of an edit shape.
type Spec struct {
	Kind        string     `json:"kind"`
	Center      [3]float32 `json:"center,omitempty"`
	Radius      float32    `json:"radius,omitempty"`
	HalfExtents [3]float32 `json:"half_extents,omitempty"`
	Height      float32    `json:"height,omitempty"`
	Min         [3]float32 `json:"min,omitempty"`
	Max         [3]float32 `json:"max,omitempty"`
}

// Build turns a spec into an SDF, rejecting degenerate shapes.
func (s Spec) Build() (terrain.SDF, error) {
	switch strings.ToUpper(strings.TrimSpace(s.Kind)) {
	case KindSphere:
		if s.Radius <= 0 {
			return nil, fmt.Errorf("sphere: radius must be > 0, got %v", s.Radius)
		}
		return Sphere{Center: mgl32.Vec3(s.Center), Radius: s.Radius}, nil
	case KindBox:
		he := mgl32.Vec3(s.HalfExtents)
		if he[0] <= 0 || he[1] <= 0 || he[2] <= 0 {
			return nil, fmt.Errorf("box: half_extents must be > 0, got %v", s.HalfExtents)
		}
		return Box{Center: mgl32.Vec3(s.Center), HalfExtents: he}, nil
	case KindPlane:
		for i := 0; i < 3; i++ {
			if s.Max[i] <= s.Min[i] {
				return nil, fmt.Errorf("plane: empty region min=%v max=%v", s.Min, s.Max)
			}
		}
		return Plane{Height: s.Height, Min: mgl32.Vec3(s.Min), Max: mgl32.Vec3(s.Max)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, s.Kind)
	}
}
