package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelsculpt.ai/internal/sim/terrain"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	GridSize  [3]int `yaml:"grid_size" json:"grid_size"`
	ChunkSize [3]int `yaml:"chunk_size" json:"chunk_size"`

	// Mesher selects the chunk mesh backend: "surface_nets" or "none".
	Mesher   string  `yaml:"mesher" json:"mesher"`
	IsoLevel float32 `yaml:"iso_level" json:"iso_level"`

	InboxSize     int `yaml:"inbox_size" json:"inbox_size"`
	ObserverQueue int `yaml:"observer_queue" json:"observer_queue"`

	// Per edit session token bucket. 0 disables limiting.
	EditRateHz float64 `yaml:"edit_rate_hz" json:"edit_rate_hz"`
	EditBurst  int     `yaml:"edit_burst" json:"edit_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		GridSize:        [3]int{8, 4, 8},
		ChunkSize:       [3]int{16, 16, 16},
		Mesher:          "surface_nets",
		InboxSize:       64,
		ObserverQueue:   256,
		EditRateHz:      20,
		EditBurst:       10,
	}
}

// Load reads a tuning.yaml; missing keys keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := t.Terrain().Validate(); err != nil {
		return err
	}
	switch t.Mesher {
	case "surface_nets", "none":
	default:
		return fmt.Errorf("unknown mesher %q", t.Mesher)
	}
	if t.InboxSize <= 0 {
		return fmt.Errorf("inbox_size must be > 0")
	}
	if t.ObserverQueue <= 0 {
		return fmt.Errorf("observer_queue must be > 0")
	}
	if t.EditRateHz < 0 {
		return fmt.Errorf("edit_rate_hz must be >= 0")
	}
	if t.EditRateHz > 0 && t.EditBurst <= 0 {
		return fmt.Errorf("edit_burst must be > 0 when edit_rate_hz is set")
	}
	return nil
}

func (t Tuning) Terrain() terrain.Config {
	return terrain.Config{
		GridSize:  terrain.Vec3i{X: t.GridSize[0], Y: t.GridSize[1], Z: t.GridSize[2]},
		ChunkSize: terrain.Vec3i{X: t.ChunkSize[0], Y: t.ChunkSize[1], Z: t.ChunkSize[2]},
	}
}
