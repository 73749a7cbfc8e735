package protocol

import "voxelsculpt.ai/internal/sim/sdf"

// Client -> Server. First message on the edit WS connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Capabilities    struct {
		MaxQueue int `json:"max_queue"`
	} `json:"capabilities"`
}

// Server -> Client. Reply to HELLO.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	GridSize  [3]int `json:"grid_size"`
	ChunkSize [3]int `json:"chunk_size"`
}

// Client -> Server. One terrain edit.
type EditMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id,omitempty"`
	Shape           sdf.Spec `json:"shape"`
}

// Server -> Client. Outcome of an EDIT.
type EditResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	EditID          string `json:"edit_id,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Error           string `json:"error,omitempty"`

	RangeMin [3]int   `json:"range_min"`
	RangeMax [3]int   `json:"range_max"`
	Touched  [][3]int `json:"touched,omitempty"`
	Created  [][3]int `json:"created,omitempty"`
	Voxels   int      `json:"voxels"`
}
