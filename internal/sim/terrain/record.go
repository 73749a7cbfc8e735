package terrain

type ChunkStatus uint8

const (
	StatusIdle ChunkStatus = iota
	StatusActive
	// StatusUpdating is reserved for an asynchronous update backend; the
	// synchronous manager never assigns it.
	StatusUpdating
)

func (s ChunkStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusActive:
		return "ACTIVE"
	case StatusUpdating:
		return "UPDATING"
	default:
		return "UNKNOWN"
	}
}

// ChunkRecord is the manager's slot for one grid cell. Chunk and Handle stay
// nil until the first edit that covers the cell.
type ChunkRecord struct {
	Chunk  *Chunk
	Handle RenderHandle
	Status ChunkStatus
}

func (r ChunkRecord) Created() bool { return r.Chunk != nil }
