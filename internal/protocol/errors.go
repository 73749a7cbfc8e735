package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimited     = "E_RATE_LIMITED"

	// Editor state.
	ErrEditorBusy    = "E_EDITOR_BUSY"
	ErrEditorStopped = "E_EDITOR_STOPPED"

	// Edit layer.
	ErrBadShape = "E_BAD_SHAPE"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrRateLimited:     {},
	ErrEditorBusy:      {},
	ErrEditorStopped:   {},
	ErrBadShape:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
