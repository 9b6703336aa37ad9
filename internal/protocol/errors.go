package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Coordinator state.
	ErrNotBooted = "E_NOT_BOOTED"

	// Persistence, each distinguishable so a caller can react precisely.
	ErrStateRead    = "E_STATE_READ"
	ErrStateParse   = "E_STATE_PARSE"
	ErrStateVersion = "E_STATE_VERSION"

	ErrSpawnFailed = "E_SPAWN_FAILED"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrNotBooted:       {},
	ErrStateRead:       {},
	ErrStateParse:      {},
	ErrStateVersion:    {},
	ErrSpawnFailed:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
