package gel

import "errors"

var (
	// ErrNotBooted is returned when the coordinator is used before it has
	// been constructed.
	ErrNotBooted = errors.New("gel: not booted")

	// ErrSpawnFailed wraps a failure inside the per-cell update fan-out.
	// A skipped cell would break the one-update-per-step invariant, so
	// the whole step is reported failed.
	ErrSpawnFailed = errors.New("gel: cell update failed")
)
