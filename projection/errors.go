package projection

import "errors"

var (
	// ErrIncompatibleVersion is returned when the projection format version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible projection version")

	// ErrNotFound is returned when no projection exists for the log.
	ErrNotFound = errors.New("projection not found")

	// ErrConflict is returned by Save when another writer already committed
	// the same epoch.
	ErrConflict = errors.New("projection conflict")

	// ErrCorrupt is returned when a stored projection fails validation.
	ErrCorrupt = errors.New("projection corrupt")
)
