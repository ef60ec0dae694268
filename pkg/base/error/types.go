package error

import "errors"

// Catalog errors, caller-correctable
var (
	ErrorClassNotFound  = errors.New("storage class not found")
	ErrorDuplicateClass = errors.New("storage class already registered")
)

// Backend errors. ErrorBackendUnavailable is transient and retried with
// backoff, the rest are terminal for the current attempt.
var (
	ErrorBackendUnavailable     = errors.New("backend unavailable")
	ErrorInsufficientCapacity   = errors.New("insufficient capacity")
	ErrorIncompatibleAccessMode = errors.New("incompatible access mode")
	ErrorVolumeNotFound         = errors.New("volume not found")
	ErrorResizeNotSupported     = errors.New("resize not supported")
)

// Store errors
var (
	ErrorNotFound               = errors.New("not found")
	ErrorVersionConflict        = errors.New("version conflict")
	ErrorConcurrentBindConflict = errors.New("concurrent bind conflict")
	ErrorAlreadyExists          = errors.New("already exists")
)
