package artifact

import "errors"

// Sentinel kinds for artifact errors.
var (
	ErrNoDirectory = errors.New("models directory not configured")
	ErrBadVersion  = errors.New("invalid artifact version")
	ErrChecksum    = errors.New("payload checksum mismatch")
)
