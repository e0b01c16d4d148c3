package dataset

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrMissingColumn = errors.New("required column missing")
	ErrEmptyFile     = errors.New("file has no header")
)
