package forest

import "errors"

// Sentinel kinds for ensemble errors.
var (
	ErrEmptyInput = errors.New("no samples to fit")
	ErrShape      = errors.New("inconsistent sample shape")
	ErrCorrupt    = errors.New("malformed tree")
)
