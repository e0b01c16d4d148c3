package model

import "errors"

// Sentinel error kinds shared by the models and the pipeline.
var (
	// ErrDataInsufficient means training input lacks the values a model needs.
	// It is fatal to initialization.
	ErrDataInsufficient = errors.New("training data insufficient")
	// ErrModelLoad means an artifact exists but cannot be read or decoded.
	ErrModelLoad = errors.New("model load failed")
	// ErrIncompatibleVersion means an artifact's version tag is missing or
	// outside the compatible set.
	ErrIncompatibleVersion = errors.New("incompatible model version")
	// ErrValidation means a decoded model holds no fitted sub-model.
	ErrValidation = errors.New("model validation failed")
	// ErrNotReady means models were requested before initialization finished.
	ErrNotReady = errors.New("models not ready")
)
