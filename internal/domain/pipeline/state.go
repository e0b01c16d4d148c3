package pipeline

import "github.com/okian/petroenergy/internal/domain/model"

// Kind names a model managed by the pipeline.
type Kind string

// Managed model kinds.
const (
	KindForecaster  Kind = "forecaster"
	KindMaintenance Kind = "maintenance"
)

// ModelName returns the artifact name of the kind. Metrics are labelled with
// it so load, train, state and prediction series join on one value.
func (k Kind) ModelName() string {
	switch k {
	case KindForecaster:
		return model.ForecasterName
	case KindMaintenance:
		return model.MaintenanceName
	default:
		return string(k)
	}
}

// State is the lifecycle position of one model kind.
type State int

// Lifecycle states. A kind starts Uninitialized and ends in exactly one of
// the other three after each initialization or retrain.
const (
	Uninitialized State = iota
	Loaded
	Trained
	Failed
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Trained:
		return "trained"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
