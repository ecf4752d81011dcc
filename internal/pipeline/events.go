package pipeline

import "github.com/zoobzio/capitan"

// Transition is emitted on every state change of a run.
const Transition = capitan.Signal("pipeline.transition")

// Event field keys.
var (
	RequestIDKey = capitan.NewStringKey("pipeline.request_id")
	FromKey      = capitan.NewStringKey("pipeline.from")
	ToKey        = capitan.NewStringKey("pipeline.to")
)
