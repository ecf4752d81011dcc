package classifier

import "github.com/zoobzio/capitan"

// Signals emitted by the classifier.
const (
	ClassificationCompleted = capitan.Signal("classifier.completed")
	ClassificationDegraded  = capitan.Signal("classifier.degraded")
)

// Event field keys.
var (
	IntentKey     = capitan.NewStringKey("classifier.intent")
	SpecialistKey = capitan.NewStringKey("classifier.specialist")
	ConfidenceKey = capitan.NewFloat64Key("classifier.confidence")
	ReasonKey     = capitan.NewStringKey("classifier.reason")
)
