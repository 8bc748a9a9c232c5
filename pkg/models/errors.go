package models

import "errors"

var (
	ErrSourceUnavailable = errors.New("metric source unavailable")
	ErrRuleEvaluation    = errors.New("rule evaluation failed")
	ErrModelTraining     = errors.New("model training failed")
	ErrDelivery          = errors.New("alert delivery failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// ErrorKind maps an error onto the engine's error taxonomy name.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "SourceUnavailable"
	case errors.Is(err, ErrRuleEvaluation):
		return "RuleEvaluationError"
	case errors.Is(err, ErrModelTraining):
		return "ModelTrainingError"
	case errors.Is(err, ErrDelivery):
		return "DeliveryError"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "Internal"
	}
}
