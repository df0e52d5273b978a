package forecast

import "fmt"

// TrainingError indicates the in-process numeric fit could not be completed,
// either because history is too short for the lookback window or because the
// fit diverged.
type TrainingError struct {
	Reason string
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed: %s", e.Reason)
}

// ExternalInferenceError indicates the remote inference call failed across
// all payload shapes tried, or no credential is configured.
type ExternalInferenceError struct {
	Reason string
	Err    error
}

func (e *ExternalInferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("external inference failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("external inference failed: %s", e.Reason)
}

func (e *ExternalInferenceError) Unwrap() error { return e.Err }
