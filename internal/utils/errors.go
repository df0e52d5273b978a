package utils

import "fmt"

// InsufficientHistoryError represents a request that cannot be served because
// the available price history is shorter than the minimum required.
type InsufficientHistoryError struct {
	Required int
	Got      int
}

// Error returns the error message string.
func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need at least %d points, got %d", e.Required, e.Got)
}

// NewInsufficientHistoryError creates a new InsufficientHistoryError.
//
// Parameters:
//   - required: The minimum number of points needed.
//   - got: The number of points actually available.
//
// Returns:
//   - An error interface wrapping the InsufficientHistoryError.
func NewInsufficientHistoryError(required, got int) error {
	return &InsufficientHistoryError{
		Required: required,
		Got:      got,
	}
}
