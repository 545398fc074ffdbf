package bulk

import "fmt"

var (
	// ErrSessionNotReady is returned when the session is not connected and
	// authenticated. No unit is attempted.
	ErrSessionNotReady = fmt.Errorf("session not ready")

	// ErrRunInProgress is returned when another run holds the session.
	ErrRunInProgress = fmt.Errorf("a bulk run is already in progress")
)

// ValidationError reports invalid plan input. It is surfaced before any
// unit is attempted; no partial run occurs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
