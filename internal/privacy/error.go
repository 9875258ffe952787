package privacy

// SanitizedError wraps an error while providing a scrubbed message for
// logging. The original error stays reachable through Unwrap, so errors.Is
// and errors.As keep working.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

func (e *SanitizedError) Unwrap() error {
	return e.original
}

// WrapError scrubs an error message using ScrubMessage. Returns nil for a
// nil error.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(err.Error()),
	}
}
