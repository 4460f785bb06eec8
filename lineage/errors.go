package lineage

import "github.com/pkg/errors"

// Error classes surfaced to callers. Every error returned by this package
// matches exactly one of them with errors.Is.
var (
	ErrInputMissing     = errors.New("required input missing")
	ErrNotFound         = errors.New("not found")
	ErrParseFailure     = errors.New("model output could not be parsed")
	ErrTransientTimeout = errors.New("model call timed out")
	ErrUpstream         = errors.New("upstream failure")
)

// ParseError keeps the raw model reply that could not be decoded.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	return ErrParseFailure.Error() + ": " + e.Cause.Error()
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Is(target error) bool { return target == ErrParseFailure }
