package analyses

import (
	"errors"
	"fmt"
)

// Validation errors (400).
var (
	ErrMissingFile          = errors.New("file is required")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingClauses       = errors.New("clauses are required")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidOwner         = errors.New("invalid owner id")
	ErrCheckoutNotStarted   = errors.New("checkout not started")
)

var (
	ErrTokenNotFound       = errors.New("token not found")
	ErrPaymentRequired     = errors.New("payment required")
	ErrExtractionFailed    = errors.New("text extraction failed")
	ErrDependencyTimeout   = errors.New("dependency timeout")
	ErrClassificationParse = errors.New("classification parse error")
	ErrAlreadyReleased     = errors.New("analysis already released")
)

// DependencyError wraps a failed call to an external collaborator.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// ParseError is returned when the model output is not the expected JSON shape.
// Raw holds the model response for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrClassificationParse, e.Err)
	}
	return ErrClassificationParse.Error()
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrClassificationParse}
	}
	return []error{ErrClassificationParse, e.Err}
}
