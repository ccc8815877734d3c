package llm

import (
	"errors"
	"strings"
)

// Failure classes a model call can end in. Match them with errors.Is.
var (
	ErrRateLimited = errors.New("model quota exhausted")
	ErrUnavailable = errors.New("model service unreachable")
	ErrBadOutput   = errors.New("model answer unusable")

	// ErrUnsupportedAttachment means the provider cannot take the
	// uploaded file's MIME type.
	ErrUnsupportedAttachment = errors.New("attachment type not accepted by the model")
)

// CallError is a failed model call tagged with the provider that made it
// and, when known, one of the failure classes above.
type CallError struct {
	Provider string
	Class    error
	Err      error
}

func (e *CallError) Error() string {
	var parts []string
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Class != nil {
		parts = append(parts, e.Class.Error())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *CallError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Class, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// BadOutput marks an answer that arrived but cannot be used.
func BadOutput(provider string, err error) error {
	return &CallError{Provider: provider, Class: ErrBadOutput, Err: err}
}

func rateLimited(provider string, err error) error {
	return &CallError{Provider: provider, Class: ErrRateLimited, Err: err}
}

func unavailable(provider string, err error) error {
	return &CallError{Provider: provider, Class: ErrUnavailable, Err: err}
}
