package apperr

import (
	"errors"
	"fmt"
)

// Kind names a failure class of the generation pipeline
type Kind string

const (
	DocumentNotReady           Kind = "DocumentNotReady"
	NotIndexed                 Kind = "NotIndexed"
	InsufficientContent        Kind = "InsufficientContent"
	UpstreamUnavailable        Kind = "UpstreamUnavailable"
	UpstreamTimeout            Kind = "UpstreamTimeout"
	MalformedRequest           Kind = "MalformedRequest"
	PromptTooLong              Kind = "PromptTooLong"
	IncompleteGeneration       Kind = "IncompleteGeneration"
	UnparsableOutput           Kind = "UnparsableOutput"
	StructuralValidationFailed Kind = "StructuralValidationFailed"
	TemplateNotFound           Kind = "TemplateNotFound"
	Cancelled                  Kind = "Cancelled"
	CancellationTooLate        Kind = "CancellationTooLate"
	NotReady                   Kind = "NotReady"
	JobNotFound                Kind = "JobNotFound"
	InvalidRequest             Kind = "InvalidRequest"
	ExportFailed               Kind = "ExportFailed"
	Internal                   Kind = "Internal"
)

// Error is a pipeline failure tagged with its Kind
type Error struct {
	Kind       Kind
	Err        error
	Violations []string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds an Error from a format string
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Validation builds a StructuralValidationFailed error carrying the violated invariant names
func Validation(violations []string) *Error {
	return &Error{
		Kind:       StructuralValidationFailed,
		Err:        fmt.Errorf("%d structural invariant(s) violated", len(violations)),
		Violations: append([]string(nil), violations...),
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsRetryable reports whether err is a transient upstream failure
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == UpstreamUnavailable || k == UpstreamTimeout
}

// ViolationsOf returns the violation list carried by err, if any
func ViolationsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}
