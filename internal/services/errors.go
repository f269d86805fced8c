package services

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the HTTP edge.
type Kind string

const (
	KindUnauthorized             Kind = "unauthorized"
	KindForbidden                Kind = "forbidden"
	KindNotFound                 Kind = "not_found"
	KindInvalidInput             Kind = "invalid_input"
	KindPaymentRequired          Kind = "payment_required"
	KindSignatureInvalid         Kind = "signature_invalid"
	KindUpstreamGenerationFailed Kind = "upstream_generation_failed"
	KindStorageError             Kind = "storage_error"
	KindAlreadyProcessing        Kind = "already_processing"
	KindAlreadyCompleted         Kind = "already_completed"
	KindPartialSuccess           Kind = "partial_success"
	KindInternal                 Kind = "internal"
)

// Error carries a Kind plus the state a caller needs to recover: the stored
// output reference for a partial success, and whether the provider already
// billed for an inference whose result was lost.
type Error struct {
	Kind             Kind
	Op               string
	Err              error
	OutputRef        string
	ProviderRef      string
	InferenceCharged bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
