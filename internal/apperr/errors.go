// Package apperr defines the error kinds of the filing pipeline so callers can
// tell a recovered failure from a fatal one.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind string

const (
	KindUnknown                  Kind = "unknown"
	KindInvalidInput             Kind = "invalid_input"
	KindNotFound                 Kind = "not_found"
	KindUpstream                 Kind = "upstream"
	KindUnsupportedMethod        Kind = "unsupported_method"
	KindSegmentationFailure      Kind = "segmentation_failure"
	KindSectionProcessingFailure Kind = "section_processing_failure"
	KindUpsertBatchFailure       Kind = "upsert_batch_failure"
	KindRetrievalFailure         Kind = "retrieval_failure"
	KindAnswerGenerationFailure  Kind = "answer_generation_failure"
)

// Fatal reports whether errors of this kind must abort the current operation.
// Everything else is recovered at filing, section or batch granularity.
func (k Kind) Fatal() bool {
	switch k {
	case KindUnsupportedMethod, KindInvalidInput:
		return true
	}
	return false
}

// Error carries a Kind, the failing operation and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind without a cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ae *Error
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Kind == kind {
			return true
		}
		err = ae.Err
	}
	return false
}

// HTTPStatus maps an error to the status the API server answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput, KindUnsupportedMethod:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream, KindRetrievalFailure, KindAnswerGenerationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
