package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized: query arrived before any session state exists.
	// Recoverable by running ingest/evaluate.
	ErrNotInitialized = errors.New("workflow not initialized")
	// ErrRetrievalUnavailable: the index store did not respond. Distinct
	// from an empty result set, which means "responded, no matches".
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrEvaluationFailed: no strategy could be scored in a run.
	ErrEvaluationFailed = errors.New("evaluation failed")
	// ErrSynthesisFailed: the language model call failed; surfaced instead
	// of a fabricated answer.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
	// ErrSessionNotFound: fresh deployment, nothing persisted yet. An
	// expected state, not a user-facing failure.
	ErrSessionNotFound = errors.New("session state not found")

	ErrInvalidInput = errors.New("invalid input")
	ErrBusy         = errors.New("operation already in flight")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
