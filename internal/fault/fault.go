// Package fault classifies pipeline errors so the scheduler's retry policy
// can be a pure function of the error kind.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	// KindTransient covers timeouts, rate limits and provider unavailability;
	// eligible for bounded retry with backoff.
	KindTransient Kind = iota
	// KindStructural covers malformed specs and invalid composed output;
	// never retried.
	KindStructural
	// KindFatal aborts the whole batch (missing inputs, bad credentials).
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStructural:
		return "structural"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Error wraps an underlying error with its retry classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

func Transientf(format string, v ...interface{}) error {
	return &Error{Kind: KindTransient, Err: fmt.Errorf(format, v...)}
}

func Structural(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStructural, Err: err}
}

func Structuralf(format string, v ...interface{}) error {
	return &Error{Kind: KindStructural, Err: fmt.Errorf(format, v...)}
}

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFatal, Err: err}
}

func Fatalf(format string, v ...interface{}) error {
	return &Error{Kind: KindFatal, Err: fmt.Errorf(format, v...)}
}

// Classify returns the explicit kind when the error carries one, otherwise
// falls back to message heuristics for raw network errors.
func Classify(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if isRetryableMessage(err) {
		return KindTransient
	}
	return KindStructural
}

// IsRetryable reports whether the scheduler may spend retry budget on err.
func IsRetryable(err error) bool {
	return err != nil && Classify(err) == KindTransient
}

func isRetryableMessage(err error) bool {
	if err == nil {
		return false
	}
	es := strings.ToLower(err.Error())
	if strings.Contains(es, "429") || strings.Contains(es, "too many requests") || strings.Contains(es, "rate limit") {
		return true
	}
	if strings.Contains(es, "503") || strings.Contains(es, "service unavailable") ||
		strings.Contains(es, "502") || strings.Contains(es, "bad gateway") ||
		strings.Contains(es, "504") || strings.Contains(es, "gateway timeout") {
		return true
	}
	if strings.Contains(es, "connection reset") || strings.Contains(es, "connection refused") {
		return true
	}
	if strings.Contains(es, "timeout") || strings.Contains(es, "deadline exceeded") {
		return true
	}
	return false
}
