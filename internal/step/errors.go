package step

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for step failures. Executors wrap their errors with one of
// these via Wrap so the orchestrator can classify the failure without knowing
// anything about the executor's internals.
var (
	ErrTransient      = errors.New("transient service error")
	ErrRateLimited    = errors.New("rate limited")
	ErrValidation     = errors.New("validation error")
	ErrQuotaExhausted = errors.New("quota exhausted")
	ErrTimeout        = errors.New("timeout")
)

// ErrorKind is the stable classification of a step failure. Only the kind and
// a short message are guaranteed safe to surface to callers.
type ErrorKind string

const (
	KindTransient      ErrorKind = "transient"
	KindRateLimit      ErrorKind = "rate_limit"
	KindValidation     ErrorKind = "validation"
	KindQuotaExhausted ErrorKind = "quota_exhausted"
	KindTimeout        ErrorKind = "timeout"
	KindUnclassified   ErrorKind = "unclassified"
)

// Wrap builds an error that carries step context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrTransient.
func Wrap(marker error, stepName, operation, message string, err error) error {
	detail := buildDetail(stepName, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies an error by its sentinel marker. Deadline expiry counts as
// a timeout even when the executor did not wrap it. Anything unrecognized is
// reported as unclassified so the policy table review can pick it up.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrQuotaExhausted):
		return KindQuotaExhausted
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnclassified
	}
}

func buildDetail(stepName, operation, message string) string {
	parts := make([]string, 0, 3)
	if stepName = strings.TrimSpace(stepName); stepName != "" {
		parts = append(parts, stepName)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "step failure"
	}
	return strings.Join(parts, ": ")
}
