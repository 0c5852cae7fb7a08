package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers tag errors with how the orchestrator must treat them.
// Permanent failures are never retried; retryable ones re-enter the queue
// with backoff; fatal ones abort the run.
var (
	ErrValidation      = errors.New("validation error")
	ErrMissingAsset    = errors.New("missing asset")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrConfiguration   = errors.New("configuration error")
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("transient failure")
	ErrTimeout         = errors.New("timeout")
	ErrNotFound        = errors.New("not found")
	ErrCycleDetected   = errors.New("dependency cycle detected")
	ErrStoreCorruption = errors.New("store corruption")
)

// Error kinds persisted to the job ledger. Resume decisions read these back,
// so the strings are part of the stored schema.
const (
	KindValidation     = "validation"
	KindMissingAsset   = "missing_asset"
	KindInvalidRequest = "invalid_request"
	KindConfiguration  = "configuration"
	KindRateLimited    = "rate_limited"
	KindTransient      = "transient"
	KindTimeout        = "timeout"
	KindNotFound       = "not_found"
	KindCycle          = "cycle"
	KindCorruption     = "corruption"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the kind persisted alongside a failed job.
// Unknown errors classify as transient; the retry budget bounds them.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoreCorruption):
		return KindCorruption
	case errors.Is(err, ErrCycleDetected):
		return KindCycle
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrMissingAsset):
		return KindMissingAsset
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindTransient
	}
}

// Retryable reports whether the orchestrator may schedule another attempt.
func Retryable(err error) bool {
	return RetryableKind(Classify(err))
}

// RetryableKind reports retryability for a persisted error kind.
func RetryableKind(kind string) bool {
	switch kind {
	case KindRateLimited, KindTransient, KindTimeout:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error must abort the whole run rather than fail
// a single job.
func Fatal(err error) bool {
	return errors.Is(err, ErrStoreCorruption) || errors.Is(err, ErrCycleDetected)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
