package vision

import (
	"context"
	"errors"

	"github.com/BaSui01/panoroam/types"
)

// FailureKind classifies a failed attempt.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureServer
	FailureTimeout
	FailureMalformed
	FailureTruncated
	FailureAuth
	FailureFatal
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRateLimited:
		return "rate_limited"
	case FailureServer:
		return "server_error"
	case FailureTimeout:
		return "timeout"
	case FailureMalformed:
		return "malformed_reply"
	case FailureTruncated:
		return "truncated_reply"
	case FailureAuth:
		return "auth"
	default:
		return "fatal"
	}
}

// Retryable reports whether another attempt may succeed.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureRateLimited, FailureServer, FailureTimeout, FailureMalformed, FailureTruncated:
		return true
	default:
		return false
	}
}

// Classify maps a provider error to a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	switch types.GetErrorCode(err) {
	case types.ErrRateLimited:
		return FailureRateLimited
	case types.ErrUpstreamError, types.ErrServiceUnavailable, types.ErrModelOverloaded:
		return FailureServer
	case types.ErrUpstreamTimeout:
		return FailureTimeout
	case types.ErrMalformedVisionReply:
		return FailureMalformed
	case types.ErrTruncatedVisionReply:
		return FailureTruncated
	case types.ErrUnauthorized, types.ErrAuthentication, types.ErrForbidden:
		return FailureAuth
	}
	if types.IsRetryable(err) {
		return FailureServer
	}
	return FailureFatal
}

// NextBudget returns the output-token budget for the attempt after one that
// failed with kind. Malformed and truncated replies usually mean the model ran
// out of room, so the budget doubles up to limit; other failures keep it.
func NextBudget(budget int, kind FailureKind, limit int) int {
	if kind != FailureMalformed && kind != FailureTruncated {
		return budget
	}
	next := budget * 2
	if next > limit {
		next = limit
	}
	if next < budget {
		return budget
	}
	return next
}
