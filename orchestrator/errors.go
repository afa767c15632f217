// orchestrator/errors.go
// Failure classification for the degradation chain. Stage failures are never
// surfaced to callers as errors — they are classified, logged, and answered
// by dropping to the next tier.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind names why a stage call failed.
type FailureKind string

const (
	FailNetworkUnreachable FailureKind = "network_unreachable"
	FailTimeout            FailureKind = "timeout"
	FailNonSuccessStatus   FailureKind = "non_success_status"
	FailMalformedResponse  FailureKind = "malformed_response"
	FailNoHealthyServer    FailureKind = "no_healthy_server"
	FailAllTiersFailed     FailureKind = "all_tiers_failed"
)

// errMalformed marks a 200 response whose body didn't parse or was missing
// expected fields.
var errMalformed = errors.New("malformed response")

// statusError is a non-2xx backend reply, with the backend's own error text
// when it sent one.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.msg)
}

// classify maps a stage-call error onto the failure taxonomy.
func classify(err error) FailureKind {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return FailNonSuccessStatus
	case errors.Is(err, errMalformed):
		return FailMalformedResponse
	case errors.Is(err, context.DeadlineExceeded):
		return FailTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailTimeout
	}
	return FailNetworkUnreachable
}
