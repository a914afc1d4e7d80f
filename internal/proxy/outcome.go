package proxy

import (
	"bytes"
	"io"

	"github.com/svcgateway/svcgw/internal/util"
)

// Outcome classifies a forward attempt for circuit breaker accounting.
type Outcome int

const (
	// OutcomeSuccess indicates the backend handled the request,
	// including client-error responses which signal a healthy backend
	// rejecting bad input.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure indicates the backend is unhealthy: a server
	// error status, a timeout or a connection failure.
	OutcomeFailure
)

// Classify maps a forward result onto an outcome. Client errors (4xx)
// are successes; only server errors and transport failures count
// against the backend.
func Classify(resp *Response, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	if util.IsServerStatus(resp.StatusCode) {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// newByteReader wraps a byte slice for use as a request body.
func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
