package httpclient

import (
	"fmt"
	"time"

	"github.com/christopherdebeer/dygram/pkg/execution"
)

// RetryableError reports an HTTP exchange that ran out of the client's own
// retry budget. Kind classifies it using the same vocabulary every other
// execution failure is reported under, so an LLM transport failure surfaces
// through exec status identically to a guard or template failure.
//
// Exhausted distinguishes two situations that look alike from inside Do but
// mean different things to a caller: a single attempt that failed in a way
// nothing here should retry (Exhausted false is never produced today, since
// Do only ever wraps an error once its own strategy gave up), versus the
// strategy itself running out of attempts (Exhausted true). The turn loop's
// own backoff around InvokeWithTools uses IsRetryable to decide whether
// trying again at that outer layer is still worth the attempt.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Kind       execution.FailureKind
	Exhausted  bool
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a caller above this client's own retry loop
// should still attempt the request again. Once Exhausted is set, this
// client already spent its budget waiting on the same condition; retrying
// again immediately would just repeat that wait.
func (e *RetryableError) IsRetryable() bool {
	return !e.Exhausted
}

// Failure converts e into the core's structural error type for the path and
// node an InvokeLLM effect was running on.
func (e *RetryableError) Failure(pathID, node string) *execution.Failure {
	return execution.NewFailure(e.Kind, pathID, node, e.Error())
}

// classifyStatus maps an HTTP status code to the failure vocabulary a
// RetryableError reports under Kind. Every status this client retries on
// is a transport-layer condition reaching the model provider; StatusCode
// itself still distinguishes rate limiting from a transient server error
// for a caller that cares.
func classifyStatus(statusCode int) execution.FailureKind {
	return execution.FailureLLMTransportError
}
