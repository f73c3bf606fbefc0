package retry

import "errors"

// DefaultMaxRetries is the retry budget used when a Policy has none set.
const DefaultMaxRetries = 3

// Decision is the outcome of consulting a Policy about a failed attempt.
type Decision int

const (
	// Retry re-queues the task for the next round.
	Retry Decision = iota
	// Fail makes the failure terminal.
	Fail
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Fail:
		return "fail"
	}
	return "unknown"
}

// permanent is implemented by errors that retrying cannot fix.
type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether any error in err's chain declares itself permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// Policy is the bounded-attempt decision function applied to task failures.
type Policy struct {
	MaxRetries int
}

// NewPolicy returns a Policy with the given budget; values below 1 fall back
// to DefaultMaxRetries.
func NewPolicy(maxRetries int) Policy {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return Policy{MaxRetries: maxRetries}
}

// OnFailure decides what happens after a task with retryCount consumed
// retries fails with err. It returns the decision and the retry count the task
// carries from now on.
//
// Permanent errors fail immediately without consuming budget. Any other error
// consumes one retry; the task is re-queued while the new count stays below
// MaxRetries, and fails once it reaches it.
func (p Policy) OnFailure(retryCount int, err error) (Decision, int) {
	if IsPermanent(err) {
		return Fail, retryCount
	}
	limit := p.MaxRetries
	if limit < 1 {
		limit = DefaultMaxRetries
	}
	next := retryCount + 1
	if next < limit {
		return Retry, next
	}
	return Fail, min(next, limit)
}
