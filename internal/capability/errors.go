package capability

import (
	"errors"
	"fmt"
)

var errUnspecified = errors.New("capability reported failure")

// PermanentError marks a failure that retrying cannot fix, such as a webhook
// rejecting the request as malformed.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func (e *PermanentError) Permanent() bool { return true }

// ConfigError is returned when an agent cannot be turned into a capability.
type ConfigError struct {
	AgentID string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("agent %q: %s", e.AgentID, e.Reason)
}
