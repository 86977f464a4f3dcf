package space

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by remote operations on a client whose Init has not
// succeeded.
var ErrNotReady = errors.New("space client is not initialized")

// InitError means the client cannot be used: the project has no issue statuses
// or the configured default status is not among them.
type InitError struct {
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("space init: %s: %v", e.Reason, e.Err)
	}
	return "space init: " + e.Reason
}

func (e *InitError) Unwrap() error { return e.Err }

// RemoteError is a non-200 answer from the Space API.
type RemoteError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: space responded %s: %s", e.Op, e.Status, e.Body)
}

// NetworkError wraps transport failures, timeouts included.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request to space failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError means a 200 response did not have the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unexpected response from space: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
