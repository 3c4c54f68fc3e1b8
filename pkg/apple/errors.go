package apple

import "fmt"

// NetworkError is a transport, DNS, TLS or HTTP status failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError means an expected marker or key was missing from a response:
// either the upstream format drifted or the serial is invalid.
type ParseError struct {
	Source string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %s", e.Source, e.Reason)
}
