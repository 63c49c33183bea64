package domain

import "fmt"

// TransportError covers timeouts and disconnects. Always recoverable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// VenueRejection is returned when the exchange refuses an action
// (order rejected, insufficient margin). Aborts the action only.
type VenueRejection struct {
	Op   string
	Code int
	Msg  string
}

func (e *VenueRejection) Error() string {
	return fmt.Sprintf("venue rejected %s: code=%d msg=%s", e.Op, e.Code, e.Msg)
}

// StateInconsistency means the exchange's view disagrees with ours, e.g. an
// expected position is not visible yet. Retried a bounded number of times.
type StateInconsistency struct {
	Op     string
	Detail string
}

func (e *StateInconsistency) Error() string {
	return fmt.Sprintf("state inconsistency during %s: %s", e.Op, e.Detail)
}

// ConfigurationError is fatal at startup only.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}
