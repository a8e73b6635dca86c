package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel for rows missing from the local mirror.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before any state machine is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// InvalidStateError reports a state-machine precondition violation,
// naming the offending state.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid state: %s", e.Op, e.State)
}

// PreconditionError reports a non-state precondition violation, e.g.
// completing a stage that has no authority-approved bill.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// NotFoundOnLedgerError reports an id the ledger has no record of.
type NotFoundOnLedgerError struct {
	Resource string
	ID       uint64
}

func (e *NotFoundOnLedgerError) Error() string {
	return fmt.Sprintf("%s %d not found on ledger", e.Resource, e.ID)
}

// ConnectivityError wraps a failure reaching an external endpoint.
type ConnectivityError struct {
	Service string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// OracleUnavailableError means a verification attempt could not complete.
// The bill always lands in the failed status; it is never treated as accepted.
type OracleUnavailableError struct {
	Err error
}

func (e *OracleUnavailableError) Error() string {
	return fmt.Sprintf("verification oracle unavailable: %v", e.Err)
}

func (e *OracleUnavailableError) Unwrap() error { return e.Err }
