// Package errors defines the error taxonomy shared across the pool,
// statement cache, and proxy packages. The types that carry a cause
// (ConfigError, CreateConnectionError, InterruptedError, DriverError)
// implement Unwrap so callers can use errors.Is/As through proxy boundaries;
// every type except ConfigError has a SQLState method for bridging to a
// SQL-error-code protocol. Wrap chains two errors with golang.org/x/xerrors.
package errors

import (
	"fmt"

	"golang.org/x/xerrors"
)

// SQL-state codes assigned by the facade.
const (
	StateCreateConnection = "08001"
	StateUseAfterClose    = "08003"
	StatePoolClosed       = "08006"
	StateSerialization    = "40001"
	StateInterrupted      = "70100"
)

// ConfigError indicates invalid or missing configuration, raised only at
// DataSource.Start.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: invalid %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("config: invalid %s", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// CreateConnectionError indicates the raw driver refused to connect after
// all configured retries.
type CreateConnectionError struct {
	Attempts int
	Cause    error
}

func (e *CreateConnectionError) Error() string {
	return fmt.Sprintf("create connection failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *CreateConnectionError) Unwrap() error  { return e.Cause }
func (e *CreateConnectionError) SQLState() string { return StateCreateConnection }

// TimeoutError indicates a tryTake deadline expired. TakenSnapshot is
// populated only when logTakenConnectionsOnTimeout is configured.
type TimeoutError struct {
	Deadline      string
	TakenSnapshot []string
}

func (e *TimeoutError) Error() string {
	if len(e.TakenSnapshot) == 0 {
		return "timed out waiting for a pooled connection"
	}
	return fmt.Sprintf("timed out waiting for a pooled connection; %d connection(s) currently taken", len(e.TakenSnapshot))
}

func (e *TimeoutError) SQLState() string { return "" }

// PoolClosedError indicates an operation against a TERMINATED pool.
type PoolClosedError struct{}

func (e *PoolClosedError) Error() string    { return "pool is closed" }
func (e *PoolClosedError) SQLState() string { return StatePoolClosed }

// InterruptedError indicates cooperative cancellation during acquisition.
type InterruptedError struct {
	Cause error
}

func (e *InterruptedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("interrupted while acquiring connection: %v", e.Cause)
	}
	return "interrupted while acquiring connection"
}

func (e *InterruptedError) Unwrap() error  { return e.Cause }
func (e *InterruptedError) SQLState() string { return StateInterrupted }

// ClosedError indicates a method call on a logically-closed proxy.
type ClosedError struct {
	What string
}

func (e *ClosedError) Error() string    { return fmt.Sprintf("%s is closed", e.What) }
func (e *ClosedError) SQLState() string { return StateUseAfterClose }

// RestrictedQueryError indicates SQL text that failed the configured
// whitelist/blacklist query restriction.
type RestrictedQueryError struct {
	Prefix string
}

func (e *RestrictedQueryError) Error() string {
	return fmt.Sprintf("query restricted: prefix %q is not permitted", e.Prefix)
}

func (e *RestrictedQueryError) SQLState() string { return "" }

// DriverError wraps an error returned verbatim by the underlying driver.
// Transient marks whether the ExceptionCollector should record it.
type DriverError struct {
	Cause     error
	Transient bool
	Code      string
}

func (e *DriverError) Error() string    { return e.Cause.Error() }
func (e *DriverError) Unwrap() error    { return e.Cause }
func (e *DriverError) SQLState() string { return e.Code }

// Wrap links outer over inner the way pgconn's errors.go links driver
// errors: if either is nil the other is returned unchanged.
func Wrap(outer, inner error) error {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	return xerrors.Errorf("%w: %v", outer, inner)
}
