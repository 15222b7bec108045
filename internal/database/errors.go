package database

import (
	"errors"
	"fmt"
)

// ConnectionError means a tenant database could not be reached.  Nothing is
// cached when it is returned; the next Get retries from scratch.
type ConnectionError struct {
	Tenant    string
	Namespace string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect tenant %q (%s): %v", e.Tenant, e.Namespace, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ErrClosed is returned by Get after the registry has been shut down.
var ErrClosed = errors.New("registry closed")

// ErrTenantClosed is returned to callers of an open that raced with
// Close for the same tenant.
var ErrTenantClosed = errors.New("tenant connection closed while opening")
