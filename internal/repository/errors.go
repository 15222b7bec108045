// Package repository holds the data-access layer.  Tenant entities are
// reached only through a Model bound to a tenant *database.Conn; the
// organization directory lives on the default connection.
package repository

import "errors"

// ErrNotFound is returned when no row matches.  Handlers translate it into
// an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into an HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write violates a unique key or cannot be
// performed because of conflicting state.  Handlers translate this into an
// HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrUnknownColumn is returned when a filter names a column the schema does
// not have.
var ErrUnknownColumn = errors.New("unknown column")
