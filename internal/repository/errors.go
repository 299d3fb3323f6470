// Package repository defines error types that are reused across multiple
// repositories.  Handlers and services check them with errors.Is.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  The credential
// validator turns it into the generic invalid credentials failure.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert collides with the unique email
// index.
var ErrEmailExists = errors.New("email already exists")

// ErrInvalidRole is returned when a stored role name is not part of the role
// enumeration.
var ErrInvalidRole = errors.New("invalid stored role")
