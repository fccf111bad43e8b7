package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorizedCompany indicates a tenant mismatch on an owned resource.
	ErrUnauthorizedCompany = errors.New("company mismatch")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate")
)
