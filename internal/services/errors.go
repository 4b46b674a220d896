package services

import "errors"

// Service error taxonomy. Handlers map these onto HTTP statuses;
// NotFound deliberately covers "exists but caller has no access" so
// existence is never leaked.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
)
