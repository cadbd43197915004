package data

import "errors"

// Store errors handlers translate into HTTP status codes. Anything else
// coming out of a store is treated as an internal storage failure and not
// shown to callers verbatim.
var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
	ErrValidation = errors.New("validation failed")
)
