package common

import "errors"

// Sentinel errors shared by storage implementations.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)
