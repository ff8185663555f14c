package finding

import "errors"

var (
	// ErrInvalidSeverity is returned when a severity label cannot be mapped
	// onto the four-level scale.
	ErrInvalidSeverity = errors.New("finding: invalid severity")
)
