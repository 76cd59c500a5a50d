package experiment

import "errors"

// Sentinel errors for the experiment service layer.
var (
	ErrNotFound          = errors.New("experiment not found")
	ErrResultNotFound    = errors.New("experiment result not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSameContent       = errors.New("original and variant content must differ")
	ErrInvalidInput      = errors.New("invalid experiment input")
)
