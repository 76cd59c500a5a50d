package pattern

import "errors"

// Sentinel errors for the pattern service layer.
var (
	ErrNotFound        = errors.New("insights not found")
	ErrMissingBusiness = errors.New("business id is required")
)
