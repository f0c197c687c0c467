package retry

import "errors"

// Sentinel errors for retry outcomes
var (
	ErrExhausted = errors.New("retries exhausted")
	ErrCancelled = errors.New("retry cancelled")
)
