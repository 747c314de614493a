package sentinel

import "errors"

// Store errors. Ledger implementations return these (optionally wrapped)
// and services translate them into domain errors exactly once.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
