package session

import "errors"

// Sentinel kinds for session errors.
var (
	ErrResultExists    = errors.New("angle already has a result")
	ErrInvalidSnapshot = errors.New("invalid session snapshot")
)
