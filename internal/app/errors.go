package service

import "errors"

// Sentinel error kinds for the service.
var (
	ErrNotRunning = errors.New("service not running")
	ErrNoStore    = errors.New("no session store configured")
)
