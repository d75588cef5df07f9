package openf1

import "errors"

// Sentinel kinds for OpenF1 client errors.
var (
	ErrSessionNotFound = errors.New("openf1 session not found")
	ErrUpstream        = errors.New("openf1 request failed")
	ErrBadResponse     = errors.New("openf1 response is not a JSON array")
)
