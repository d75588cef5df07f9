package standings

import "errors"

// ErrEmptyResult reports that no participant was active by the cutoff.
// It is a valid outcome, not a computation fault.
var ErrEmptyResult = errors.New("no active participants")
