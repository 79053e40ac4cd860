package store

import "errors"

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict signals that the requested change collides with current state,
// for example an event against a stage that already finished.
var ErrConflict = errors.New("conflicting state")
