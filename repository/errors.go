package repository

import "errors"

// ErrNotFound is returned when a write expects a row that does not exist.
var ErrNotFound = errors.New("repository: record not found")
