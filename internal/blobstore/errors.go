package blobstore

import "errors"

// ErrNotFound is returned by Download and Resolve when the requested key
// doesn't exist in the backend.
var ErrNotFound = errors.New("object not found")
