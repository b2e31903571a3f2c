package storage

import "errors"

// ErrNotFound is returned by DB.Get and Engine lookups when a key is absent.
var ErrNotFound = errors.New("storage: not found")
