package common

import "errors"

// ErrNotFound marks lookups for entities that do not exist. Handlers map
// it to 404.
var ErrNotFound = errors.New("not found")
