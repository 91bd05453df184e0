package domain

import "errors"

// ErrContactNotFound is shared by every service that resolves contacts so
// one adapter error satisfies errors.Is in each of them.
var ErrContactNotFound = errors.New("contact not found")
