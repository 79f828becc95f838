package comap

import "errors"

// ErrKeyNotFound is returned by At when the requested key is absent. It is
// the container's one recoverable, caller-visible failure mode; every
// other operation either always succeeds or signals absence through a
// boolean/count return instead of an error.
var ErrKeyNotFound = errors.New("comap: key not found")
