package model

import "errors"

// ErrUnknownSource reports a source value outside the known enum.
// It is an input error: surfaced immediately, never retried.
var ErrUnknownSource = errors.New("unknown source")
