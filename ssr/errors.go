package ssr

import "errors"

var (
	// ErrTerminateTimeout is returned when the run deadline passes before every
	// module settled.
	ErrTerminateTimeout = errors.New("terminate timeout")

	// ErrNoResolver is returned by a Coordinator built without a resolver.
	ErrNoResolver = errors.New("no module resolver")
)
