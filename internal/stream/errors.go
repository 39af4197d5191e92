package stream

import "errors"

var (
	// ErrStreamNotFound is returned when no live stream record has the given id.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamEnded is returned for operations that need a stream still on air.
	ErrStreamEnded = errors.New("stream has ended")

	// ErrInvalidRequest is returned for start requests that fail validation.
	ErrInvalidRequest = errors.New("invalid stream request")

	// ErrSourceNotFound is returned when the source file cannot be resolved.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrAccessDenied is returned by Authenticate for URIs that must not be served.
	ErrAccessDenied = errors.New("access denied")
)
