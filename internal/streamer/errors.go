package streamer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDescriptor is returned by Start for descriptors that cannot be launched.
	ErrInvalidDescriptor = errors.New("invalid stream descriptor")

	// ErrBusUnavailable is returned by a supervisor whose pipeline exposes no
	// usable message bus. It is an internal fault, not a pipeline error.
	ErrBusUnavailable = errors.New("pipeline bus unavailable")

	// ErrStreamNotFound is returned when no registry entry matches a stream id.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrDestinationNotConfigured is returned when the publish server or prefix is empty.
	ErrDestinationNotConfigured = errors.New("publish destination not configured")
)

// GraphError reports a failure to construct or statically link one
// resolution's processing graph.
type GraphError struct {
	StreamID   string
	Resolution Resolution
	Element    string
	Err        error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("build %s pipeline for stream %s: %s: %v", e.Resolution, e.StreamID, e.Element, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// StartError reports why a multi-resolution start was aborted. Nothing of the
// stream is registered or left running when it is returned.
type StartError struct {
	StreamID   string
	Resolution Resolution
	Err        error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start stream %s at %s: %v", e.StreamID, e.Resolution, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
