package streamer

import (
	"fmt"
	"strings"
)

// StreamDescriptor describes one logical stream: a source file published in
// one or more resolutions. The orchestrator copies it on submission and shares
// the copy read-only between the stream's supervisors.
type StreamDescriptor struct {
	StreamID    string
	SourcePath  string
	Resolutions []Resolution
}

// Validate checks that the descriptor can be launched.
func (d StreamDescriptor) Validate() error {
	if strings.TrimSpace(d.StreamID) == "" {
		return fmt.Errorf("%w: empty stream id", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(d.SourcePath) == "" {
		return fmt.Errorf("%w: empty source path", ErrInvalidDescriptor)
	}
	if len(d.Resolutions) == 0 {
		return fmt.Errorf("%w: no resolutions requested", ErrInvalidDescriptor)
	}
	seen := make(map[Resolution]bool, len(d.Resolutions))
	for _, r := range d.Resolutions {
		if !r.Valid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidDescriptor, ErrUnknownResolution, int(r))
		}
		if seen[r] {
			return fmt.Errorf("%w: duplicate resolution %s", ErrInvalidDescriptor, r)
		}
		seen[r] = true
	}
	return nil
}

func (d StreamDescriptor) clone() *StreamDescriptor {
	c := d
	c.Resolutions = append([]Resolution(nil), d.Resolutions...)
	return &c
}

// PipelineName is the name given to the pipeline of streamID at resolution r.
func PipelineName(streamID string, r Resolution) string {
	return "stream-" + streamID + "-" + r.Label()
}
