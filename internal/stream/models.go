package stream

import (
	"time"

	"live-streamer/internal/streamer"
)

// Status is the persisted lifecycle state of a live stream.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusEnded   Status = "ENDED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusEnded:
		return true
	}
	return false
}

// LiveStream is the persisted record of one logical stream.
type LiveStream struct {
	ID          int64                 `json:"id"`
	VideoID     int64                 `json:"video_id"`
	SourcePath  string                `json:"source_path"`
	Resolutions []streamer.Resolution `json:"resolutions"`
	StartedAt   time.Time             `json:"start_time"`
	Status      Status                `json:"status"`
}

// StreamKey is the id the streaming core and the publish endpoint know the
// stream by.
func (s LiveStream) StreamKey() string {
	return streamKey(s.ID)
}

// StartRequest is the body of POST /streams.
type StartRequest struct {
	VideoID     int64                 `json:"video_id"`
	SourcePath  string                `json:"source_path"`
	Resolutions []streamer.Resolution `json:"resolutions,omitempty"`
}

// StreamView is a LiveStream with its playback URL and live pipelines.
type StreamView struct {
	LiveStream
	PlaybackURL string                    `json:"stream_url"`
	Pipelines   []streamer.PipelineStatus `json:"pipelines"`
}
